package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/icees-go/icees-api/internal/platform/apierr"
)

// ReturnValueKey wraps every non-reasoner payload.
const ReturnValueKey = "return value"

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAPIError reports err with the status and code it carries, or as a
// 500 with fallbackCode.
func RespondAPIError(c *gin.Context, err error, fallbackCode string) {
	ae := apierr.As(err, fallbackCode)
	RespondError(c, ae.Status, ae.Code, ae.Err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondValue writes {"return value": payload}.
func RespondValue(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, gin.H{ReturnValueKey: payload})
}
