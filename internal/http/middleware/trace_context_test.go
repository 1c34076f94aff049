package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/icees-go/icees-api/internal/platform/ctxutil"
)

func TestAttachTraceContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	var seen *ctxutil.RequestInfo
	r.GET("/:table/cohort/dictionary", func(c *gin.Context) {
		seen = ctxutil.RequestInfoFrom(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/patient/cohort/dictionary", nil)
	req.Header.Set(headerRequestID, "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if seen == nil || seen.RequestID != "req-1" || rec.Header().Get(headerRequestID) != "req-1" {
		t.Fatalf("request id not propagated: ctx=%+v header=%q", seen, rec.Header().Get(headerRequestID))
	}
	if seen.Table != "patient" {
		t.Fatalf("table = %q", seen.Table)
	}

	for _, bad := range []string{"", "has space", strings.Repeat("x", maxRequestIDLen+1)} {
		req := httptest.NewRequest(http.MethodGet, "/patient/cohort/dictionary", nil)
		if bad != "" {
			req.Header.Set(headerRequestID, bad)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if seen.RequestID == "" || seen.RequestID == bad || rec.Header().Get(headerRequestID) != seen.RequestID {
			t.Fatalf("id not generated for %q: %+v", bad, seen)
		}
	}
}

func TestRequestInfoFields(t *testing.T) {
	if ctxutil.Fields(context.Background()) != nil {
		t.Fatal("context without request info has no fields")
	}
	ctx := ctxutil.WithRequestInfo(context.Background(), &ctxutil.RequestInfo{RequestID: "r", Table: "patient"})
	kv := ctxutil.Fields(ctx)
	if len(kv) != 4 || kv[1] != "r" || kv[3] != "patient" {
		t.Fatalf("fields = %v", kv)
	}
}
