package ctxutil

import "context"

type requestInfoKey struct{}

// RequestInfo identifies one HTTP request across logs, traces and responses.
type RequestInfo struct {
	RequestID string
	TraceID   string
	// Table is the clinical table named in the route, when there is one.
	Table string
}

func WithRequestInfo(ctx context.Context, info *RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

func RequestInfoFrom(ctx context.Context) *RequestInfo {
	if ctx == nil {
		return nil
	}
	info, _ := ctx.Value(requestInfoKey{}).(*RequestInfo)
	return info
}

// Fields returns the request identifiers as logger key/value pairs.
func Fields(ctx context.Context) []any {
	info := RequestInfoFrom(ctx)
	if info == nil {
		return nil
	}
	var kv []any
	if info.RequestID != "" {
		kv = append(kv, "request_id", info.RequestID)
	}
	if info.TraceID != "" {
		kv = append(kv, "trace_id", info.TraceID)
	}
	if info.Table != "" {
		kv = append(kv, "table", info.Table)
	}
	return kv
}
