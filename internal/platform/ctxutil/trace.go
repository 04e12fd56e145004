package ctxutil

import "context"

type traceDataKey struct{}

// TraceData follows one request. DocID is filled in once the document being
// classified is known.
type TraceData struct {
	TraceID   string
	RequestID string
	DocID     string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// SetDocID records the document id on the request's trace data. It is a no-op
// outside a traced request.
func SetDocID(ctx context.Context, docID string) {
	if td := GetTraceData(ctx); td != nil {
		td.DocID = docID
	}
}
