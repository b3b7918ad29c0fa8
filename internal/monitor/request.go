package monitor

import "context"

// DefaultSessionID is recorded when a call carries no session.
const DefaultSessionID = "default"

// RequestInfo enriches usage metrics recorded under a context.
type RequestInfo struct {
	SessionID    string
	UserAgent    string
	IPAddress    string
	RequestSize  int64
	ResponseSize int64
}

type requestInfoKey struct{}

// WithRequestInfo returns a context carrying info. The pointer is kept so a
// handler may fill ResponseSize after the context was created.
func WithRequestInfo(ctx context.Context, info *RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFrom returns the request info carried by ctx, if any.
func RequestInfoFrom(ctx context.Context) (*RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey{}).(*RequestInfo)
	return info, ok && info != nil
}

func (m *UsageMetric) applyRequestInfo(ctx context.Context) {
	m.SessionID = DefaultSessionID
	info, ok := RequestInfoFrom(ctx)
	if !ok {
		return
	}
	if info.SessionID != "" {
		m.SessionID = info.SessionID
	}
	m.UserAgent = info.UserAgent
	m.IPAddress = info.IPAddress
	m.RequestSize = info.RequestSize
	m.ResponseSize = info.ResponseSize
}
