package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/bc-dunia/agentmon/internal/otel"
	amerr "github.com/bc-dunia/agentmon/pkg/errors"
)

// defaultHTTPClient is shared by CLI commands talking to a running server.
var defaultHTTPClient = &http.Client{
	Timeout: 5 * time.Second,
}

// apiClient provides HTTP access to a running agentmon server.
type apiClient struct {
	baseURL string
	http    *http.Client
	tracer  *otel.Tracer
}

func newAPIClient(addr string, tracer *otel.Tracer) *apiClient {
	if tracer == nil {
		tracer = otel.NoopTracer()
	}
	return &apiClient{
		baseURL: "http://" + addr,
		http:    defaultHTTPClient,
		tracer:  tracer,
	}
}

// getJSON performs a GET request and decodes the JSON response into dest.
// The request carries the trace context when tracing is enabled.
func (c *apiClient) getJSON(ctx context.Context, path string, dest any) error {
	ctx, span := c.tracer.StartSpan(ctx, "GET "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return amerr.Wrap(err, amerr.CodeCLIRequestFailure, "build request")
	}
	otel.InjectHeaders(ctx, req.Header, c.tracer)

	resp, err := c.http.Do(req)
	if err != nil {
		otel.RecordError(span, err, "request")
		if isDialError(err) {
			return amerr.Wrap(err, amerr.CodeCLIRequestFailure, "server is not running", amerr.Field("dial", true))
		}
		return amerr.Wrap(err, amerr.CodeCLIRequestFailure, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return amerr.New(amerr.CodeCLIResponseInvalid, "server returned "+resp.Status,
			amerr.Field("status", resp.StatusCode), amerr.Field("body", string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return amerr.Wrap(err, amerr.CodeCLIResponseInvalid, "invalid response")
	}
	return nil
}

func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
