// Package httpclient performs requests and captures them as records that the
// HAR transformer can export.
package httpclient

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/unkn0wn-root/harkit/internal/authcache"
	"github.com/unkn0wn-root/harkit/internal/errdef"
	"github.com/unkn0wn-root/harkit/internal/headers"
	"github.com/unkn0wn-root/harkit/internal/nettrace"
	"github.com/unkn0wn-root/harkit/internal/payload"
	"github.com/unkn0wn-root/harkit/internal/record"
	"github.com/unkn0wn-root/harkit/internal/telemetry"
)

// Request is what to send. Headers use the raw header block format.
type Request struct {
	Name    string
	Method  string
	URL     string
	Headers string
	Payload *payload.Stored
	Auth    *AuthSpec
}

type Client struct {
	httpFactory func(Options) (*http.Client, error)
	telemetry   telemetry.Instrumenter
	auth        *authcache.Cache
	restorer    payload.Restorer
}

// NewClient creates a client bound to a session credential cache. A nil
// cache disables credential reuse.
func NewClient(cache *authcache.Cache) *Client {
	return &Client{
		httpFactory: buildHTTPClient,
		telemetry:   telemetry.Noop(),
		auth:        cache,
		restorer:    payload.DefaultRestorer,
	}
}

// SetHTTPFactory allows callers to override how http.Client instances are created.
// Passing nil restores the default factory.
func (c *Client) SetHTTPFactory(factory func(Options) (*http.Client, error)) {
	if factory == nil {
		factory = buildHTTPClient
	}
	c.httpFactory = factory
}

// SetTelemetry configures the instrumenter used for traced requests. Passing
// nil restores the no-op implementation.
func (c *Client) SetTelemetry(instr telemetry.Instrumenter) {
	if instr == nil {
		instr = telemetry.Noop()
	}
	c.telemetry = instr
}

func (c *Client) prepare(ctx context.Context, req Request) (*http.Request, error) {
	target := strings.TrimSpace(req.URL)
	if target == "" {
		return nil, errdef.New(errdef.CodeHTTP, "request url is empty")
	}
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	if err := headers.CheckNames(headers.Parse(req.Headers)); err != nil {
		return nil, err
	}
	hdrs := headers.TableFromText(req.Headers)

	body, contentType, err := requestBody(ctx, c.restorer, req.Payload)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHTTP, err, "build request")
	}
	if contentType != "" && !hdrs.Has("Content-Type") {
		hdrs.Set("Content-Type", contentType)
	}

	ApplyAuth(httpReq.URL, hdrs, req.Auth, c.auth)
	httpReq.Header = hdrs.Header()
	return httpReq, nil
}

// Capture sends req and returns the exchange as a record. When the round trip
// fails the record is still returned, with a transport error response, next
// to the error.
func (c *Client) Capture(ctx context.Context, req Request, opts Options) (rec *record.Request, err error) {
	httpReq, err := c.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	client, err := c.httpFactory(opts)
	if err != nil {
		return nil, err
	}

	instrumenter := c.telemetry
	if !opts.Trace {
		instrumenter = telemetry.Noop()
	}
	spanCtx, span := instrumenter.Start(httpReq.Context(), telemetry.RequestStart{
		Name:        req.Name,
		HTTPRequest: httpReq,
	})
	httpReq = httpReq.WithContext(spanCtx)

	var (
		traceSess *traceSession
		timeline  *nettrace.Timeline
		status    int
	)
	defer func() {
		if timeline != nil {
			span.RecordTrace(timeline)
		}
		span.End(telemetry.RequestResult{Err: err, StatusCode: status})
	}()

	if opts.Trace {
		traceSess = newTraceSession()
		httpReq = traceSess.bind(httpReq)
	}

	start := time.Now()
	redirects := newRedirectLog(start, opts.FollowRedirects)
	client.CheckRedirect = redirects.check

	ex := Exchange{Name: req.Name, Sent: httpReq, Payload: req.Payload, Start: start}
	httpResp, err := client.Do(httpReq)
	if err != nil {
		if traceSess != nil {
			traceSess.collector.Fail(err)
			timeline = traceSess.complete()
		}
		ex.Err, ex.End, ex.Timeline = err, time.Now(), timeline
		ex.Redirects = redirects.snapshot()
		return Record(ex), errdef.Wrap(errdef.CodeHTTP, err, "perform request")
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil && err == nil {
			err = errdef.Wrap(errdef.CodeHTTP, closeErr, "close response body")
		}
	}()

	body, err := io.ReadAll(httpResp.Body)
	if traceSess != nil {
		traceSess.finishTransfer(err)
		timeline = traceSess.complete()
	}
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHTTP, err, "read response body")
	}
	status = httpResp.StatusCode
	forgetRejected(httpResp.Request, status, c.auth)

	ex.Response, ex.Body, ex.End, ex.Timeline = httpResp, body, time.Now(), timeline
	ex.Redirects = redirects.snapshot()
	return Record(ex), nil
}
