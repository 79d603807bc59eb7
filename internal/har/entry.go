package har

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/unkn0wn-root/harkit/internal/bytesize"
	"github.com/unkn0wn-root/harkit/internal/cookies"
	"github.com/unkn0wn-root/harkit/internal/errdef"
	"github.com/unkn0wn-root/harkit/internal/headers"
	"github.com/unkn0wn-root/harkit/internal/payload"
	"github.com/unkn0wn-root/harkit/internal/record"
)

// CreateEntry converts one record. It returns nil without error when the
// record has no response, no transport request or only a transport error,
// since HAR cannot describe connection level failures. Redirect hops come
// first, followed by the entry of the final response.
func (t *Transformer) CreateEntry(ctx context.Context, req *record.Request) ([]Entry, error) {
	if req == nil || req.Response == nil || req.TransportRequest == nil {
		return nil, nil
	}
	if req.Response.IsTransportError() {
		return nil, nil
	}

	tr := req.TransportRequest
	method := firstNonEmpty(tr.Method, req.Method)
	rawURL := firstNonEmpty(tr.URL, req.URL)
	rawHeaders := firstNonEmpty(tr.Headers, req.Headers)
	stored := tr.Payload
	if stored == nil {
		stored = req.Payload
	}

	body, err := t.restorer.Restore(ctx, stored)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHAR, err, "restore request payload")
	}

	redirects := req.Response.Redirects
	out := make([]Entry, 0, len(redirects)+1)
	from := rawURL
	for i, hop := range redirects {
		hreq, err := t.buildRequest(ctx, method, from, rawHeaders, body)
		if err != nil {
			return nil, err
		}
		hres, err := t.buildResponse(ctx, hop.Response.Status, hop.Response.StatusText,
			hop.Response.Headers, hop.Response.Payload, hop.URL, from)
		if err != nil {
			return nil, errdef.Wrap(errdef.CodeHAR, err, "redirect %d", i)
		}
		out = append(out, Entry{
			StartedDateTime: isoTime(hop.StartTime),
			Time:            float64(hop.EndTime - hop.StartTime),
			Request:         hreq,
			Response:        hres,
			Cache:           unsupportedCache,
			Timings:         timingsOf(hop.Timings),
			started:         hop.StartTime,
		})
		from = hop.URL
	}

	freq, err := t.buildRequest(ctx, method, from, rawHeaders, body)
	if err != nil {
		return nil, err
	}
	res := req.Response
	fres, err := t.buildResponse(ctx, res.Status, res.StatusText, res.Headers, res.Payload, "", from)
	if err != nil {
		return nil, err
	}
	out = append(out, Entry{
		StartedDateTime: isoTime(tr.StartTime),
		Time:            res.LoadingTime,
		Request:         freq,
		Response:        fres,
		Cache:           unsupportedCache,
		Timings:         timingsOf(res.Timings),
		started:         tr.StartTime,
	})
	return out, nil
}

func (t *Transformer) buildRequest(
	ctx context.Context,
	method, rawURL, rawHeaders string,
	body any,
) (Request, error) {
	fields := headers.Parse(rawHeaders)
	out := Request{
		Method:      method,
		URL:         rawURL,
		HTTPVersion: HTTPVersion,
		Cookies:     cookieList(headers.All(fields, "cookie"), rawURL),
		Headers:     nameValues(fields),
		QueryString: queryString(rawURL),
		HeadersSize: headersSize(rawHeaders),
	}
	if payload.IsEmpty(body) {
		return out, nil
	}

	size, err := bytesize.ComputePayloadSize(body)
	if err != nil {
		return Request{}, errdef.Wrap(errdef.CodeHAR, err, "measure request payload")
	}
	text, mime, err := t.bodyText(ctx, body, contentTypeValue(fields))
	if err != nil {
		return Request{}, errdef.Wrap(errdef.CodeHAR, err, "decode request payload")
	}
	if ct := headers.FieldsContentType(fields); ct != "" {
		mime = ct
	}
	out.BodySize = size
	out.PostData = &PostData{MimeType: mime, Text: text}
	return out, nil
}

func (t *Transformer) buildResponse(
	ctx context.Context,
	status int,
	statusText, rawHeaders string,
	stored *payload.Stored,
	redirectURL, reqURL string,
) (Response, error) {
	fields := headers.Parse(rawHeaders)
	out := Response{
		Status:      status,
		StatusText:  statusText,
		HTTPVersion: HTTPVersion,
		Cookies:     cookieList(headers.All(fields, "set-cookie"), reqURL),
		Headers:     nameValues(fields),
		RedirectURL: redirectURL,
		HeadersSize: headersSize(rawHeaders),
	}

	content, err := t.content(ctx, stored, contentTypeValue(fields))
	if err != nil {
		return Response{}, err
	}
	out.Content = content
	out.BodySize = content.Size
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func isoTime(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(timeLayout)
}

func timingsOf(t *record.Timings) record.Timings {
	if t == nil {
		return record.EmptyTimings()
	}
	return *t
}

func headersSize(raw string) int64 {
	if strings.TrimSpace(raw) == "" {
		return 0
	}
	return bytesize.CalculateBytes(raw) + 4
}

func contentTypeValue(fields []headers.Field) string {
	v, _ := headers.Lookup(fields, "content-type")
	return v
}

func nameValues(fields []headers.Field) []NameValue {
	out := make([]NameValue, 0, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			continue
		}
		out = append(out, NameValue{Name: f.Name, Value: f.Value})
	}
	return out
}

// queryString keeps the parameters in the order they appear in the URL.
func queryString(rawURL string) []NameValue {
	out := []NameValue{}
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return out
	}
	for _, pair := range strings.Split(u.RawQuery, "&") {
		if pair == "" {
			continue
		}
		name, value, _ := strings.Cut(pair, "=")
		out = append(out, NameValue{Name: unescapeQuery(name), Value: unescapeQuery(value)})
	}
	return out
}

func unescapeQuery(s string) string {
	v, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return v
}

func cookieList(values []string, rawURL string) []Cookie {
	out := []Cookie{}
	for _, v := range values {
		jar := cookies.NewJar(v, rawURL)
		for _, c := range jar.Cookies() {
			out = append(out, harCookie(c))
		}
	}
	return out
}

func harCookie(c *cookies.Cookie) Cookie {
	out := Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain(),
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
	}
	if exp, ok := c.Expires(); ok && c.Persistent &&
		exp > cookies.AlreadyExpired && exp < cookies.NeverExpires {
		out.Expires = isoTime(exp)
	}
	return out
}
