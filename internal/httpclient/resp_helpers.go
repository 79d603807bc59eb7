package httpclient

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/unkn0wn-root/harkit/internal/errdef"
	"github.com/unkn0wn-root/harkit/internal/nettrace"
	"github.com/unkn0wn-root/harkit/internal/payload"
	"github.com/unkn0wn-root/harkit/internal/record"
)

// Exchange is one finished round trip as seen by the client.
type Exchange struct {
	Name      string
	Sent      *http.Request
	Payload   *payload.Stored
	Response  *http.Response
	Body      []byte
	Err       error
	Start     time.Time
	End       time.Time
	Timeline  *nettrace.Timeline
	Redirects []record.Redirect
}

// Record converts an exchange into a capture record. A failed round trip is
// recorded with status 0 and the error text.
func Record(ex Exchange) *record.Request {
	out := &record.Request{Name: ex.Name, Payload: ex.Payload}
	if ex.Sent != nil {
		out.Method = ex.Sent.Method
		out.URL = ex.Sent.URL.String()
		out.Headers = rawHeaders(ex.Sent.Header)
		out.TransportRequest = &record.TransportRequest{
			Method:    out.Method,
			URL:       out.URL,
			Headers:   out.Headers,
			Payload:   ex.Payload,
			StartTime: ex.Start.UnixMilli(),
			EndTime:   ex.End.UnixMilli(),
		}
	}

	res := &record.Response{
		LoadingTime: float64(ex.End.Sub(ex.Start)) / float64(time.Millisecond),
		Redirects:   ex.Redirects,
	}
	if ex.Timeline != nil {
		t := ex.Timeline.Timings()
		res.Timings = &t
	}
	if ex.Err != nil || ex.Response == nil {
		if ex.Err != nil {
			res.Error = errdef.Message(ex.Err)
		}
		out.Response = res
		return out
	}

	res.Status = ex.Response.StatusCode
	res.StatusText = statusText(ex.Response)
	res.Headers = rawHeaders(ex.Response.Header)
	res.Payload = storedBody(ex.Body, ex.Response.Header.Get("Content-Type"))
	out.Response = res
	return out
}

// rawHeaders renders h as a header block with one line per value, so repeated
// headers such as Set-Cookie stay separate.
func rawHeaders(h http.Header) string {
	if len(h) == 0 {
		return ""
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range h[k] {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(v)
		}
	}
	return b.String()
}

func statusText(resp *http.Response) string {
	code := strconv.Itoa(resp.StatusCode)
	if text := strings.TrimSpace(strings.TrimPrefix(resp.Status, code)); text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

// storedBody keeps textual UTF-8 bodies readable in the record and stores
// everything else as base64.
func storedBody(body []byte, contentType string) *payload.Stored {
	if len(body) == 0 {
		return nil
	}
	cs := strings.ToLower(payload.Charset(contentType))
	if isTextual(contentType) && (cs == "" || cs == "utf-8") && utf8.Valid(body) {
		return payload.FromText(string(body))
	}
	return payload.FromBytes(body)
}

func isTextual(contentType string) bool {
	mt, _, _ := strings.Cut(strings.ToLower(contentType), ";")
	mt = strings.TrimSpace(mt)
	switch {
	case strings.HasPrefix(mt, "text/"):
		return true
	case strings.HasSuffix(mt, "json"), strings.HasSuffix(mt, "+xml"), mt == "application/xml":
		return true
	case mt == "application/javascript", mt == "application/x-www-form-urlencoded":
		return true
	}
	return false
}

// redirectLog records the hops http.Client follows.
type redirectLog struct {
	mu     sync.Mutex
	follow bool
	last   time.Time
	hops   []record.Redirect
}

func newRedirectLog(start time.Time, follow bool) *redirectLog {
	return &redirectLog{follow: follow, last: start}
}

func (l *redirectLog) check(req *http.Request, via []*http.Request) error {
	if !l.follow {
		return http.ErrUseLastResponse
	}
	if len(via) >= maxRedirects {
		return errdef.New(errdef.CodeHTTP, "stopped after %d redirects", maxRedirects)
	}

	now := time.Now()
	hop := record.Redirect{
		URL:       req.URL.String(),
		StartTime: l.last.UnixMilli(),
		EndTime:   now.UnixMilli(),
	}
	if prev := req.Response; prev != nil {
		hop.Response = record.Hop{
			Status:     prev.StatusCode,
			StatusText: statusText(prev),
			Headers:    rawHeaders(prev.Header),
		}
	}

	l.mu.Lock()
	l.hops = append(l.hops, hop)
	l.last = now
	l.mu.Unlock()
	return nil
}

func (l *redirectLog) snapshot() []record.Redirect {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.hops) == 0 {
		return nil
	}
	return append([]record.Redirect(nil), l.hops...)
}
