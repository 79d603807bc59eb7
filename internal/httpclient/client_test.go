package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/unkn0wn-root/harkit/internal/authcache"
	"github.com/unkn0wn-root/harkit/internal/errdef"
	"github.com/unkn0wn-root/harkit/internal/har"
	"github.com/unkn0wn-root/harkit/internal/payload"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/hello", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Add("Set-Cookie", "a=1; Path=/")
		w.Header().Add("Set-Cookie", "b=2; Expires=Wed, 21 Oct 2037 07:28:00 GMT")
		fmt.Fprint(w, "hello")
	})
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/hello", http.StatusFound)
	})
	mux.HandleFunc("/form", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, r.FormValue("title"))
	})
	mux.HandleFunc("/private", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "ada" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, "welcome")
	})
	mux.HandleFunc("/bin", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte{0xff, 0x00, 0x01})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCaptureTextResponse(t *testing.T) {
	srv := newServer(t)
	c := NewClient(nil)

	rec, err := c.Capture(context.Background(), Request{
		Method:  "get",
		URL:     srv.URL + "/hello?x=1",
		Headers: "Accept: text/plain",
	}, Options{FollowRedirects: true, Trace: true})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if rec.Method != "GET" || rec.TransportRequest == nil {
		t.Fatalf("unexpected record %+v", rec)
	}
	if !strings.Contains(rec.TransportRequest.Headers, "Accept: text/plain") {
		t.Fatalf("sent headers missing: %q", rec.TransportRequest.Headers)
	}
	res := rec.Response
	if res.Status != 200 || res.StatusText != "OK" {
		t.Fatalf("unexpected status %d %q", res.Status, res.StatusText)
	}
	if res.Payload == nil || res.Payload.Kind != payload.KindText || res.Payload.Text != "hello" {
		t.Fatalf("unexpected payload %+v", res.Payload)
	}
	if strings.Count(res.Headers, "Set-Cookie: ") != 2 {
		t.Fatalf("expected separate Set-Cookie lines, got %q", res.Headers)
	}
	if res.Timings == nil || res.Timings.Wait < 0 || res.Timings.SSL != -1 {
		t.Fatalf("unexpected timings %+v", res.Timings)
	}
	if rec.TransportRequest.EndTime < rec.TransportRequest.StartTime {
		t.Fatalf("end before start")
	}
}

func TestCaptureRedirectsExportToHAR(t *testing.T) {
	srv := newServer(t)
	c := NewClient(nil)

	rec, err := c.Capture(context.Background(), Request{URL: srv.URL + "/old"}, Options{FollowRedirects: true})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	hops := rec.Response.Redirects
	if len(hops) != 1 {
		t.Fatalf("expected 1 redirect, got %d", len(hops))
	}
	if hops[0].URL != srv.URL+"/hello" || hops[0].Response.Status != http.StatusFound {
		t.Fatalf("unexpected hop %+v", hops[0])
	}

	entries, err := har.NewTransformer().CreateEntry(context.Background(), rec)
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Request.URL != srv.URL+"/old" || entries[0].Response.RedirectURL != srv.URL+"/hello" {
		t.Fatalf("unexpected redirect entry %+v", entries[0])
	}
	final := entries[1]
	if final.Response.Content.Text != "hello" || len(final.Response.Cookies) != 2 {
		t.Fatalf("unexpected final entry %+v", final.Response)
	}
	if final.Response.Cookies[1].Expires != "2037-10-21T07:28:00.000Z" {
		t.Fatalf("unexpected cookie %+v", final.Response.Cookies[1])
	}
}

func TestCaptureWithoutFollowingRedirects(t *testing.T) {
	srv := newServer(t)
	rec, err := NewClient(nil).Capture(context.Background(), Request{URL: srv.URL + "/old"}, Options{})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if rec.Response.Status != http.StatusFound || len(rec.Response.Redirects) != 0 {
		t.Fatalf("unexpected response %+v", rec.Response)
	}
}

func TestCaptureTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	rec, err := NewClient(nil).Capture(context.Background(), Request{URL: url}, Options{Trace: true})
	if err == nil {
		t.Fatalf("expected transport error")
	}
	if errdef.CodeOf(err) != errdef.CodeHTTP {
		t.Fatalf("expected http error code, got %q", errdef.CodeOf(err))
	}
	if rec == nil || !rec.Response.IsTransportError() || rec.Response.Error == "" {
		t.Fatalf("expected transport error record, got %+v", rec)
	}
	entries, err := har.NewTransformer().CreateEntry(context.Background(), rec)
	if err != nil || entries != nil {
		t.Fatalf("transport errors must not produce entries: %v %v", entries, err)
	}
}

func TestCaptureFormPayload(t *testing.T) {
	srv := newServer(t)
	form := &payload.Form{}
	form.Add("title", "report")
	form.AddFile("file", "a.txt", "text/plain", []byte("data"))

	rec, err := NewClient(nil).Capture(context.Background(), Request{
		Method:  http.MethodPost,
		URL:     srv.URL + "/form",
		Payload: payload.FromForm(form),
	}, Options{})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if rec.Response.Status != 200 || rec.Response.Payload == nil || rec.Response.Payload.Text != "report" {
		t.Fatalf("unexpected response %+v", rec.Response)
	}
	if !strings.Contains(rec.TransportRequest.Headers, "Content-Type: multipart/form-data; boundary=") {
		t.Fatalf("expected multipart content type, got %q", rec.TransportRequest.Headers)
	}
}

func TestCaptureBinaryBodyStoredAsBuffer(t *testing.T) {
	srv := newServer(t)
	rec, err := NewClient(nil).Capture(context.Background(), Request{URL: srv.URL + "/bin"}, Options{})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if rec.Response.Payload == nil || rec.Response.Payload.Kind != payload.KindBuffer {
		t.Fatalf("expected buffer payload, got %+v", rec.Response.Payload)
	}
}

func TestCaptureReusesCachedBasicAuth(t *testing.T) {
	srv := newServer(t)
	cache := authcache.New()
	c := NewClient(cache)

	first, err := c.Capture(context.Background(), Request{
		URL:  srv.URL + "/private",
		Auth: &AuthSpec{Type: "basic", Params: map[string]string{"username": "ada", "password": "secret"}},
	}, Options{})
	if err != nil || first.Response.Status != 200 {
		t.Fatalf("first capture failed: %v %+v", err, first.Response)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected credentials to be cached")
	}

	second, err := c.Capture(context.Background(), Request{URL: srv.URL + "/private"}, Options{})
	if err != nil || second.Response.Status != 200 {
		t.Fatalf("expected cached credentials to be reused: %v %+v", err, second.Response)
	}

	_, err = c.Capture(context.Background(), Request{
		URL:  srv.URL + "/private",
		Auth: &AuthSpec{Type: "basic", Params: map[string]string{"username": "ada", "password": "wrong"}},
	}, Options{})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("rejected credentials must be forgotten")
	}
}

func TestCaptureRejectsBadHeaders(t *testing.T) {
	_, err := NewClient(nil).Capture(context.Background(), Request{
		URL:     "http://example.invalid",
		Headers: "Bad Name: x",
	}, Options{})
	if errdef.CodeOf(err) != errdef.CodeHeader {
		t.Fatalf("expected header error, got %v", err)
	}

	if _, err := NewClient(nil).Capture(context.Background(), Request{}, Options{}); errdef.CodeOf(err) != errdef.CodeHTTP {
		t.Fatalf("expected http error for empty url, got %v", err)
	}
}
