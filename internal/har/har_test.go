package har

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MakeNowJust/heredoc"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/unkn0wn-root/harkit/internal/errdef"
	"github.com/unkn0wn-root/harkit/internal/payload"
	"github.com/unkn0wn-root/harkit/internal/record"
	"github.com/unkn0wn-root/harkit/internal/telemetry"
)

func getRecord(url string, start int64, res *record.Response) *record.Request {
	return &record.Request{
		Method: "GET",
		URL:    url,
		TransportRequest: &record.TransportRequest{
			Method:    "GET",
			URL:       url,
			StartTime: start,
			EndTime:   start + 100,
		},
		Response: res,
	}
}

func TestTransformSkipsRequestsWithoutResponse(t *testing.T) {
	tr := NewTransformer()
	doc, err := tr.Transform(context.Background(), []*record.Request{
		{Method: "GET", URL: "https://example.com"},
		getRecord("https://example.com", 1000, &record.Response{Status: 0, Error: "connection refused"}),
		{Method: "GET", URL: "https://example.com", Response: &record.Response{Status: 200}},
	})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if doc.Log.Entries == nil || len(doc.Log.Entries) != 0 {
		t.Fatalf("expected empty non-nil entries, got %#v", doc.Log.Entries)
	}
	if doc.Log.Version != "1.2" || doc.Log.Creator.Name != "harkit" {
		t.Fatalf("unexpected log header %+v", doc.Log)
	}
}

func TestTransformTextResponse(t *testing.T) {
	rec := getRecord("https://example.com/greet?name=Ada&lang=en%20GB&flag", 1_700_000_000_000, &record.Response{
		Status:      200,
		StatusText:  "OK",
		Headers:     "content-type: text/plain",
		Payload:     payload.FromText("hello"),
		LoadingTime: 42.5,
	})
	doc, err := NewTransformer(WithCreator("tests", "1.0")).Transform(context.Background(), []*record.Request{rec})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if len(doc.Log.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(doc.Log.Entries))
	}
	e := doc.Log.Entries[0]
	want := Content{MimeType: "text/plain", Text: "hello", Size: 5}
	if e.Response.Content != want {
		t.Fatalf("content = %+v, want %+v", e.Response.Content, want)
	}
	if e.Response.BodySize != 5 {
		t.Fatalf("expected bodySize 5, got %d", e.Response.BodySize)
	}
	if e.Response.HeadersSize != int64(len("content-type: text/plain")+4) {
		t.Fatalf("unexpected headersSize %d", e.Response.HeadersSize)
	}
	if e.StartedDateTime != "2023-11-14T22:13:20.000Z" {
		t.Fatalf("unexpected startedDateTime %q", e.StartedDateTime)
	}
	if e.Time != 42.5 || e.Cache.Comment == "" {
		t.Fatalf("unexpected time/cache %v %+v", e.Time, e.Cache)
	}
	if e.Timings != record.EmptyTimings() {
		t.Fatalf("expected empty timings, got %+v", e.Timings)
	}
	if e.Request.HTTPVersion != "HTTP/1.1" || e.Request.PostData != nil || e.Request.HeadersSize != 0 {
		t.Fatalf("unexpected request %+v", e.Request)
	}
	wantQuery := []NameValue{{"name", "Ada"}, {"lang", "en GB"}, {"flag", ""}}
	if len(e.Request.QueryString) != len(wantQuery) {
		t.Fatalf("unexpected query %+v", e.Request.QueryString)
	}
	for i, q := range wantQuery {
		if e.Request.QueryString[i] != q {
			t.Fatalf("query[%d] = %+v, want %+v", i, e.Request.QueryString[i], q)
		}
	}
	if doc.Log.Creator != (Creator{Name: "tests", Version: "1.0"}) {
		t.Fatalf("unexpected creator %+v", doc.Log.Creator)
	}
}

func TestTransformRedirectsSortedDescending(t *testing.T) {
	first := getRecord("https://example.com/old", 1000, &record.Response{
		Status:      200,
		StatusText:  "OK",
		LoadingTime: 300,
		Redirects: []record.Redirect{
			{
				URL:       "https://example.com/moved",
				StartTime: 1000,
				EndTime:   1100,
				Response:  record.Hop{Status: 301, StatusText: "Moved Permanently", Headers: "Location: /moved"},
			},
			{
				URL:       "https://example.com/new",
				StartTime: 1100,
				EndTime:   1250,
				Response:  record.Hop{Status: 302, StatusText: "Found", Headers: "Location: /new"},
			},
		},
	})
	second := getRecord("https://example.com/other", 1050, &record.Response{Status: 204})

	doc, err := NewTransformer().Transform(context.Background(), []*record.Request{first, second})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	entries := doc.Log.Entries
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].StartedDateTime < entries[i].StartedDateTime {
			t.Fatalf("entries not sorted descending: %q before %q",
				entries[i-1].StartedDateTime, entries[i].StartedDateTime)
		}
	}

	hop := entries[0]
	if hop.Response.Status != 302 || hop.Response.RedirectURL != "https://example.com/new" {
		t.Fatalf("unexpected newest hop %+v", hop.Response)
	}
	if hop.Request.URL != "https://example.com/moved" || hop.Time != 150 {
		t.Fatalf("unexpected hop request %q time %v", hop.Request.URL, hop.Time)
	}

	var final *Entry
	for i := range entries {
		if entries[i].Response.Status == 200 {
			final = &entries[i]
		}
	}
	if final == nil {
		t.Fatalf("final entry missing")
	}
	if final.Request.URL != "https://example.com/new" || final.Response.RedirectURL != "" {
		t.Fatalf("unexpected final entry %+v", final.Request)
	}
}

func TestCreateEntryRequestDetails(t *testing.T) {
	rec := &record.Request{
		Method: "POST",
		URL:    "https://api.example.com/v1/items",
		TransportRequest: &record.TransportRequest{
			Method: "POST",
			URL:    "https://api.example.com/v1/items",
			Headers: heredoc.Doc(`
				Content-Type: application/json; charset=utf-8
				Cookie: sid=abc; theme=dark
				X-Trace: 1
			`),
			Payload:   payload.FromText(`{"name":"ł"}`),
			StartTime: 5000,
			EndTime:   5200,
		},
		Response: &record.Response{
			Status:     201,
			StatusText: "Created",
			Headers: heredoc.Doc(`
				Content-Type: application/json; charset=ISO-8859-1
				Set-Cookie: sid=new; Path=/; Expires=Wed, 21 Oct 2037 07:28:00 GMT; HttpOnly
				Set-Cookie: temp=1
			`),
			Payload: payload.FromBytes([]byte{'{', '"', 0xe9, '"', '}'}),
		},
	}
	entries, err := NewTransformer().CreateEntry(context.Background(), rec)
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	req := entries[0].Request
	if req.PostData == nil || req.PostData.MimeType != "application/json" || req.PostData.Text != `{"name":"ł"}` {
		t.Fatalf("unexpected postData %+v", req.PostData)
	}
	if req.BodySize != 13 {
		t.Fatalf("expected bodySize 13, got %d", req.BodySize)
	}
	if len(req.Headers) != 3 || req.Headers[2] != (NameValue{"X-Trace", "1"}) {
		t.Fatalf("unexpected headers %+v", req.Headers)
	}
	if len(req.Cookies) != 2 || req.Cookies[1].Name != "theme" || req.Cookies[1].Value != "dark" {
		t.Fatalf("unexpected request cookies %+v", req.Cookies)
	}
	if req.Cookies[0].Expires != "" {
		t.Fatalf("session cookie must not carry expires: %+v", req.Cookies[0])
	}

	res := entries[0].Response
	if res.Content.MimeType != "application/json" || res.Content.Encoding != "ISO-8859-1" {
		t.Fatalf("unexpected content type %+v", res.Content)
	}
	if res.Content.Text != `{"é"}` || res.Content.Size != 5 {
		t.Fatalf("unexpected content %+v", res.Content)
	}
	if len(res.Cookies) != 2 {
		t.Fatalf("expected 2 response cookies, got %+v", res.Cookies)
	}
	sid := res.Cookies[0]
	if sid.Expires != "2037-10-21T07:28:00.000Z" || !sid.HTTPOnly || sid.Path != "/" {
		t.Fatalf("unexpected sid cookie %+v", sid)
	}
	if res.Cookies[1].Domain != "api.example.com" || res.Cookies[1].Path != "/v1" {
		t.Fatalf("expected defaults from url, got %+v", res.Cookies[1])
	}
}

func TestCreateEntryFormAndBlob(t *testing.T) {
	form := &payload.Form{}
	form.Add("title", "report")
	rec := getRecord("https://example.com/upload", 10, &record.Response{
		Status:  200,
		Headers: "Content-Type: application/octet-stream",
		Payload: payload.FromBlob(&payload.Blob{Name: "out.bin", Type: "text/plain", Data: []byte("blob body")}),
	})
	rec.TransportRequest.Method = "POST"
	rec.TransportRequest.Payload = payload.FromForm(form)

	decoder := payload.BlobDecoderFunc(func(_ context.Context, b *payload.Blob) (string, error) {
		return strings.ToUpper(string(b.Data)), nil
	})
	entries, err := NewTransformer(WithBlobDecoder(decoder)).CreateEntry(context.Background(), rec)
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	post := entries[0].Request.PostData
	if post == nil || !strings.HasPrefix(post.MimeType, "multipart/form-data; boundary=") {
		t.Fatalf("unexpected postData %+v", post)
	}
	if !strings.Contains(post.Text, `name="title"`) || !strings.Contains(post.Text, "report") {
		t.Fatalf("form text missing field: %q", post.Text)
	}
	if entries[0].Request.BodySize != int64(len(post.Text)) {
		t.Fatalf("bodySize %d does not match encoded form %d", entries[0].Request.BodySize, len(post.Text))
	}
	content := entries[0].Response.Content
	if content.Text != "BLOB BODY" || content.Size != 9 {
		t.Fatalf("unexpected blob content %+v", content)
	}
}

func TestTransformFailsOnCollaboratorError(t *testing.T) {
	failing := payload.RestoreFunc(func(context.Context, *payload.Stored) (any, error) {
		return nil, errors.New("corrupt payload")
	})
	recorder := tracetest.NewSpanRecorder()
	inst, err := telemetry.New(telemetry.Config{}, telemetry.WithSpanProcessor(recorder))
	if err != nil {
		t.Fatalf("telemetry: %v", err)
	}
	t.Cleanup(func() { _ = inst.Shutdown(context.Background()) })

	tr := NewTransformer(WithRestorer(failing), WithTelemetry(inst))
	ok := getRecord("https://example.com", 1, &record.Response{Status: 200})
	_, err = tr.Transform(context.Background(), []*record.Request{ok})
	if err == nil {
		t.Fatalf("expected transform to fail")
	}
	if errdef.CodeOf(err) != errdef.CodeHAR {
		t.Fatalf("expected har error code, got %q", errdef.CodeOf(err))
	}

	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Status().Code != codes.Error {
		t.Fatalf("expected one failed export span, got %d", len(spans))
	}
}

func TestTransformRecordsExportSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	inst, err := telemetry.New(telemetry.Config{}, telemetry.WithSpanProcessor(recorder))
	if err != nil {
		t.Fatalf("telemetry: %v", err)
	}
	t.Cleanup(func() { _ = inst.Shutdown(context.Background()) })

	tr := NewTransformer(WithTelemetry(inst))
	_, err = tr.Transform(context.Background(), []*record.Request{
		getRecord("https://example.com/a", 1, &record.Response{Status: 200}),
		{Method: "GET", URL: "https://example.com/b"},
	})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	var entries, skipped int64 = -1, -1
	for _, attr := range spans[0].Attributes() {
		switch attr.Key {
		case "harkit.export.entries":
			entries = attr.Value.AsInt64()
		case "harkit.export.skipped":
			skipped = attr.Value.AsInt64()
		}
	}
	if entries != 1 || skipped != 1 {
		t.Fatalf("unexpected span counts entries=%d skipped=%d", entries, skipped)
	}
}
