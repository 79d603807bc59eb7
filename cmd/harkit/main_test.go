package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MakeNowJust/heredoc"
	json "github.com/goccy/go-json"

	"github.com/unkn0wn-root/harkit/internal/errdef"
	"github.com/unkn0wn-root/harkit/internal/har"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HARKIT_CONFIG_DIR", dir)
	t.Setenv("HARKIT_OTEL_ENDPOINT", "")
	return dir
}

func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := run(context.Background(), args, strings.NewReader(stdin), &out, &errOut)
	return out.String(), err
}

func TestRunUnknownCommand(t *testing.T) {
	isolate(t)
	if _, err := runCmd(t, ""); !errors.Is(err, errUsage) {
		t.Fatalf("expected usage error for no args, got %v", err)
	}
	_, err := runCmd(t, "", "bogus")
	if !errors.Is(err, errUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if !strings.Contains(err.Error(), `"bogus"`) {
		t.Fatalf("expected command name in error, got %v", err)
	}
}

func TestRunVersion(t *testing.T) {
	out, err := runCmd(t, "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "harkit dev\n") {
		t.Fatalf("unexpected version output %q", out)
	}
}

func TestHeadersCommand(t *testing.T) {
	isolate(t)
	input := heredoc.Doc(`
		Accept: text/html
		X-Request-Id: 42
		accept: application/json
		Content-Type: application/json; charset=utf-8
	`)
	out, err := runCmd(t, input, "headers", "-payload")
	if err != nil {
		t.Fatalf("headers: %v", err)
	}
	if !strings.Contains(out, "X-Request-Id: 42") {
		t.Fatalf("expected normalised header in output, got %q", out)
	}
	if !strings.Contains(out, "# 3 fields") {
		t.Fatalf("expected duplicate names folded, got %q", out)
	}
	if !strings.Contains(out, "# content-type: application/json") {
		t.Fatalf("expected content type, got %q", out)
	}
}

func TestHeadersCommandRejectsInvalid(t *testing.T) {
	isolate(t)
	_, err := runCmd(t, "Bad Name: x\nX-Empty:\n", "headers")
	if errdef.CodeOf(err) != errdef.CodeHeader {
		t.Fatalf("expected header error, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "whitespaces") || !strings.Contains(msg, "should not be empty") {
		t.Fatalf("expected both problems reported, got %q", msg)
	}
}

func TestCookiesCommand(t *testing.T) {
	isolate(t)
	out, err := runCmd(t, "",
		"cookies",
		"-url", "https://example.com/app/page",
		"-cookie", "a=1",
		"-set-cookie", "b=2; Path=/app",
		"-set-cookie", "c=3; Path=/other",
	)
	if err != nil {
		t.Fatalf("cookies: %v", err)
	}
	if !strings.Contains(out, "Cookie: a=1; b=2\n") {
		t.Fatalf("expected matching cookies, got %q", out)
	}
	if !strings.Contains(out, "# not sent: c") {
		t.Fatalf("expected path mismatch reported, got %q", out)
	}
}

func TestCookiesCommandRequiresURL(t *testing.T) {
	isolate(t)
	_, err := runCmd(t, "", "cookies", "-cookie", "a=1")
	if errdef.CodeOf(err) != errdef.CodeCookie {
		t.Fatalf("expected cookie error, got %v", err)
	}
}

func TestCaptureThenExport(t *testing.T) {
	dir := isolate(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	harPath := filepath.Join(dir, "out", "capture.har")
	out, err := runCmd(t, "", "capture", "-name", "greeting", "-o", harPath, srv.URL+"/hello")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if !strings.Contains(out, "-> 200 OK") {
		t.Fatalf("expected summary line, got %q", out)
	}

	data, err := os.ReadFile(harPath)
	if err != nil {
		t.Fatalf("read har: %v", err)
	}
	var doc har.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode har: %v", err)
	}
	if len(doc.Log.Entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(doc.Log.Entries))
	}
	entry := doc.Log.Entries[0]
	if entry.Response.Status != 200 || entry.Response.Content.Text != "hello" {
		t.Fatalf("unexpected response %+v", entry.Response)
	}

	out, err = runCmd(t, "", "export", "-stdout", "-url", srv.URL+"/hello/")
	if err != nil {
		t.Fatalf("export from history: %v", err)
	}
	if !strings.Contains(out, `"text": "hello"`) {
		t.Fatalf("expected history record exported, got %q", out)
	}
}

func TestExportWithoutRecords(t *testing.T) {
	isolate(t)
	_, err := runCmd(t, "", "export", "-stdout")
	if errdef.CodeOf(err) != errdef.CodeHAR {
		t.Fatalf("expected har error, got %v", err)
	}
}

func TestExportFromRecordFile(t *testing.T) {
	dir := isolate(t)
	src := filepath.Join(dir, "records.yaml")
	content := heredoc.Doc(`
		- name: ping
		  method: GET
		  url: https://api.example.com/ping
		  transportRequest:
		    method: GET
		    url: https://api.example.com/ping
		    headers: "Accept: */*"
		    startTime: 1700000000000
		    endTime: 1700000000120
		  response:
		    status: 204
		    statusText: No Content
		    loadingTime: 120
		- name: failed
		  method: GET
		  url: https://api.example.com/down
		  transportRequest:
		    method: GET
		    url: https://api.example.com/down
		  response:
		    status: 0
		    error: connection refused
	`)
	if err := os.WriteFile(src, []byte(content), 0o644); err != nil {
		t.Fatalf("write records: %v", err)
	}

	out, err := runCmd(t, "", "export", "-stdout", "-indent", "0", src)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	var doc har.Document
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Log.Entries) != 1 {
		t.Fatalf("expected failed record skipped, got %d entries", len(doc.Log.Entries))
	}
	if doc.Log.Entries[0].Response.Status != 204 {
		t.Fatalf("unexpected status %d", doc.Log.Entries[0].Response.Status)
	}
}
