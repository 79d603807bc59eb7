package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/unkn0wn-root/harkit/internal/authcache"
	"github.com/unkn0wn-root/harkit/internal/errdef"
	"github.com/unkn0wn-root/harkit/internal/httpclient"
	"github.com/unkn0wn-root/harkit/internal/payload"
	"github.com/unkn0wn-root/harkit/internal/record"
)

func (a *app) runCapture(ctx context.Context, args []string) error {
	capture := a.settings.Capture
	fs := a.flags("capture")
	method := fs.String("X", "GET", "request method")
	name := fs.String("name", "", "request name stored with the record")
	var hdrs listFlag
	fs.Var(&hdrs, "H", "request header \"Name: value\" (repeatable)")
	data := fs.String("d", "", "request body")
	dataFile := fs.String("data-file", "", "read the request body from a file")
	user := fs.String("u", "", "basic auth credentials user:password")
	bearer := fs.String("bearer", "", "bearer token")
	timeout := fs.Duration("timeout", capture.TimeoutDuration(), "request timeout")
	follow := fs.Bool("follow", capture.Follow(), "follow redirects")
	insecure := fs.Bool("insecure", capture.Insecure, "skip TLS certificate verification")
	proxy := fs.String("proxy", capture.Proxy, "HTTP proxy URL")
	trace := fs.Bool("trace", true, "trace connection phases for HAR timings")
	out := fs.String("o", "", "also export the captured record to this HAR path")
	noHistory := fs.Bool("no-history", false, "do not store the record in history")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: harkit capture [flags] URL")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errdef.New(errdef.CodeHTTP, "capture needs exactly one URL")
	}

	req := httpclient.Request{
		Name:    *name,
		Method:  *method,
		URL:     fs.Arg(0),
		Headers: strings.Join(hdrs, "\n"),
		Auth:    authSpec(*user, *bearer),
	}
	switch {
	case *dataFile != "":
		body, err := os.ReadFile(*dataFile)
		if err != nil {
			return errdef.Wrap(errdef.CodeFilesystem, err, "read %s", *dataFile)
		}
		req.Payload = payload.FromBytes(body)
	case *data != "":
		req.Payload = payload.FromText(*data)
	}

	client := httpclient.NewClient(authcache.New())
	client.SetTelemetry(a.tel)
	rec, captureErr := client.Capture(ctx, req, httpclient.Options{
		Timeout:            *timeout,
		FollowRedirects:    *follow,
		InsecureSkipVerify: *insecure,
		ProxyURL:           *proxy,
		Trace:              *trace,
	})
	if rec == nil {
		return captureErr
	}

	if !*noHistory {
		store := a.history()
		if err := store.Load(); err != nil {
			log.Printf("history load error: %v", err)
		}
		entry, err := store.Append(rec)
		if err != nil {
			log.Printf("history save error: %v", err)
		} else {
			rec.ID = entry.ID
		}
	}
	if captureErr != nil {
		return captureErr
	}

	fmt.Fprintln(a.stdout, summary(rec))
	if *out != "" {
		return a.writeHAR(ctx, []*record.Request{rec}, exportTarget{
			path:    *out,
			indent:  a.settings.Export.Indent,
			creator: a.settings.Creator.Name,
		})
	}
	return nil
}

func authSpec(user, bearer string) *httpclient.AuthSpec {
	switch {
	case user != "":
		username, password, _ := strings.Cut(user, ":")
		return &httpclient.AuthSpec{
			Type:   "basic",
			Params: map[string]string{"username": username, "password": password},
		}
	case bearer != "":
		return &httpclient.AuthSpec{
			Type:   "bearer",
			Params: map[string]string{"token": bearer},
		}
	}
	return nil
}

func summary(rec *record.Request) string {
	resp := rec.Response
	line := fmt.Sprintf("%s %s -> %d %s (%.1f ms)",
		rec.TransportRequest.Method, rec.TransportRequest.URL,
		resp.Status, resp.StatusText, resp.LoadingTime)
	if n := len(resp.Redirects); n > 0 {
		line += fmt.Sprintf(", %d redirect(s)", n)
	}
	if rec.ID != "" {
		line += " [" + rec.ID + "]"
	}
	return line
}
