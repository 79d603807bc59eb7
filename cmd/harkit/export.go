package main

import (
	"context"
	"fmt"
	"log"

	"github.com/unkn0wn-root/harkit/internal/errdef"
	"github.com/unkn0wn-root/harkit/internal/export"
	"github.com/unkn0wn-root/harkit/internal/har"
	"github.com/unkn0wn-root/harkit/internal/history"
	"github.com/unkn0wn-root/harkit/internal/record"
)

func (a *app) runExport(ctx context.Context, args []string) error {
	fs := a.flags("export")
	out := fs.String("o", a.settings.Export.Dir, "output file or directory")
	indent := fs.Int("indent", a.settings.Export.Indent, "spaces per indent level, 0 for compact")
	toClipboard := fs.Bool("clipboard", a.settings.Export.Clipboard, "copy the HAR to the clipboard instead of a file")
	toStdout := fs.Bool("stdout", false, "write the HAR to stdout")
	fromHistory := fs.Bool("history", false, "include records from capture history")
	urlFilter := fs.String("url", "", "only include history records for this URL")
	creatorName := fs.String("creator", a.settings.Creator.Name, "creator name recorded in the log")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: harkit export [flags] [records.json|records.yaml ...]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	useHistory := *fromHistory || *urlFilter != "" || fs.NArg() == 0
	recs, err := a.loadRecords(fs.Args(), useHistory, *urlFilter)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return errdef.New(errdef.CodeHAR, "no records to export")
	}
	if n := unusable(recs); n > 0 {
		log.Printf("skipping %d record(s) without a usable response", n)
	}

	return a.writeHAR(ctx, recs, exportTarget{
		path:      *out,
		indent:    *indent,
		creator:   *creatorName,
		clipboard: *toClipboard,
		stdout:    *toStdout,
	})
}

type exportTarget struct {
	path      string
	indent    int
	creator   string
	clipboard bool
	stdout    bool
}

func (a *app) writeHAR(ctx context.Context, recs []*record.Request, target exportTarget) error {
	tr := har.NewTransformer(
		har.WithCreator(target.creator, a.settings.Creator.Version),
		har.WithTelemetry(a.tel),
	)
	doc, err := tr.Transform(ctx, recs)
	if err != nil {
		return err
	}

	exp := export.New(
		export.WithFs(a.fs),
		export.WithIndent(target.indent),
		export.WithClipboard(a.clip),
	)
	switch {
	case target.stdout:
		data, err := exp.Encode(doc)
		if err != nil {
			return err
		}
		_, err = a.stdout.Write(data)
		return err
	case target.clipboard:
		if err := exp.Copy(doc); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "Copied %d entries to the clipboard\n", len(doc.Log.Entries))
		return nil
	}

	path, err := exp.Save(doc, target.path)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Wrote %d entries to %s\n", len(doc.Log.Entries), path)
	return nil
}

func (a *app) loadRecords(files []string, useHistory bool, urlFilter string) ([]*record.Request, error) {
	var recs []*record.Request
	for _, path := range files {
		loaded, err := record.LoadFile(path)
		if err != nil {
			return nil, err
		}
		recs = append(recs, loaded...)
	}
	if !useHistory {
		return recs, nil
	}

	store := a.history()
	if err := store.Load(); err != nil {
		return nil, err
	}
	if urlFilter == "" {
		return append(recs, store.Records()...), nil
	}
	for _, e := range store.ByURL(urlFilter) {
		recs = append(recs, e.Record)
	}
	return recs, nil
}

func (a *app) history() *history.Store {
	return history.NewStore(a.settings.History.Path, a.settings.History.MaxEntries)
}

// unusable counts records the transformer will drop.
func unusable(recs []*record.Request) int {
	n := 0
	for _, r := range recs {
		if r == nil || r.TransportRequest == nil || r.Response == nil || r.Response.IsTransportError() {
			n++
		}
	}
	return n
}
