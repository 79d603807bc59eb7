package main

import (
	"fmt"
	"io"
	"os"

	"github.com/unkn0wn-root/harkit/internal/bytesize"
	"github.com/unkn0wn-root/harkit/internal/errdef"
	"github.com/unkn0wn-root/harkit/internal/headers"
)

func (a *app) runHeaders(args []string) error {
	fs := a.flags("headers")
	isPayload := fs.Bool("payload", false, "validate as payload headers (multipart part)")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: harkit headers [-payload] [file|-]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	text, err := a.readInput(fs.Arg(0))
	if err != nil {
		return err
	}
	fields := headers.Parse(text)
	if err := headers.Check(fields, *isPayload); err != nil {
		return err
	}

	normalised := headers.String(fields)
	if normalised != "" {
		fmt.Fprintln(a.stdout, normalised)
	}
	if ct := headers.FieldsContentType(fields); ct != "" {
		fmt.Fprintf(a.stdout, "# content-type: %s\n", ct)
	}
	size := bytesize.CalculateBytes(normalised)
	fmt.Fprintf(a.stdout, "# %d fields, %s\n", len(headers.Unique(fields)), bytesize.BytesToSize(size, 2))
	return nil
}

func (a *app) readInput(path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(a.stdin)
		if err != nil {
			return "", errdef.Wrap(errdef.CodeFilesystem, err, "read stdin")
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errdef.Wrap(errdef.CodeFilesystem, err, "read %s", path)
	}
	return string(data), nil
}
