// Package export writes HAR documents to files or the system clipboard.
package export

import (
	"bytes"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	json "github.com/goccy/go-json"
	"github.com/spf13/afero"

	"github.com/unkn0wn-root/harkit/internal/errdef"
	"github.com/unkn0wn-root/harkit/internal/har"
)

const fileExt = ".har"

type Exporter struct {
	fs     afero.Fs
	indent int
	clip   func(string) error
	now    func() time.Time
}

type Option func(*Exporter)

// WithFs replaces the OS filesystem, mostly for tests.
func WithFs(afs afero.Fs) Option {
	return func(e *Exporter) {
		if afs != nil {
			e.fs = afs
		}
	}
}

// WithIndent sets the number of spaces per level; zero writes compact JSON.
func WithIndent(n int) Option {
	return func(e *Exporter) {
		if n < 0 {
			n = 0
		}
		e.indent = n
	}
}

func WithClipboard(write func(string) error) Option {
	return func(e *Exporter) {
		if write != nil {
			e.clip = write
		}
	}
}

func New(opts ...Option) *Exporter {
	e := &Exporter{
		fs:     afero.NewOsFs(),
		indent: 2,
		clip:   clipboard.WriteAll,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encode renders doc as JSON terminated by a newline. HTML characters are
// left unescaped so bodies read the same as on the wire.
func (e *Exporter) Encode(doc *har.Document) ([]byte, error) {
	if doc == nil {
		return nil, errdef.New(errdef.CodeHAR, "no document to export")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if e.indent > 0 {
		enc.SetIndent("", strings.Repeat(" ", e.indent))
	}
	if err := enc.Encode(doc); err != nil {
		return nil, errdef.Wrap(errdef.CodeHAR, err, "encode har")
	}
	return buf.Bytes(), nil
}

// Save writes doc to path. A path naming an existing directory, or ending in
// a separator, receives a timestamped file name. The written path is returned.
func (e *Exporter) Save(doc *har.Document, path string) (string, error) {
	data, err := e.Encode(doc)
	if err != nil {
		return "", err
	}
	target, err := e.resolve(path)
	if err != nil {
		return "", err
	}
	if err := e.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", errdef.Wrap(errdef.CodeFilesystem, err, "create export directory")
	}
	if err := e.writeAtomic(target, data); err != nil {
		return "", errdef.Wrap(errdef.CodeFilesystem, err, "write %s", target)
	}
	return target, nil
}

// Copy places the encoded document on the clipboard.
func (e *Exporter) Copy(doc *har.Document) error {
	data, err := e.Encode(doc)
	if err != nil {
		return err
	}
	if err := e.clip(string(data)); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "copy to clipboard")
	}
	return nil
}

// FileName returns the default export name for t.
func FileName(t time.Time) string {
	return "harkit-" + t.UTC().Format("20060102-150405") + fileExt
}

func (e *Exporter) resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "."
	}
	dirHint := strings.HasSuffix(path, "/") || strings.HasSuffix(path, string(filepath.Separator))
	path = filepath.Clean(path)
	if !dirHint {
		info, err := e.fs.Stat(path)
		switch {
		case err == nil:
			dirHint = info.IsDir()
		case !errors.Is(err, fs.ErrNotExist):
			return "", errdef.Wrap(errdef.CodeFilesystem, err, "stat %s", path)
		}
	}
	if dirHint {
		return filepath.Join(path, FileName(e.now())), nil
	}
	if filepath.Ext(path) == "" {
		path += fileExt
	}
	return path, nil
}

func (e *Exporter) writeAtomic(path string, data []byte) error {
	tmp, err := afero.TempFile(e.fs, filepath.Dir(path), ".harkit-export-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = e.fs.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return errors.Join(err, tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return e.fs.Rename(tmpPath, path)
}
