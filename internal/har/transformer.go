package har

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/harkit/internal/payload"
	"github.com/unkn0wn-root/harkit/internal/record"
	"github.com/unkn0wn-root/harkit/internal/telemetry"
)

const (
	defaultCreatorName    = "harkit"
	defaultCreatorVersion = "dev"
)

// Transformer builds HAR documents. The zero value is not usable; create one
// with NewTransformer.
type Transformer struct {
	creator  Creator
	restorer payload.Restorer
	blobs    payload.BlobDecoder
	tel      telemetry.Instrumenter
}

type Option func(*Transformer)

func WithCreator(name, version string) Option {
	return func(t *Transformer) {
		if name != "" {
			t.creator.Name = name
		}
		if version != "" {
			t.creator.Version = version
		}
	}
}

// WithRestorer replaces the collaborator that turns stored payloads back into
// their runtime shape.
func WithRestorer(r payload.Restorer) Option {
	return func(t *Transformer) {
		if r != nil {
			t.restorer = r
		}
	}
}

func WithBlobDecoder(d payload.BlobDecoder) Option {
	return func(t *Transformer) {
		if d != nil {
			t.blobs = d
		}
	}
}

func WithTelemetry(inst telemetry.Instrumenter) Option {
	return func(t *Transformer) {
		if inst != nil {
			t.tel = inst
		}
	}
}

func NewTransformer(opts ...Option) *Transformer {
	t := &Transformer{
		creator:  Creator{Name: defaultCreatorName, Version: defaultCreatorVersion},
		restorer: payload.DefaultRestorer,
		blobs:    payload.CharsetBlobDecoder{},
		tel:      telemetry.Noop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transformer) Creator() Creator {
	return t.creator
}

// Transform converts every request concurrently and returns the entries
// sorted newest first. Requests that produce no entry are skipped. Any
// collaborator failure fails the whole call.
func (t *Transformer) Transform(ctx context.Context, reqs []*record.Request) (*Document, error) {
	ctx, span := t.tel.StartExport(ctx, telemetry.ExportStart{
		Records: len(reqs),
		Creator: t.creator.Name,
	})

	results := make([][]Entry, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		g.Go(func() error {
			entries, err := t.CreateEntry(gctx, req)
			if err != nil {
				return err
			}
			results[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.End(telemetry.ExportResult{Err: err})
		return nil, err
	}

	entries := make([]Entry, 0, len(reqs))
	skipped := 0
	for _, res := range results {
		if len(res) == 0 {
			skipped++
			continue
		}
		entries = append(entries, res...)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].started > entries[j].started
	})

	span.End(telemetry.ExportResult{Entries: len(entries), Skipped: skipped})
	return &Document{Log: Log{
		Version: Version,
		Creator: t.creator,
		Entries: entries,
	}}, nil
}
