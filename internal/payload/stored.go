package payload

import (
	"context"
	"encoding/base64"

	"github.com/unkn0wn-root/harkit/internal/errdef"
)

type Kind string

const (
	KindText   Kind = "string"
	KindBuffer Kind = "buffer"
	KindBlob   Kind = "blob"
	KindForm   Kind = "form"
)

// Stored is the transport encoding of a payload. Binary data travels as
// standard base64.
type Stored struct {
	Kind  Kind         `json:"type"            yaml:"type"`
	Text  string       `json:"text,omitempty"  yaml:"text,omitempty"`
	Data  string       `json:"data,omitempty"  yaml:"data,omitempty"`
	Mime  string       `json:"mime,omitempty"  yaml:"mime,omitempty"`
	Name  string       `json:"name,omitempty"  yaml:"name,omitempty"`
	Parts []StoredPart `json:"parts,omitempty" yaml:"parts,omitempty"`
}

type StoredPart struct {
	Name        string `json:"name"                  yaml:"name"`
	Value       string `json:"value,omitempty"       yaml:"value,omitempty"`
	FileName    string `json:"fileName,omitempty"    yaml:"fileName,omitempty"`
	ContentType string `json:"contentType,omitempty" yaml:"contentType,omitempty"`
	Data        string `json:"data,omitempty"        yaml:"data,omitempty"`
}

// Restorer turns a stored payload back into its runtime shape.
type Restorer interface {
	Restore(ctx context.Context, s *Stored) (any, error)
}

type RestoreFunc func(ctx context.Context, s *Stored) (any, error)

func (fn RestoreFunc) Restore(ctx context.Context, s *Stored) (any, error) {
	return fn(ctx, s)
}

// DefaultRestorer decodes the base64 transport form.
var DefaultRestorer Restorer = RestoreFunc(Restore)

func Restore(_ context.Context, s *Stored) (any, error) {
	if s == nil {
		return nil, nil
	}
	switch s.Kind {
	case KindText, "":
		if s.Text == "" {
			return nil, nil
		}
		return s.Text, nil
	case KindBuffer:
		data, err := decode64(s.Data)
		if err != nil {
			return nil, errdef.Wrap(errdef.CodePayload, err, "decode buffer payload")
		}
		return data, nil
	case KindBlob:
		data, err := decode64(s.Data)
		if err != nil {
			return nil, errdef.Wrap(errdef.CodePayload, err, "decode blob payload")
		}
		return &Blob{Name: s.Name, Type: s.Mime, Data: data}, nil
	case KindForm:
		form := &Form{}
		for _, p := range s.Parts {
			if p.FileName == "" {
				form.Add(p.Name, p.Value)
				continue
			}
			data, err := decode64(p.Data)
			if err != nil {
				return nil, errdef.Wrap(errdef.CodePayload, err, "decode form file %q", p.Name)
			}
			form.AddFile(p.Name, p.FileName, p.ContentType, data)
		}
		return form, nil
	default:
		return nil, errdef.New(errdef.CodePayload, "unsupported payload type %q", s.Kind)
	}
}

func decode64(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

func FromText(text string) *Stored {
	if text == "" {
		return nil
	}
	return &Stored{Kind: KindText, Text: text}
}

func FromBytes(data []byte) *Stored {
	if len(data) == 0 {
		return nil
	}
	return &Stored{Kind: KindBuffer, Data: base64.StdEncoding.EncodeToString(data)}
}

func FromBlob(b *Blob) *Stored {
	if b == nil {
		return nil
	}
	return &Stored{
		Kind: KindBlob,
		Data: base64.StdEncoding.EncodeToString(b.Data),
		Mime: b.Type,
		Name: b.Name,
	}
}

func FromForm(f *Form) *Stored {
	if f == nil {
		return nil
	}
	out := &Stored{Kind: KindForm, Parts: make([]StoredPart, 0, len(f.Parts))}
	for _, p := range f.Parts {
		sp := StoredPart{Name: p.Name, Value: p.Value, FileName: p.FileName, ContentType: p.ContentType}
		if p.isFile() {
			sp.Data = base64.StdEncoding.EncodeToString(p.Data)
		}
		out.Parts = append(out.Parts, sp)
	}
	return out
}
