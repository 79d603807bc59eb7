// Package payload models the runtime shapes a request or response body can
// take (text, binary buffer, blob, multipart form) and the stored transport
// encoding records use to carry them.
package payload

import (
	"bytes"
	"mime/multipart"
	"net/textproto"

	"github.com/unkn0wn-root/harkit/internal/errdef"
)

// Blob is a binary large object with a declared media type.
type Blob struct {
	Name string
	Type string
	Data []byte
}

func (b *Blob) Size() int64 {
	if b == nil {
		return 0
	}
	return int64(len(b.Data))
}

// Part is one multipart field. Parts with a FileName are encoded as file uploads.
type Part struct {
	Name        string
	Value       string
	FileName    string
	ContentType string
	Data        []byte
}

func (p Part) isFile() bool {
	return p.FileName != ""
}

type Form struct {
	Parts []Part
}

func (f *Form) Add(name, value string) {
	f.Parts = append(f.Parts, Part{Name: name, Value: value})
}

func (f *Form) AddFile(name, fileName, contentType string, data []byte) {
	f.Parts = append(f.Parts, Part{
		Name:        name,
		FileName:    fileName,
		ContentType: contentType,
		Data:        data,
	})
}

func (f *Form) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Parts)
}

// Encode writes the form into a throwaway multipart body and returns the
// bytes with the matching content type.
func (f *Form) Encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if f != nil {
		for _, part := range f.Parts {
			if err := writePart(w, part); err != nil {
				return nil, "", errdef.Wrap(errdef.CodePayload, err, "encode form part %q", part.Name)
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", errdef.Wrap(errdef.CodePayload, err, "close multipart body")
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func writePart(w *multipart.Writer, part Part) error {
	if !part.isFile() {
		return w.WriteField(part.Name, part.Value)
	}
	if part.ContentType == "" {
		fw, err := w.CreateFormFile(part.Name, part.FileName)
		if err != nil {
			return err
		}
		_, err = fw.Write(part.Data)
		return err
	}
	h := make(textproto.MIMEHeader, 2)
	h.Set("Content-Disposition", `form-data; name="`+escapeQuotes(part.Name)+
		`"; filename="`+escapeQuotes(part.FileName)+`"`)
	h.Set("Content-Type", part.ContentType)
	fw, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = fw.Write(part.Data)
	return err
}

func escapeQuotes(s string) string {
	var b bytes.Buffer
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\', '"':
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// IsEmpty reports whether p carries no body at all.
func IsEmpty(p any) bool {
	switch v := p.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []byte:
		return len(v) == 0
	case *Blob:
		return v == nil
	case *Form:
		return v == nil
	default:
		return false
	}
}
