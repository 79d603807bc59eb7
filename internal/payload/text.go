package payload

import (
	"context"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// BlobDecoder reads a blob as text.
type BlobDecoder interface {
	DecodeBlob(ctx context.Context, b *Blob) (string, error)
}

type BlobDecoderFunc func(ctx context.Context, b *Blob) (string, error)

func (fn BlobDecoderFunc) DecodeBlob(ctx context.Context, b *Blob) (string, error) {
	return fn(ctx, b)
}

// CharsetBlobDecoder decodes blob bytes with the charset named in the
// blob's media type, UTF-8 otherwise.
type CharsetBlobDecoder struct{}

func (CharsetBlobDecoder) DecodeBlob(ctx context.Context, b *Blob) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if b == nil {
		return "", nil
	}
	return DecodeText(b.Data, Charset(b.Type)), nil
}

// DecodeText is a best-effort decode: an unknown charset or bytes that do not
// decode yield an empty string.
func DecodeText(data []byte, charset string) string {
	if len(data) == 0 {
		return ""
	}
	cs := strings.ToLower(strings.TrimSpace(charset))
	if cs == "" || cs == "utf-8" || cs == "utf8" {
		if !utf8.Valid(data) {
			return ""
		}
		return string(data)
	}
	enc, err := htmlindex.Get(cs)
	if err != nil {
		return ""
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return ""
	}
	return string(decoded)
}

// Charset extracts the charset parameter of a media type value.
func Charset(contentType string) string {
	parts := strings.Split(contentType, ";")
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if len(p) < len("charset=") || !strings.EqualFold(p[:len("charset=")], "charset=") {
			continue
		}
		return strings.Trim(strings.TrimSpace(p[len("charset="):]), `"`)
	}
	return ""
}
