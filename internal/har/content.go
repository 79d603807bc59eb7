package har

import (
	"context"
	"fmt"
	"strings"

	"github.com/unkn0wn-root/harkit/internal/bytesize"
	"github.com/unkn0wn-root/harkit/internal/errdef"
	"github.com/unkn0wn-root/harkit/internal/payload"
)

// bodyText renders a restored payload as HAR text. Blobs go through the blob
// decoder, forms are encoded first, other binary data is decoded with the
// charset from contentType. The returned mime type is only set for forms,
// where the encoder picks the boundary.
func (t *Transformer) bodyText(ctx context.Context, body any, contentType string) (string, string, error) {
	switch v := body.(type) {
	case nil:
		return "", "", nil
	case string:
		return v, "", nil
	case *payload.Blob:
		text, err := t.blobs.DecodeBlob(ctx, v)
		if err != nil {
			return "", "", err
		}
		return text, "", nil
	case *payload.Form:
		data, mime, err := v.Encode()
		if err != nil {
			return "", "", err
		}
		return payload.DecodeText(data, ""), mime, nil
	case []byte:
		return payload.DecodeText(v, payload.Charset(contentType)), "", nil
	default:
		return fmt.Sprint(v), "", nil
	}
}

// content builds the response content. The mime type is the media type of the
// content-type header without parameters and the encoding is its charset.
func (t *Transformer) content(ctx context.Context, stored *payload.Stored, contentType string) (Content, error) {
	mime, _, _ := strings.Cut(contentType, ";")
	out := Content{
		MimeType: strings.TrimSpace(mime),
		Encoding: payload.Charset(contentType),
	}

	body, err := t.restorer.Restore(ctx, stored)
	if err != nil {
		return Content{}, errdef.Wrap(errdef.CodeHAR, err, "restore response payload")
	}
	if payload.IsEmpty(body) {
		return out, nil
	}

	size, err := bytesize.ComputePayloadSize(body)
	if err != nil {
		return Content{}, errdef.Wrap(errdef.CodeHAR, err, "measure response payload")
	}
	text, _, err := t.bodyText(ctx, body, contentType)
	if err != nil {
		return Content{}, errdef.Wrap(errdef.CodeHAR, err, "decode response payload")
	}
	out.Size = size
	out.Text = text
	return out, nil
}
