package httpclient

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/unkn0wn-root/harkit/internal/errdef"
	"github.com/unkn0wn-root/harkit/internal/payload"
)

// requestBody restores a stored payload into a reader. The returned content
// type is set for blobs and forms, whose shape determines it.
func requestBody(ctx context.Context, r payload.Restorer, stored *payload.Stored) (io.Reader, string, error) {
	body, err := r.Restore(ctx, stored)
	if err != nil {
		return nil, "", errdef.Wrap(errdef.CodeHTTP, err, "restore request payload")
	}
	if payload.IsEmpty(body) {
		return nil, "", nil
	}
	switch v := body.(type) {
	case string:
		return strings.NewReader(v), "", nil
	case []byte:
		return bytes.NewReader(v), "", nil
	case *payload.Blob:
		return bytes.NewReader(v.Data), v.Type, nil
	case *payload.Form:
		data, ct, err := v.Encode()
		if err != nil {
			return nil, "", errdef.Wrap(errdef.CodeHTTP, err, "encode form payload")
		}
		return bytes.NewReader(data), ct, nil
	default:
		return nil, "", errdef.New(errdef.CodeHTTP, "unsupported payload %T", body)
	}
}
