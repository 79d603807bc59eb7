// Package bytesize estimates the wire size of text and payloads and formats
// byte counts for display.
package bytesize

import (
	"fmt"
	"math"
	"unicode/utf16"

	"github.com/dustin/go-humanize"

	"github.com/unkn0wn-root/harkit/internal/errdef"
	"github.com/unkn0wn-root/harkit/internal/payload"
)

var units = []string{"Bytes", "KB", "MB", "GB", "TB", "PB", "EB", "ZB", "YB"}

// CalculateBytes approximates the UTF-8 length of text by walking its UTF-16
// code units. The low half of a surrogate pair is counted together with its
// high half.
func CalculateBytes(text string) int64 {
	if text == "" {
		return 0
	}
	codes := utf16.Encode([]rune(text))
	size := int64(len(codes))
	for i := len(codes) - 1; i >= 0; i-- {
		code := codes[i]
		switch {
		case code > 0x7f && code <= 0x7ff:
			size++
		case code > 0x7ff:
			size += 2
		}
		if code >= 0xdc00 && code <= 0xdfff {
			i--
		}
	}
	return size
}

// BytesToSize formats bytes with base-1024 units, keeping at most decimals
// fraction digits and dropping trailing zeros.
func BytesToSize(bytes int64, decimals int) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	if decimals < 0 {
		decimals = 0
	}
	const k = 1024.0
	value := float64(bytes)
	i := int(math.Floor(math.Log(value) / math.Log(k)))
	if i >= len(units) {
		i = len(units) - 1
	}
	scaled := value / math.Pow(k, float64(i))
	pow := math.Pow(10, float64(decimals))
	scaled = math.Round(scaled*pow) / pow
	return humanize.FtoaWithDigits(scaled, decimals) + " " + units[i]
}

// ComputePayloadSize dispatches on the runtime shape of p.
func ComputePayloadSize(p any) (int64, error) {
	if payload.IsEmpty(p) {
		return 0, nil
	}
	switch v := p.(type) {
	case []byte:
		return int64(len(v)), nil
	case *payload.Blob:
		return v.Size(), nil
	case *payload.Form:
		body, _, err := v.Encode()
		if err != nil {
			return 0, errdef.Wrap(errdef.CodePayload, err, "measure form payload")
		}
		return int64(len(body)), nil
	case string:
		return CalculateBytes(v), nil
	default:
		return CalculateBytes(fmt.Sprint(v)), nil
	}
}
