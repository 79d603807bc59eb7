// Package headers converts between the raw "Name: value" text form of an
// HTTP header block and ordered field lists, and provides a case-insensitive
// header table for the request pipeline.
package headers

import (
	"net/http"
	"regexp"
	"sort"
	"strings"
)

// Field is one header line. Required marks fields that must be serialized
// even when their value is empty.
type Field struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Enabled  bool   `json:"enabled"`
	Required bool   `json:"-"`
}

var contentTypeRe = regexp.MustCompile(`(?im)^content-type:\s?(.*)$`)

// Parse reads a header block. A new header starts only after a newline that is
// followed by a non-blank character; indented continuation lines stay part of
// the previous header.
func Parse(text string) []Field {
	lines := splitLines(text)
	out := make([]Field, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx == -1 {
			out = append(out, Field{Name: line, Enabled: true})
			continue
		}
		out = append(out, Field{
			Name:    line[:idx],
			Value:   strings.TrimSpace(line[idx+1:]),
			Enabled: true,
		})
	}
	return out
}

func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	out := make([]string, 0, len(raw))
	for i, line := range raw {
		if i > 0 && len(out) > 0 && isContinuation(line, i == len(raw)-1) {
			out[len(out)-1] += "\n" + line
			continue
		}
		out = append(out, line)
	}
	return out
}

func isContinuation(line string, last bool) bool {
	if line == "" {
		return last
	}
	return line[0] == ' ' || line[0] == '\t'
}

// FromHTTP returns one field per distinct case-insensitive name with repeated
// values folded by ", ". Names are emitted in sorted order.
func FromHTTP(h http.Header) []Field {
	if len(h) == 0 {
		return nil
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []Field
	index := make(map[string]int, len(keys))
	for _, k := range keys {
		value := strings.Join(h[k], ", ")
		lower := strings.ToLower(k)
		if i, ok := index[lower]; ok {
			out[i].Value = foldValue(out[i].Value, value)
			continue
		}
		index[lower] = len(out)
		out = append(out, Field{Name: k, Value: value, Enabled: true})
	}
	return out
}

// FromTable returns the table's entries in insertion order.
func FromTable(t *Table) []Field {
	if t == nil {
		return nil
	}
	out := make([]Field, 0, t.Len())
	for name, value := range t.Entries() {
		out = append(out, Field{Name: name, Value: value, Enabled: true})
	}
	return out
}

// Unique merges fields sharing a case-insensitive name. Disabled fields are
// dropped; the first occurrence keeps its name and position.
func Unique(fields []Field) []Field {
	out := make([]Field, 0, len(fields))
	index := make(map[string]int, len(fields))
	for _, f := range fields {
		if !f.Enabled {
			continue
		}
		key := strings.ToLower(f.Name)
		if i, ok := index[key]; ok {
			out[i].Value = foldValue(out[i].Value, f.Value)
			out[i].Required = out[i].Required || f.Required
			continue
		}
		index[key] = len(out)
		out = append(out, f)
	}
	return out
}

func foldValue(existing, next string) string {
	switch {
	case next == "":
		return existing
	case existing == "":
		return next
	default:
		return existing + ", " + next
	}
}

// String serializes fields after folding duplicates.
func String(fields []Field) string {
	var b strings.Builder
	for _, f := range Unique(fields) {
		if f.Name == "" && f.Value == "" {
			continue
		}
		if f.Value == "" && !f.Required {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Value)
	}
	return b.String()
}

// ContentType extracts the content-type value from a header block. Parameters
// are removed for everything but multipart types.
func ContentType(text string) string {
	m := contentTypeRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return trimMediaParams(m[1])
}

func FieldsContentType(fields []Field) string {
	value, ok := Lookup(fields, "content-type")
	if !ok {
		return ""
	}
	return trimMediaParams(value)
}

func trimMediaParams(value string) string {
	value = strings.TrimSpace(value)
	if strings.Contains(strings.ToLower(value), "multipart") {
		return value
	}
	if i := strings.Index(value, "; "); i != -1 {
		value = value[:i]
	}
	return value
}

// Lookup returns the raw value of the first field named name.
func Lookup(fields []Field, name string) (string, bool) {
	for _, f := range fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// All returns the values of every field named name in order.
func All(fields []Field, name string) []string {
	var out []string
	for _, f := range fields {
		if strings.EqualFold(f.Name, name) {
			out = append(out, f.Value)
		}
	}
	return out
}

func ReplaceFields(fields []Field, name, value string) []Field {
	out := make([]Field, len(fields), len(fields)+1)
	copy(out, fields)
	for i := range out {
		if strings.EqualFold(out[i].Name, name) {
			out[i].Value = value
			return out
		}
	}
	return append(out, Field{Name: name, Value: value, Enabled: true})
}

// ReplaceText works on a header block and returns the re-serialized block.
func ReplaceText(text, name, value string) string {
	return String(ReplaceFields(Parse(text), name, value))
}

// ReplaceHTTP returns a copy of h with name set to value. An existing key that
// matches case-insensitively keeps its spelling.
func ReplaceHTTP(h http.Header, name, value string) http.Header {
	out := h.Clone()
	if out == nil {
		out = make(http.Header)
	}
	for k := range out {
		if strings.EqualFold(k, name) {
			out[k] = []string{value}
			return out
		}
	}
	out.Set(name, value)
	return out
}
