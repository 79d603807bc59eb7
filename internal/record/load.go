package record

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/harkit/internal/errdef"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks the decoding format from a file extension. Anything that is
// not .yaml or .yml is treated as JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// LoadFile reads records from a JSON or YAML file. The file may hold a single
// record or a list.
func LoadFile(path string) ([]*Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "read records %s", path)
	}
	reqs, err := Decode(data, FormatFor(path))
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeParse, err, "decode records %s", path)
	}
	return reqs, nil
}

func Decode(data []byte, format Format) ([]*Request, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if format == FormatYAML {
		return decodeYAML(trimmed)
	}
	return decodeJSON(trimmed)
}

func decodeJSON(data []byte) ([]*Request, error) {
	if data[0] == '[' {
		var list []*Request
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		return compact(list), nil
	}
	var one Request
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []*Request{&one}, nil
}

func decodeYAML(data []byte) ([]*Request, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	root := &node
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind == yaml.SequenceNode {
		var list []*Request
		if err := root.Decode(&list); err != nil {
			return nil, err
		}
		return compact(list), nil
	}
	var one Request
	if err := root.Decode(&one); err != nil {
		return nil, err
	}
	return []*Request{&one}, nil
}

func compact(list []*Request) []*Request {
	out := list[:0]
	for _, r := range list {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}
