// Package config loads and saves harkit settings.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/unkn0wn-root/harkit/internal/errdef"
)

const (
	SettingsFormatTOML SettingsFormat = "toml"
	SettingsFormatJSON SettingsFormat = "json"

	ExportIndentDefault = 2
	ExportIndentMax     = 8

	HistoryMaxEntriesDefault = 200
	CaptureTimeoutDefault    = 30 * time.Second
)

type Settings struct {
	Creator CreatorSettings `json:"creator" toml:"creator"`
	Export  ExportSettings  `json:"export"  toml:"export"`
	History HistorySettings `json:"history" toml:"history"`
	Capture CaptureSettings `json:"capture" toml:"capture"`
}

// CreatorSettings names the tool recorded in exported HAR logs.
type CreatorSettings struct {
	Name    string `json:"name"    toml:"name"`
	Version string `json:"version" toml:"version"`
}

type ExportSettings struct {
	Indent    int    `json:"indent"    toml:"indent"`
	Dir       string `json:"dir"       toml:"dir"`
	Clipboard bool   `json:"clipboard" toml:"clipboard"`
}

type HistorySettings struct {
	Path       string `json:"path"        toml:"path"`
	MaxEntries int    `json:"max_entries" toml:"max_entries"`
}

type CaptureSettings struct {
	Timeout         string `json:"timeout"          toml:"timeout"`
	FollowRedirects *bool  `json:"follow_redirects" toml:"follow_redirects"`
	Insecure        bool   `json:"insecure"         toml:"insecure"`
	Proxy           string `json:"proxy"            toml:"proxy"`
}

// TimeoutDuration parses Timeout, falling back to the default when it is
// empty or malformed.
func (c CaptureSettings) TimeoutDuration() time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(c.Timeout)); err == nil && d > 0 {
		return d
	}
	return CaptureTimeoutDefault
}

func (c CaptureSettings) Follow() bool {
	return c.FollowRedirects == nil || *c.FollowRedirects
}

type SettingsFormat string
type SettingsHandle struct {
	Path   string
	Format SettingsFormat
}

func DefaultSettings() Settings {
	return Normalise(Settings{})
}

// Normalise fills unset fields with defaults and clamps out of range values.
func Normalise(s Settings) Settings {
	s.Creator.Name = strings.TrimSpace(s.Creator.Name)
	if s.Creator.Name == "" {
		s.Creator.Name = "harkit"
	}
	if strings.TrimSpace(s.Creator.Version) == "" {
		s.Creator.Version = "dev"
	}

	switch {
	case s.Export.Indent < 0:
		s.Export.Indent = 0
	case s.Export.Indent == 0:
		s.Export.Indent = ExportIndentDefault
	case s.Export.Indent > ExportIndentMax:
		s.Export.Indent = ExportIndentMax
	}
	if strings.TrimSpace(s.Export.Dir) == "" {
		s.Export.Dir = "."
	}

	if strings.TrimSpace(s.History.Path) == "" {
		s.History.Path = filepath.Join(Dir(), "history.json")
	}
	if s.History.MaxEntries <= 0 {
		s.History.MaxEntries = HistoryMaxEntriesDefault
	}
	return s
}

// LoadSettings tries TOML first, then JSON, then returns defaults if neither
// exists. Parse errors fail immediately but missing files just skip to the
// next format.
func LoadSettings() (Settings, SettingsHandle, error) {
	dir := Dir()
	candidates := []SettingsHandle{
		{Path: filepath.Join(dir, "settings.toml"), Format: SettingsFormatTOML},
		{Path: filepath.Join(dir, "settings.json"), Format: SettingsFormatJSON},
	}

	var accumulated error
	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate.Path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			accumulated = errors.Join(
				accumulated,
				errdef.Wrap(errdef.CodeConfig, err, "read settings %q", candidate.Path),
			)
			continue
		}

		settings, err := decodeSettings(data, candidate.Format)
		if err != nil {
			return Settings{}, SettingsHandle{}, errdef.Wrap(
				errdef.CodeConfig,
				err,
				"parse settings %q",
				candidate.Path,
			)
		}
		return Normalise(settings), candidate, nil
	}

	if accumulated != nil {
		return Settings{}, SettingsHandle{}, accumulated
	}

	return DefaultSettings(), SettingsHandle{
		Path:   candidates[0].Path,
		Format: SettingsFormatTOML,
	}, nil
}

func decodeSettings(data []byte, format SettingsFormat) (Settings, error) {
	var settings Settings
	switch format {
	case SettingsFormatTOML:
		if err := toml.Unmarshal(data, &settings); err != nil {
			return Settings{}, err
		}
	case SettingsFormatJSON:
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&settings); err != nil {
			return Settings{}, err
		}
	default:
		return Settings{}, errdef.New(errdef.CodeConfig, "unsupported settings format %q", format)
	}
	return settings, nil
}

func SaveSettings(settings Settings, handle SettingsHandle) error {
	settings = Normalise(settings)
	path := handle.Path
	format := handle.Format
	if path == "" {
		path = filepath.Join(Dir(), "settings.toml")
	}
	if format == "" {
		format = SettingsFormatTOML
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "ensure settings directory")
	}

	var (
		data []byte
		err  error
	)
	switch format {
	case SettingsFormatTOML:
		data, err = toml.Marshal(settings)
	case SettingsFormatJSON:
		buffer := &bytes.Buffer{}
		encoder := json.NewEncoder(buffer)
		encoder.SetIndent("", "  ")
		if err = encoder.Encode(settings); err == nil {
			data = buffer.Bytes()
		}
	default:
		return errdef.New(errdef.CodeConfig, "unsupported settings format %q", format)
	}
	if err != nil {
		return errdef.Wrap(errdef.CodeConfig, err, "encode settings")
	}

	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "write settings %q", path)
	}
	return nil
}

// writeFileAtomic writes to a temp file and renames it over path so readers
// never see a partial file.
func writeFileAtomic(path string, data []byte, perm fs.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".harkit-settings-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return errors.Join(err, tmp.Close())
	}
	if err := tmp.Chmod(perm); err != nil {
		return errors.Join(err, tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
