// Package config loads kerf configuration files. YAML (.yaml, .yml) and
// TOML (.toml) are supported; values not present in the file keep their
// defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/chazu/kerf/pkg/pipeline"
	"github.com/chazu/kerf/pkg/store"
)

// MaxFileSize bounds configuration files.
const MaxFileSize = 1 << 20

// ErrUnsupportedFormat is returned for file extensions other than YAML
// and TOML.
var ErrUnsupportedFormat = errors.New("config: unsupported format")

// Format is a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" toml:"format" json:"format" validate:"omitempty,oneof=text json"`
}

// TelemetryConfig controls OpenTelemetry exporters.
type TelemetryConfig struct {
	// Stdout installs the stdout trace and metric exporters.
	Stdout bool `yaml:"stdout" toml:"stdout" json:"stdout"`
	// Pretty indents exporter output.
	Pretty bool `yaml:"pretty" toml:"pretty" json:"pretty"`
}

// File is the top-level configuration document. Durations in the store
// section are strings such as "24h" in YAML and integer nanoseconds in
// TOML.
type File struct {
	Pipeline  pipeline.Config `yaml:"pipeline" toml:"pipeline" json:"pipeline"`
	Store     store.Config    `yaml:"store" toml:"store" json:"store"`
	Log       LogConfig       `yaml:"log" toml:"log" json:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry" json:"telemetry"`
}

// Default returns the configuration used when no file is given.
func Default() File {
	return File{
		Pipeline: pipeline.DefaultConfig(),
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

var validate = validator.New()

// Validate checks every section.
func (f File) Validate() error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// Load reads, decodes and validates the file at path.
func Load(path string) (File, error) {
	format, err := FormatOf(path)
	if err != nil {
		return File{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("config: stat %s: %w", path, err)
	}
	if info.Size() > MaxFileSize {
		return File{}, fmt.Errorf("config: %s too large: %d bytes (max %d)", path, info.Size(), MaxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	f, err := Parse(data, format)
	if err != nil {
		return File{}, fmt.Errorf("%w (in %s)", err, path)
	}
	return f, nil
}

// Parse decodes data over Default and validates the result. Unknown keys
// are rejected.
func Parse(data []byte, format Format) (File, error) {
	if len(data) > MaxFileSize {
		return File{}, fmt.Errorf("config: input too large: %d bytes (max %d)", len(data), MaxFileSize)
	}
	f := Default()
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
			return File{}, fmt.Errorf("config: decode yaml: %w", err)
		}
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return File{}, fmt.Errorf("config: decode toml: %w", err)
		}
	default:
		return File{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Logger builds a logger writing to w.
func (l LogConfig) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.level()}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (l LogConfig) level() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
