package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Load reads the file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := Decode(cfg, path, data); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode parses data into cfg, choosing the format from the extension of
// path. Keys absent from data keep their current values.
func Decode(cfg *Config, path string, data []byte) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return decodeTOML(cfg, path, data)
	case ".yaml", ".yml":
		return decodeYAML(cfg, path, data)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

func decodeTOML(cfg *Config, path string, data []byte) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return &ParseError{
				Path:    fmt.Sprintf("%s:%d:%d", path, row, col),
				Message: derr.Error(),
				Err:     err,
			}
		}
		var serr *toml.StrictMissingError
		if errors.As(err, &serr) {
			return &ParseError{Path: path, Message: "unknown keys", Err: err}
		}
		return &ParseError{Path: path, Message: err.Error(), Err: err}
	}
	return nil
}

func decodeYAML(cfg *Config, path string, data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return &ParseError{Path: path, Message: err.Error(), Err: err}
	}
	return nil
}
