package seed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// SupportedVersion is the only seed file version understood.
const SupportedVersion = 1

// Loader handles loading and parsing of a seed file
type Loader struct {
	filePath string
}

// NewLoader creates a new seed loader
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Path returns the file the loader reads.
func (l *Loader) Path() string { return l.filePath }

// Load reads and parses the seed file. ${VAR} references are expanded from
// the environment before parsing; unknown keys are rejected.
func (l *Loader) Load() (*File, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a seed document.
func Parse(data []byte) (*File, error) {
	data = []byte(os.ExpandEnv(string(data)))

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &File{Version: SupportedVersion}, nil
		}
		return nil, fmt.Errorf("failed to parse seed yaml: %w", err)
	}

	if f.Version == 0 {
		f.Version = SupportedVersion
	}
	if f.Version != SupportedVersion {
		return nil, fmt.Errorf("unsupported seed version %d (want %d)", f.Version, SupportedVersion)
	}
	return &f, nil
}
