// Package manifest reads and writes module files: TOML manifests and the
// compiled CBOR images produced from them.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Extensions recognised by Open.
const (
	ManifestExt = ".toml"
	ImageExt    = ".rmod"
)

// ErrNotFound is returned by Locate when no search directory holds the module.
var ErrNotFound = errors.New("module file not found")

// Module describes a loadable module: which linked library provides its
// code, which classes it exports, and which reference types it shares with
// the host.
type Module struct {
	Name    string   `toml:"name" cbor:"1,keyasint" json:"name"`
	Version string   `toml:"version,omitempty" cbor:"2,keyasint,omitempty" json:"version,omitempty"`
	Library string   `toml:"library" cbor:"3,keyasint" json:"library"`
	Exports []string `toml:"exports,omitempty" cbor:"4,keyasint,omitempty" json:"exports,omitempty"`
	Shared  []string `toml:"shared,omitempty" cbor:"5,keyasint,omitempty" json:"shared,omitempty"`

	// Path is the file the module was read from (set at load time).
	Path string `toml:"-" cbor:"-" json:"-"`
}

// document is the on-disk layout of a TOML manifest.
type document struct {
	Module Module `toml:"module"`
}

// Parse decodes and validates a TOML manifest.
func Parse(data []byte) (*Module, error) {
	var doc document
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	if err := Validate(&doc.Module); err != nil {
		return nil, err
	}
	return &doc.Module, nil
}

// Load reads a TOML manifest from path.
func Load(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	m.Path = path
	return m, nil
}

// Write stores m as a TOML manifest at path.
func Write(path string, m *Module) error {
	if err := Validate(m); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(document{Module: *m}); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// Open reads a module file of either format. The extension decides; files
// with any other extension are sniffed for the image header.
func Open(path string) (*Module, error) {
	switch filepath.Ext(path) {
	case ManifestExt:
		return Load(path)
	case ImageExt:
		return ReadImage(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if looksLikeImage(data) {
		img, err := DecodeImage(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		img.Module.Path = path
		return &img.Module, nil
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	m.Path = path
	return m, nil
}

// Locate resolves a module reference. Absolute paths and paths that exist
// relative to the working directory are returned as is; otherwise each
// search directory is tried in order.
func Locate(ref string, dirs []string) (string, error) {
	if filepath.IsAbs(ref) {
		return ref, nil
	}
	if _, err := os.Stat(ref); err == nil {
		return ref, nil
	}
	for _, dir := range dirs {
		candidate := filepath.Join(dir, ref)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s (searched %s)", ErrNotFound, ref, strings.Join(dirs, ", "))
}
