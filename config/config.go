// Package config loads nested configuration trees from YAML or TOML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps syntax errors and unsupported formats.
var ErrInvalidConfig = errors.New("invalid config")

// Format names a supported encoding.
type Format string

const (
	YAML Format = "yaml"
	TOML Format = "toml"
)

// Tree is a nested key-value configuration. Values are scalars, slices or
// nested trees.
type Tree map[string]any

// Load reads path and parses it according to its extension.
func Load(path string) (Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	format, err := formatOf(path)
	if err != nil {
		return nil, err
	}

	tree, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tree, nil
}

// Parse decodes data in the given format. Empty input yields an empty tree.
func Parse(data []byte, format Format) (Tree, error) {
	tree := Tree{}
	var err error
	switch format {
	case YAML:
		err = yaml.Unmarshal(data, &tree)
	case TOML:
		err = toml.Unmarshal(data, &tree)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidConfig, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return tree, nil
}

func formatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML, nil
	case ".toml":
		return TOML, nil
	default:
		return "", fmt.Errorf("%w: cannot infer format of %s", ErrInvalidConfig, path)
	}
}

// Has reports whether key is present, whatever its value.
func (t Tree) Has(key string) bool {
	_, ok := t[key]
	return ok
}

// Sub returns the subtree stored under key.
func (t Tree) Sub(key string) (Tree, bool) {
	return asTree(t[key])
}

// Bool returns the value under key if it is a boolean.
func (t Tree) Bool(key string) (value, ok bool) {
	value, ok = t[key].(bool)
	return value, ok
}

// String returns the value under key if it is a string.
func (t Tree) String(key string) (string, bool) {
	s, ok := t[key].(string)
	return s, ok
}

// asTree accepts both Tree and the plain maps decoders produce.
func asTree(v any) (Tree, bool) {
	switch m := v.(type) {
	case Tree:
		return m, true
	case map[string]any:
		return Tree(m), true
	default:
		return nil, false
	}
}
