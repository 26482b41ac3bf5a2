// Package config manages the project's .quill settings file: a flat JSON
// object of string-keyed values. Unknown keys written by other tools are
// preserved verbatim across edits.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

// FileName is the settings file kept at the project root.
const FileName = ".quill"

// Defaults for the keys quill itself understands.
var defaults = map[string]any{
	"output_format": "text",
	"auto_commit":   true,
	"save_history":  true,
}

// Handler reads and writes one project's settings.
type Handler struct {
	path string
	log  *zap.Logger
}

func NewHandler(projectDir string, log *zap.Logger) *Handler {
	return &Handler{path: filepath.Join(projectDir, FileName), log: log}
}

// Path returns the settings file location.
func (h *Handler) Path() string { return h.path }

// Load returns the settings with defaults applied for any quill-owned key
// the file does not set. A missing file yields the pure defaults.
func (h *Handler) Load() (map[string]any, error) {
	merged := make(map[string]any, len(defaults))
	for k, v := range defaults {
		merged[k] = v
	}

	raw, err := h.readRaw()
	if err != nil {
		return nil, err
	}
	for k, v := range raw {
		merged[k] = v
	}
	return merged, nil
}

// Get returns one setting, falling back to its default.
func (h *Handler) Get(key string) (any, error) {
	cfg, err := h.Load()
	if err != nil {
		return nil, err
	}
	v, ok := cfg[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key %q", key)
	}
	return v, nil
}

// Bool reads a boolean setting, falling back to the default when the
// stored value has the wrong type.
func (h *Handler) Bool(key string) (bool, error) {
	v, err := h.Get(key)
	if err != nil {
		return false, err
	}
	if b, ok := v.(bool); ok {
		return b, nil
	}
	if d, ok := defaults[key].(bool); ok {
		return d, nil
	}
	return false, fmt.Errorf("config key %q is not boolean", key)
}

// Set writes one setting. Values for quill-owned boolean keys are coerced
// from the strings "true"/"false"; everything else is stored as given.
func (h *Handler) Set(key string, value any) error {
	raw, err := h.readRaw()
	if err != nil {
		return err
	}
	raw[key] = coerce(key, value)
	return h.write(raw)
}

// Reset removes every quill-owned key so defaults apply again. Foreign
// keys stay.
func (h *Handler) Reset() error {
	raw, err := h.readRaw()
	if err != nil {
		return err
	}
	for k := range defaults {
		delete(raw, k)
	}
	return h.write(raw)
}

// Keys lists the known setting names, sorted.
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (h *Handler) readRaw() (map[string]any, error) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("read config %s: %w", h.path, err)
	}
	raw := map[string]any{}
	if len(data) == 0 {
		return raw, nil
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", h.path, err)
	}
	return raw, nil
}

func (h *Handler) write(raw map[string]any) error {
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(h.path), ".quill-*")
	if err != nil {
		return fmt.Errorf("write config %s: %w", h.path, err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write config %s: %w", h.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("write config %s: %w", h.path, err)
	}
	if err := os.Rename(name, h.path); err != nil {
		os.Remove(name)
		return fmt.Errorf("write config %s: %w", h.path, err)
	}
	h.log.Debug("config written", zap.String("path", h.path))
	return nil
}

func coerce(key string, value any) any {
	if _, ok := defaults[key].(bool); !ok {
		return value
	}
	switch v := value.(type) {
	case string:
		return v == "true"
	default:
		return value
	}
}
