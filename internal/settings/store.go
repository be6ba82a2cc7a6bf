// Package settings owns the yaml-backed settings store: dotted-path reads,
// recursive merge updates, and the typed Config view the pipeline consumes.
package settings

import (
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]+))?\}`)

// Store loads settings.yaml once and serializes read-modify-write updates.
// Reads outside an update see immutable snapshots.
type Store struct {
	path string

	mu  sync.Mutex
	raw map[string]any
	cfg Config
}

// Open reads the settings file at path. A missing file yields an empty store
// that still persists updates to that path.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	raw, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	s.raw = raw
	s.cfg = deriveConfig(resolveEnv(raw).(map[string]any))
	return s, nil
}

func readRaw(path string) (map[string]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, errors.Wrap(err, "read settings")
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, errors.Wrap(err, "parse settings yaml")
	}
	return raw, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Config returns the current typed view. The returned value is a copy.
func (s *Store) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Raw returns a deep copy of the raw settings map, environment placeholders
// unresolved, suitable for sending to clients.
func (s *Store) Raw() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deepCopyMap(s.raw)
}

// Get resolves a dotted path against the raw map, falling back to def.
func (s *Store) Get(def any, keys ...string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := lookup(s.raw, keys...); ok {
		return v
	}
	return def
}

// Reload re-reads the backing file, picking up manual edits.
func (s *Store) Reload() error {
	raw, err := readRaw(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = raw
	s.cfg = deriveConfig(resolveEnv(raw).(map[string]any))
	return nil
}

// ApplyUpdates merges updates into the raw map (nested maps merge key by key,
// anything else replaces wholesale), persists the result, and re-derives the
// typed view. Persistence failures propagate to the caller; the in-memory
// state is only swapped after a successful write.
func (s *Store) ApplyUpdates(updates map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := deepCopyMap(s.raw)
	deepMerge(merged, updates)

	out, err := yaml.Marshal(merged)
	if err != nil {
		return nil, errors.Wrap(err, "encode settings yaml")
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create settings dir")
		}
	}
	if err := os.WriteFile(s.path, out, 0o644); err != nil {
		return nil, errors.Wrap(err, "write settings")
	}

	s.raw = merged
	s.cfg = deriveConfig(resolveEnv(merged).(map[string]any))
	return deepCopyMap(merged), nil
}

func deepMerge(dst, src map[string]any) {
	for key, value := range src {
		if srcMap, ok := value.(map[string]any); ok {
			if dstMap, ok := dst[key].(map[string]any); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = value
	}
}

func deepCopyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = deepCopyValue(value)
	}
	return out
}

func deepCopyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return deepCopyMap(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = deepCopyValue(x[i])
		}
		return out
	default:
		return v
	}
}

// resolveEnv expands ${VAR} and ${VAR:default} placeholders in every string
// value. Only the typed view sees resolved values; the raw map keeps the
// placeholders so secrets stay out of persisted files and client payloads.
func resolveEnv(v any) any {
	switch x := v.(type) {
	case string:
		return envPattern.ReplaceAllStringFunc(x, func(m string) string {
			groups := envPattern.FindStringSubmatch(m)
			if val, ok := os.LookupEnv(groups[1]); ok {
				return val
			}
			return groups[2]
		})
	case map[string]any:
		out := make(map[string]any, len(x))
		for key, value := range x {
			out[key] = resolveEnv(value)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = resolveEnv(x[i])
		}
		return out
	default:
		return v
	}
}
