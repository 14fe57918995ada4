// Package settings manages runtime service credentials. Values come from
// the environment and may be overridden at runtime through a JSON file
// edited via the API or CLI. A non-empty file value wins over the
// environment; an explicitly empty file value does not.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-compare/internal/model"
)

// Known setting keys.
const (
	KeyOpenAIEndpoint      = "OPENAI_ENDPOINT"
	KeyOpenAIKey           = "OPENAI_KEY"
	KeyOpenAIAPIVersion    = "OPENAI_API_VERSION"
	KeyReasoningDeployment = "OPENAI_REASONING_DEPLOYMENT"
	KeyDocIntelEndpoint    = "DOCINTEL_ENDPOINT"
	KeyDocIntelKey         = "DOCINTEL_KEY"
	KeyAgentEndpoint       = "AGENT_ENDPOINT"
	KeyAgentKey            = "AGENT_KEY"
	KeyAgentModel          = "AGENT_MODEL_DEPLOYMENT"
)

// Effective merges file overrides onto environment values. A file value
// overrides only when non-empty after trimming. Keys present only in the
// file are carried through.
func Effective(env, file map[string]string) map[string]string {
	out := make(map[string]string, len(env)+len(file))
	for k, v := range env {
		out[k] = v
	}
	for k, v := range file {
		if strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	return out
}

// Store holds the effective settings and persists overrides to disk.
type Store struct {
	mu   sync.Mutex
	path string
	env  map[string]string
	file map[string]string
}

// NewStore loads overrides from path if it exists. A missing or corrupt
// file yields an empty override set.
func NewStore(path string, env map[string]string) *Store {
	s := &Store{path: path, env: env, file: map[string]string{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			zap.L().Warn("settings: read file", zap.String("path", path), zap.Error(err))
		}
		return s
	}
	if err := json.Unmarshal(data, &s.file); err != nil {
		zap.L().Warn("settings: parse file, ignoring overrides", zap.String("path", path), zap.Error(err))
		s.file = map[string]string{}
	}

	return s
}

// Get returns the effective value for key, or "" when unset.
func (s *Store) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.file[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return s.env[key]
}

// Require returns the effective value for key, or a configuration error
// naming the missing key.
func (s *Store) Require(key string) (string, error) {
	v := s.Get(key)
	if strings.TrimSpace(v) == "" {
		return "", eris.Wrapf(model.ErrConfiguration, "settings: %s is not set", key)
	}
	return v, nil
}

// Set writes a file override for key and persists the override set.
// Setting an empty value clears the override, restoring the environment
// value.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(value) == "" {
		delete(s.file, key)
	} else {
		s.file[key] = value
	}

	return s.persist()
}

// SetAll replaces the whole override set and persists it. Empty values
// are dropped rather than stored.
func (s *Store) SetAll(values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.file = make(map[string]string, len(values))
	for k, v := range values {
		if strings.TrimSpace(v) != "" {
			s.file[k] = v
		}
	}

	return s.persist()
}

// Snapshot returns a copy of the effective settings.
func (s *Store) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Effective(s.env, s.file)
}

// Overrides returns a copy of the file override set.
func (s *Store) Overrides() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.file))
	for k, v := range s.file {
		out[k] = v
	}
	return out
}

// persist writes the override set atomically. Callers hold the mutex.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.file, "", "  ")
	if err != nil {
		return eris.Wrap(err, "settings: marshal")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "settings: create dir")
	}

	tmp, err := os.CreateTemp(dir, ".settings-*")
	if err != nil {
		return eris.Wrap(err, "settings: create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrap(err, "settings: write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return eris.Wrap(err, "settings: close temp file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return eris.Wrap(err, "settings: rename")
	}

	return nil
}

// Keys lists every known setting key.
func Keys() []string {
	return []string{
		KeyOpenAIEndpoint, KeyOpenAIKey, KeyOpenAIAPIVersion, KeyReasoningDeployment,
		KeyDocIntelEndpoint, KeyDocIntelKey,
		KeyAgentEndpoint, KeyAgentKey, KeyAgentModel,
	}
}

// EnvFromOS collects the known setting keys from process environment
// variables of the same names.
func EnvFromOS() map[string]string {
	keys := Keys()
	env := make(map[string]string, len(keys))
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			env[k] = v
		}
	}
	return env
}
