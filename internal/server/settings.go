package server

import (
	"net/http"
	"slices"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/policy-compare/internal/settings"
)

// GET /settings returns the effective values with secrets masked, plus
// which keys carry a runtime override.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) error {
	snapshot := s.settings.Snapshot()
	overrides := s.settings.Overrides()

	values := make(map[string]string, len(snapshot))
	for k, v := range snapshot {
		if isSecretKey(k) && v != "" {
			v = maskSecret(v)
		}
		values[k] = v
	}

	overridden := make([]string, 0, len(overrides))
	for k := range overrides {
		overridden = append(overridden, k)
	}
	slices.Sort(overridden)

	respondJSON(w, http.StatusOK, map[string]any{
		"values":     values,
		"overridden": overridden,
	})
	return nil
}

// PUT /settings applies runtime overrides. Empty values clear the
// override for that key.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) error {
	var body map[string]string
	if err := decodeJSON(r, &body); err != nil {
		return err
	}
	if len(body) == 0 {
		return eris.Wrap(errBadRequest, "no settings provided")
	}

	known := settings.Keys()
	for k := range body {
		if !slices.Contains(known, k) {
			return eris.Wrapf(errBadRequest, "unknown setting %q", k)
		}
	}

	for k, v := range body {
		if err := s.settings.Set(k, v); err != nil {
			return err
		}
	}
	return s.handleGetSettings(w, r)
}

func isSecretKey(key string) bool {
	return strings.HasSuffix(key, "_KEY")
}

func maskSecret(v string) string {
	if len(v) <= 4 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}
