package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"farmwatch/internal/model"
)

// envelope wraps values read from an external source so clients can tell
// an empty answer from an unavailable source.
type envelope struct {
	Status model.Status `json:"status"`
	Data   any          `json:"data"`
	Error  string       `json:"error,omitempty"`
}

// writeResult never forwards a source's own error text; it may name hosts,
// queries or credentials. Sources log the detail themselves.
func writeResult[T any](w http.ResponseWriter, res model.Result[T]) {
	env := envelope{Status: res.Status, Data: res.Value}
	switch {
	case res.Err == nil:
	case errors.Is(res.Err, errNotConfigured):
		env.Error = errNotConfigured.Error()
	default:
		env.Error = errSourceUnavailable.Error()
	}
	writeJSON(w, http.StatusOK, env)
}

func notConfigured[T any](fallback T) model.Result[T] {
	return model.Unavailable(fallback, errNotConfigured)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeBody reads a JSON body of at most 1 MiB into v. An empty body leaves
// v untouched when allowEmpty is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return false
	}
	if len(body) == 0 && allowEmpty {
		return true
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	return true
}

func queryInt(r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
