package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/syntalk/im-server/internal/imerr"
)

const maxBodyBytes = 1 << 20

// errorBody matches the error frame the WebSocket surface sends, so clients
// parse failures the same way on both transports.
type errorBody struct {
	Code    imerr.Code `json:"code"`
	Message string     `json:"message"`
}

func respond(w http.ResponseWriter, status int, v any) {
	if v == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	// Status is committed; an encode failure here means the client went away.
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, err error) {
	code := imerr.CodeOf(err)
	respond(w, imerr.HTTPStatus(code), errorBody{Code: code, Message: imerr.MessageOf(err)})
}

// decode reads a bounded JSON body into v. Oversized and malformed bodies
// both come back as invalid-params so the caller can pass the error straight
// to respondError.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return imerr.Wrap(imerr.InvalidParams, "malformed request body", err)
	}
	return nil
}

// pathID parses a chi URL parameter as a positive integer id.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, imerr.Newf(imerr.InvalidParams, "invalid %s", name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func queryBool(r *http.Request, name string) bool {
	switch r.URL.Query().Get(name) {
	case "1", "true", "yes":
		return true
	}
	return false
}
