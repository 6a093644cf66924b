package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"fixitBack/internal/apierror"
	"fixitBack/internal/identity"
)

const maxBodyBytes = 1 << 20

func parsePathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.URL.Query().Get(":id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id")
	}
	return id, nil
}

func parsePaging(r *http.Request) (int, int, error) {
	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l <= 0 {
			return 0, 0, fmt.Errorf("invalid limit")
		}
		limit = l
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		o, err := strconv.Atoi(v)
		if err != nil || o < 0 {
			return 0, 0, fmt.Errorf("invalid offset")
		}
		offset = o
	}
	return limit, offset, nil
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code apierror.Code, message string) {
	writeJSON(w, status, map[string]*apierror.APIError{"error": apierror.New(code, message, nil)})
}

// fail writes err as an API error. Errors without a code are logged and
// reported as INTERNAL.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if apiErr, ok := apierror.As(err); ok {
		writeJSON(w, apierror.HTTPStatus(apiErr), map[string]*apierror.APIError{"error": apiErr})
		return
	}
	s.logger.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	writeError(w, http.StatusInternalServerError, apierror.CodeInternal, "internal error")
}

func caller(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	who, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, apierror.CodeForbidden, "authentication required")
	}
	return who, ok
}

func contextWithTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 10*time.Second)
}
