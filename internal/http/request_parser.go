package http

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"loancalc/internal/core"
	"loancalc/internal/session"
)

const sessionCookieName = "loancalc_session"

var (
	// errEmptyValue marks an input the browser could not turn into a number.
	// The field keeps its previous value.
	errEmptyValue = errors.New("empty value")
	errBadNumber  = errors.New("value is not a finite number")
	errBadEntryID = errors.New("invalid entry id")
)

// FieldUpdate is one parsed "update(id, field, value)" request.
type FieldUpdate struct {
	EntryID int
	Field   core.Field
	Value   float64
}

// ParseEntryID reads the {id} path segment.
func ParseEntryID(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.PathValue("id"))
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", errBadEntryID, raw)
	}
	return id, nil
}

// ParseValue converts a numeric form value. Empty input yields errEmptyValue;
// NaN and infinities are rejected along with anything unparseable.
func ParseValue(raw string) (float64, error) {
	raw = strings.TrimSpace(sanitizeInput(raw))
	if raw == "" {
		return 0, errEmptyValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", errBadNumber, raw)
	}
	return v, nil
}

// ParseFieldUpdate reads the entry id from the path and field/value from
// the form. The form must already be parsed.
func ParseFieldUpdate(r *http.Request) (FieldUpdate, error) {
	id, err := ParseEntryID(r)
	if err != nil {
		return FieldUpdate{}, err
	}
	f, err := core.ParseField(r.Form.Get("field"))
	if err != nil {
		return FieldUpdate{}, err
	}
	v, err := ParseValue(r.Form.Get("value"))
	if err != nil {
		return FieldUpdate{}, err
	}
	return FieldUpdate{EntryID: id, Field: f, Value: v}, nil
}

// sessionID returns the caller's session id, issuing a new cookie when the
// request carries none or a malformed one.
func sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookieName); err == nil && session.ValidID(c.Value) {
		return c.Value
	}
	id := session.NewID()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// sanitizeInput removes control characters except tab, newline and
// carriage return.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// RequireMethod checks if the request method matches the expected method(s).
// Returns an error response builder if the method doesn't match.
func RequireMethod(r *http.Request, methods ...string) *HTMXResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

// RequirePOST is a convenience function for POST-only handlers.
func RequirePOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}

// RequireGET is a convenience function for read-only handlers.
func RequireGET(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodGet, http.MethodHead)
}

// RequireDeleteOrPOST is a convenience function for DELETE/POST handlers.
func RequireDeleteOrPOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodDelete, http.MethodPost)
}

// ParseFormOrFail parses the request form and returns an error response on failure.
// Returns nil on success.
func ParseFormOrFail(r *http.Request) *HTMXResponseBuilder {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<16)
	if err := r.ParseForm(); err != nil {
		return BadRequestError("Invalid request format")
	}
	return nil
}
