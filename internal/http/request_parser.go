package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"tally/internal/core"
	"tally/internal/cycle"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

// decodeJSON reads a single JSON document from the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", errBadRequest)
		}
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: body must contain a single JSON value", errBadRequest)
	}
	return nil
}

// hasBody reports whether the request carries a non-empty body.
func hasBody(r *http.Request) bool {
	return r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0
}

// ParseRefDate reads the "date" query parameter, defaulting to today.
func ParseRefDate(query url.Values, today core.Date) (core.Date, error) {
	v := strings.TrimSpace(query.Get("date"))
	if v == "" {
		return today, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, &core.ValidationError{Field: "date", Reason: err.Error()}
	}
	return d, nil
}

// ParseCycleSetting builds a cycle setting from query parameters. ok is false
// when no "type" parameter is present.
func ParseCycleSetting(query url.Values) (s cycle.Setting, ok bool, err error) {
	t := strings.ToLower(strings.TrimSpace(query.Get("type")))
	if t == "" {
		return cycle.Setting{}, false, nil
	}
	s.Type = cycle.Type(t)

	fields := []struct {
		name string
		dst  *int
	}{
		{"start_day", &s.StartDay},
		{"start_month", &s.StartMonth},
		{"end_month", &s.EndMonth},
		{"end_day", &s.EndDay},
	}
	for _, f := range fields {
		v := strings.TrimSpace(query.Get(f.name))
		if v == "" {
			continue
		}
		n, convErr := strconv.Atoi(v)
		if convErr != nil {
			return cycle.Setting{}, false, &core.ValidationError{Field: f.name, Reason: "must be a number"}
		}
		*f.dst = n
	}

	if err := s.Validate(); err != nil {
		return cycle.Setting{}, false, &core.ValidationError{Field: "cycle", Reason: err.Error()}
	}
	return s, true, nil
}
