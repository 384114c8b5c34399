package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"bilancio/internal/core"
	"bilancio/internal/profile"
	"bilancio/internal/records"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

// PeriodParams are the path parameters shared by every period route.
type PeriodParams struct {
	User    string
	Profile profile.Profile
	Year    int
	Month   int
}

// parseUserProfile reads the {user} and {profile} path values.
func parseUserProfile(r *http.Request) (string, profile.Profile, error) {
	user := sanitizeInput(r.PathValue("user"))
	if user == "" {
		return "", profile.Profile{}, fmt.Errorf("%w: user is required", errBadRequest)
	}
	p, err := profile.Lookup(r.PathValue("profile"))
	if err != nil {
		return "", profile.Profile{}, err
	}
	return user, p, nil
}

// ParsePeriodParams validates user, profile, year and month path values.
func ParsePeriodParams(r *http.Request) (PeriodParams, error) {
	user, p, err := parseUserProfile(r)
	if err != nil {
		return PeriodParams{}, err
	}
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil || year < 1 || year > 9999 {
		return PeriodParams{}, fmt.Errorf("%w: invalid year %q", errBadRequest, r.PathValue("year"))
	}
	month, err := strconv.Atoi(r.PathValue("month"))
	if err != nil || month < 1 || month > 12 {
		return PeriodParams{}, fmt.Errorf("%w: invalid month %q", errBadRequest, r.PathValue("month"))
	}
	return PeriodParams{User: user, Profile: p, Year: year, Month: month}, nil
}

// ParseItemIndex reads the {index} path value.
func ParseItemIndex(r *http.Request) (int, error) {
	i, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || i < 0 {
		return 0, fmt.Errorf("%w: invalid item index %q", errBadRequest, r.PathValue("index"))
	}
	return i, nil
}

// SourceInput is a funding source in a request body. Amounts may be JSON
// numbers or free text such as "€1,200".
type SourceInput struct {
	Name   string         `json:"name"`
	Amount records.Amount `json:"amount"`
}

type ItemInput struct {
	Label  string         `json:"label"`
	Amount records.Amount `json:"amount"`
}

// PeriodRequest is the body of a period PUT.
type PeriodRequest struct {
	Sources []SourceInput          `json:"sources"`
	Items   map[string][]ItemInput `json:"items"`
}

// ToRecord validates every source and bucket against the profile and builds
// the record in the profile's depletion order.
func (req PeriodRequest) ToRecord(p profile.Profile, year, month int) (core.PeriodRecord, error) {
	rec := p.Template(year, month)
	for _, s := range req.Sources {
		var err error
		rec, err = p.SetSource(rec, strings.TrimSpace(s.Name), float64(s.Amount))
		if err != nil {
			return core.PeriodRecord{}, err
		}
	}
	for name, items := range req.Items {
		b, err := p.Bucket(name)
		if err != nil {
			return core.PeriodRecord{}, err
		}
		for _, it := range items {
			rec = profile.AddItem(rec, b, sanitizeInput(it.Label), float64(it.Amount))
		}
	}
	return rec, nil
}

// decodeJSON reads a JSON body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

// sanitizeInput drops control characters and trims whitespace.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' {
			return -1
		}
		return r
	}, s))
}
