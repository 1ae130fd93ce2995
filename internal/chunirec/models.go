package chunirec

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/ramonehamilton/CHUNI-Companion/internal/rating"
)

// Profile is the response of records/profile.json.
type Profile struct {
	PlayerName string           `json:"player_name"`
	Level      int              `json:"level,omitempty"`
	Rating     rating.FlexFloat `json:"rating"`
	RatingMax  rating.FlexFloat `json:"rating_max,omitempty"`
	UpdatedAt  string           `json:"updated_at,omitempty"`
}

// RatingList is one section of records/rating_data.json.
type RatingList struct {
	Entries []rating.Record `json:"entries"`
}

// RatingData is the response of records/rating_data.json.
type RatingData struct {
	Best   RatingList `json:"best"`
	Recent RatingList `json:"recent"`
}

// UserRecords is the response of records/showall.json.
type UserRecords struct {
	Records []rating.Record `json:"records"`
}

type musicMeta struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Genre   string `json:"genre"`
	Release string `json:"release"`
}

type musicChart struct {
	Level          rating.Level      `json:"level"`
	Const          *rating.FlexFloat `json:"const"`
	IsConstUnknown bool              `json:"is_const_unknown"`
}

type musicEntry struct {
	Meta *musicMeta             `json:"meta"`
	Data map[string]*musicChart `json:"data"`
}

// FlattenMusic decodes a music/showall.json body into one record per chart.
// The body is either an array or {"records": [...]}; each entry is either a
// {meta, data{DIFF: chart}} object or an already flat record.
func FlattenMusic(body []byte) ([]rating.Record, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil {
		var wrapped struct {
			Records []json.RawMessage `json:"records"`
		}
		if err2 := json.Unmarshal(body, &wrapped); err2 != nil {
			return nil, fmt.Errorf("failed to parse music catalog: %w", err)
		}
		entries = wrapped.Records
	}

	records := make([]rating.Record, 0, len(entries)*4)
	for _, raw := range entries {
		var entry musicEntry
		if err := json.Unmarshal(raw, &entry); err == nil && entry.Meta != nil && entry.Data != nil {
			records = append(records, flattenEntry(&entry)...)
			continue
		}
		var flat rating.Record
		if err := json.Unmarshal(raw, &flat); err != nil {
			continue
		}
		if flat.ID != "" && flat.Title != "" && flat.Diff != "" {
			flat.Diff = rating.ParseDifficulty(string(flat.Diff))
			records = append(records, flat)
		}
	}
	return records, nil
}

func flattenEntry(entry *musicEntry) []rating.Record {
	if entry.Meta.ID == "" || entry.Meta.Title == "" {
		return nil
	}
	diffs := make([]string, 0, len(entry.Data))
	for d, chart := range entry.Data {
		if chart != nil {
			diffs = append(diffs, d)
		}
	}
	sort.Slice(diffs, func(i, j int) bool {
		oi, oj := rating.ParseDifficulty(diffs[i]).Order(), rating.ParseDifficulty(diffs[j]).Order()
		if oi != oj {
			return oi < oj
		}
		return diffs[i] < diffs[j]
	})

	out := make([]rating.Record, 0, len(diffs))
	for _, d := range diffs {
		chart := entry.Data[d]
		rec := rating.Record{
			ID:             entry.Meta.ID,
			Diff:           rating.ParseDifficulty(d),
			Title:          entry.Meta.Title,
			Genre:          entry.Meta.Genre,
			Release:        entry.Meta.Release,
			Level:          chart.Level,
			IsConstUnknown: chart.IsConstUnknown,
		}
		if chart.Const != nil {
			rec.Const = rating.Float(float64(*chart.Const))
		}
		out = append(out, rec)
	}
	return out
}

// RateLimitInfo is the upstream quota reported in X-Rate-Limit-* headers.
type RateLimitInfo struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
	Present   bool  `json:"present"`
}

// Rate-limit headers forwarded by the proxy.
var RateLimitHeaders = []string{"X-Rate-Limit-Limit", "X-Rate-Limit-Remaining", "X-Rate-Limit-Reset"}

// ParseRateLimit reads the rate-limit headers. Missing or malformed values
// stay zero.
func ParseRateLimit(h http.Header) RateLimitInfo {
	var info RateLimitInfo
	if v := h.Get("X-Rate-Limit-Limit"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			info.Limit, info.Present = n, true
		}
	}
	if v := h.Get("X-Rate-Limit-Remaining"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			info.Remaining, info.Present = n, true
		}
	}
	if v := h.Get("X-Rate-Limit-Reset"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			info.Reset, info.Present = n, true
		}
	}
	return info
}

// ErrNoToken is returned when no API token is configured.
var ErrNoToken = errors.New("chunirec API token is not configured")

// APIError is a non-OK response from chunirec.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("chunirec API error (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("chunirec API error (HTTP %d)", e.StatusCode)
}

// ParseAPIError extracts a message from the error body shapes chunirec uses:
// {"error":{"code","message"}}, {"message"} or {"error":"..."}.
func ParseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var nested struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &nested); err == nil {
		if nested.Message != "" {
			apiErr.Message = nested.Message
			return apiErr
		}
		var inner struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if len(nested.Error) > 0 && json.Unmarshal(nested.Error, &inner) == nil && inner.Message != "" {
			apiErr.Code, apiErr.Message = inner.Code, inner.Message
			return apiErr
		}
		var s string
		if len(nested.Error) > 0 && json.Unmarshal(nested.Error, &s) == nil && s != "" {
			apiErr.Message = s
			return apiErr
		}
	}

	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	apiErr.Message = text
	return apiErr
}

// NotFoundError is a 404 from chunirec, usually an unknown player name.
type NotFoundError struct {
	URL string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("resource not found: %s", e.URL)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
