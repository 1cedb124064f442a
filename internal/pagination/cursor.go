// Package pagination implements keyset paging over (created_at, id), newest
// first. A cursor is bound to the filter of the listing that produced it.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var ErrInvalidCursor = errors.New("invalid cursor format")

// Cursor points just past the last row of the previous page.
type Cursor struct {
	LastID    string    `json:"id"`
	Timestamp time.Time `json:"at"`
	// Filter is the listing's filter, e.g. a status. Empty means unfiltered.
	Filter string `json:"f,omitempty"`
}

// Encode returns an opaque URL-safe token.
func (c Cursor) Encode() string {
	if c.LastID == "" {
		return ""
	}
	c.Timestamp = c.Timestamp.UTC()
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor returns nil for an empty token. A token minted under another
// filter is rejected so a page never mixes two listings.
func DecodeCursor(token, filter string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil || c.LastID == "" || c.Timestamp.IsZero() {
		return nil, ErrInvalidCursor
	}
	if c.Filter != filter {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}

// ClampLimit applies the default and maximum page sizes.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// Trim cuts a result fetched with limit+1 rows down to limit and reports
// whether another page exists.
func Trim[T any](rows []T, limit int) ([]T, bool) {
	if len(rows) > limit {
		return rows[:limit], true
	}
	return rows, false
}
