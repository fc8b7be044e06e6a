package pagination

import (
	"strconv"

	"rulegov/pkg/errors"
)

// Params is a decoded page request. A nil Cursor means the first page.
type Params struct {
	Cursor    *Cursor
	Limit     int
	Direction string
}

// ParseParams decodes the raw query values of a list request. The limit is
// clamped server-side to maxLimit regardless of what the caller asked for,
// and direction defaults to next. A prev request without a cursor has no
// boundary to walk back from and is rejected.
func ParseParams(rawCursor, rawLimit, rawDirection string, defaultLimit, maxLimit int) (Params, error) {
	p := Params{Limit: defaultLimit, Direction: DirectionNext}

	if rawLimit != "" {
		n, err := strconv.Atoi(rawLimit)
		if err != nil || n <= 0 {
			return p, errors.ErrValidation.WithDetail("message", "limit must be a positive integer")
		}
		p.Limit = n
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}

	switch rawDirection {
	case "", DirectionNext:
		p.Direction = DirectionNext
	case DirectionPrev:
		p.Direction = DirectionPrev
	default:
		return p, errors.ErrValidation.WithDetail("message", "direction must be next or prev")
	}

	if rawCursor != "" {
		c, err := DecodeCursor(rawCursor)
		if err != nil {
			return p, err
		}
		p.Cursor = &c
	}

	if p.Cursor == nil && p.Direction == DirectionPrev {
		return p, errors.ErrValidation.WithDetail("message", "prev requires a cursor")
	}

	return p, nil
}

// Page is the wire shape of one listing page. No total count: page cost
// stays O(limit) regardless of table size.
type Page[T any] struct {
	Items      []T     `json:"items"`
	HasNext    bool    `json:"has_next"`
	HasPrev    bool    `json:"has_prev"`
	NextCursor *string `json:"next_cursor"`
	PrevCursor *string `json:"prev_cursor"`
	Limit      int     `json:"limit"`
}

// BuildPage resolves the limit+1 overfetch into a page. rows must be in
// query order: descending for next, ascending for prev; prev pages are
// re-reversed here so items always come back newest-first.
func BuildPage[T any](rows []T, p Params, key func(T) Cursor) Page[T] {
	page := Page[T]{Limit: p.Limit}

	overflow := len(rows) > p.Limit
	if overflow {
		rows = rows[:p.Limit]
	}

	if p.Direction == DirectionPrev {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
		page.HasPrev = overflow
		// A prev page only has a forward continuation when it has rows to
		// continue from; an empty prev page must not advertise a next page
		// it cannot produce a cursor for.
		page.HasNext = len(rows) > 0
	} else {
		page.HasNext = overflow
		page.HasPrev = p.Cursor != nil
	}

	if rows == nil {
		rows = []T{}
	}
	page.Items = rows
	if len(rows) == 0 {
		return page
	}

	if page.HasNext {
		token := EncodeCursor(key(rows[len(rows)-1]))
		page.NextCursor = &token
	}
	if page.HasPrev {
		token := EncodeCursor(key(rows[0]))
		page.PrevCursor = &token
	}
	return page
}
