package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulegov/pkg/errors"
)

type row struct {
	ID        string
	CreatedAt time.Time
}

func rowKey(r row) Cursor {
	return Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
}

func makeRows(n int) []row {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := make([]row, n)
	for i := 0; i < n; i++ {
		// Descending creation time, like the SQL ordering.
		rows[i] = row{ID: string(rune('a' + i)), CreatedAt: base.Add(-time.Duration(i) * time.Minute)}
	}
	return rows
}

func TestCursorRoundTrip(t *testing.T) {
	c := Cursor{CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), ID: "0b45c4e1"}

	decoded, err := DecodeCursor(EncodeCursor(c))
	require.NoError(t, err)
	assert.True(t, c.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, c.ID, decoded.ID)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{name: "not base64", token: "%%%"},
		{name: "not json", token: "bm90LWpzb24"},
		{name: "empty payload", token: "e30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCursor(tt.token)
			assert.True(t, errors.IsValidation(err))
		})
	}
}

func TestParseParamsClampsLimit(t *testing.T) {
	p, err := ParseParams("", "5000", "", 100, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1000, p.Limit)

	p, err = ParseParams("", "", "", 100, 1000)
	require.NoError(t, err)
	assert.Equal(t, 100, p.Limit)
}

func TestParseParamsRejectsBadInput(t *testing.T) {
	_, err := ParseParams("", "-1", "", 100, 1000)
	assert.True(t, errors.IsValidation(err))

	_, err = ParseParams("", "", "sideways", 100, 1000)
	assert.True(t, errors.IsValidation(err))

	_, err = ParseParams("", "", "prev", 100, 1000)
	assert.True(t, errors.IsValidation(err), "prev without cursor has no boundary")

	_, err = ParseParams("!!", "", "", 100, 1000)
	assert.True(t, errors.IsValidation(err))
}

func TestBuildPageFirstPage(t *testing.T) {
	rows := makeRows(6) // limit+1 overfetch for limit 5
	p := Params{Limit: 5, Direction: DirectionNext}

	page := BuildPage(rows, p, rowKey)

	assert.Len(t, page.Items, 5)
	assert.True(t, page.HasNext)
	assert.False(t, page.HasPrev)
	require.NotNil(t, page.NextCursor)
	assert.Nil(t, page.PrevCursor)

	boundary, err := DecodeCursor(*page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, page.Items[4].ID, boundary.ID)
}

func TestBuildPageLastPage(t *testing.T) {
	rows := makeRows(3) // fewer than limit: no further page
	cursor := rowKey(rows[0])
	p := Params{Limit: 5, Direction: DirectionNext, Cursor: &cursor}

	page := BuildPage(rows, p, rowKey)

	assert.Len(t, page.Items, 3)
	assert.False(t, page.HasNext)
	assert.True(t, page.HasPrev)
	assert.Nil(t, page.NextCursor)
	require.NotNil(t, page.PrevCursor)
}

func TestBuildPagePrevReversesRows(t *testing.T) {
	// prev queries come back ascending; the page must read newest-first.
	rows := makeRows(6)
	asc := make([]row, len(rows))
	for i := range rows {
		asc[i] = rows[len(rows)-1-i]
	}
	cursor := rowKey(rows[0])
	p := Params{Limit: 5, Direction: DirectionPrev, Cursor: &cursor}

	page := BuildPage(asc, p, rowKey)

	require.Len(t, page.Items, 5)
	assert.True(t, page.Items[0].CreatedAt.After(page.Items[4].CreatedAt))
	assert.True(t, page.HasPrev)
	assert.True(t, page.HasNext)
}

func TestBuildPageEmptyPrevPage(t *testing.T) {
	cursor := rowKey(makeRows(1)[0])
	p := Params{Limit: 5, Direction: DirectionPrev, Cursor: &cursor}

	page := BuildPage(nil, p, rowKey)

	assert.Empty(t, page.Items)
	assert.False(t, page.HasNext)
	assert.False(t, page.HasPrev)
	assert.Nil(t, page.NextCursor)
	assert.Nil(t, page.PrevCursor)
}

func TestBuildPageEmpty(t *testing.T) {
	p := Params{Limit: 5, Direction: DirectionNext}

	page := BuildPage(nil, p, rowKey)

	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasNext)
	assert.False(t, page.HasPrev)
}
