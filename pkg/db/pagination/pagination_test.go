package pagination

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPageTrimsAndEncodesCursor(t *testing.T) {
	rows := []int64{50, 40, 30}
	page, info, err := Page(rows, 2, func(v int64) int64 { return v })
	require.NoError(t, err)
	require.Equal(t, []int64{50, 40}, page)
	require.True(t, info.HasMore)

	cursor, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	require.Equal(t, int64(40), cursor.ID)
}

func TestPageLastPage(t *testing.T) {
	page, info, err := Page([]int64{1}, 2, func(v int64) int64 { return v })
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.False(t, info.HasMore)
	require.Empty(t, info.NextPageToken)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("%%%")
	require.ErrorIs(t, err, ErrInvalidPageToken)

	cursor, err := DecodeCursor("")
	require.NoError(t, err)
	require.Nil(t, cursor)
}

func TestLimitClamps(t *testing.T) {
	require.Equal(t, DefaultPageSize, Pagination{}.Limit())
	require.Equal(t, MaxPageSize, Pagination{PageSize: 1000}.Limit())
	require.Equal(t, 5, Pagination{PageSize: 5}.Limit())
}
