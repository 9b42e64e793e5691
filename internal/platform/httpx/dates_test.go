package httpx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

func TestParseDate(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)

	got, err := ParseDate("2025-03-10", loc)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, loc), got)

	got, err = ParseDate("2025-03-10T14:05:00+07:00", loc)
	require.NoError(t, err)
	require.True(t, got.Equal(time.Date(2025, 3, 10, 14, 5, 0, 0, loc)))

	got, err = ParseDate(" ", loc)
	require.NoError(t, err)
	require.True(t, got.IsZero())

	_, err = ParseDate("10/03/2025", loc)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = RequireDate("date_issued", "", loc)
	require.ErrorIs(t, err, shared.ErrValidation)
}
