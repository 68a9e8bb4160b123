package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTimestamp_SurvivesColumnPrecision(t *testing.T) {
	raw := time.Date(2026, 8, 31, 3, 0, 0, 123456789, time.UTC)
	stored := normalizeTimestamp(raw)

	// timestamptz keeps microseconds. The record returned at append time and
	// the record reloaded from the column must format to the same wire
	// timestamp, since that string is the de-duplication key component.
	reloaded := stored.Truncate(time.Microsecond)

	assert.True(t, stored.Equal(reloaded))
	assert.Equal(t,
		stored.Format(time.RFC3339Nano),
		reloaded.Format(time.RFC3339Nano),
	)
	assert.Equal(t, "2026-08-31T03:00:00.123456Z", stored.Format(time.RFC3339Nano))
}

func TestNormalizeTimestamp_ConvertsToUTC(t *testing.T) {
	local := time.Date(2026, 8, 31, 5, 0, 0, 987654321, time.FixedZone("CEST", 2*60*60))
	stored := normalizeTimestamp(local)

	assert.Equal(t, time.UTC, stored.Location())
	assert.Equal(t, "2026-08-31T03:00:00.987654Z", stored.Format(time.RFC3339Nano))
}
