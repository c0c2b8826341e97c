package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokyoTime(t *testing.T, hour, minute int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	return time.Date(2026, 3, 14, hour, minute, 0, 0, loc)
}

func TestSchedule_RaceID(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	s := NewSchedule(loc)

	post := tokyoTime(t, 9, 0)
	assert.Equal(t, "20260314-0900", s.RaceID(post))

	// The identifier is derived in the schedule's zone regardless of the
	// input's zone.
	assert.Equal(t, "20260314-0900", s.RaceID(post.UTC()))
}

func TestSchedule_CurrentPost(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	s := NewSchedule(loc)

	tests := []struct {
		name    string
		now     time.Time
		want    string
		started bool
	}{
		{"before first slot", tokyoTime(t, 8, 59), "", false},
		{"exactly at first slot", tokyoTime(t, 9, 0), "20260314-0900", true},
		{"mid morning", tokyoTime(t, 10, 30), "20260314-1000", true},
		{"after last slot", tokyoTime(t, 23, 0), "20260314-2000", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			post, ok := s.CurrentPost(tt.now)
			assert.Equal(t, tt.started, ok)
			if tt.started {
				assert.Equal(t, tt.want, s.RaceID(post))
			}
		})
	}
}

func TestSchedule_NextPost_WrapsToNextDay(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	s := NewSchedule(loc)

	next := s.NextPost(tokyoTime(t, 20, 0))
	assert.Equal(t, "20260315-0900", s.RaceID(next))

	next = s.NextPost(tokyoTime(t, 12, 0))
	assert.Equal(t, "20260314-1300", s.RaceID(next))
}

func TestSchedule_FirstPosts(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	s := NewSchedule(loc)

	posts := s.FirstPosts(tokyoTime(t, 15, 0), Win5SlotCount)
	require.Len(t, posts, 5)
	assert.Equal(t, "20260314-0900", s.RaceID(posts[0]))
	assert.Equal(t, "20260314-1300", s.RaceID(posts[4]))
}

func TestSchedule_SameDay(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	s := NewSchedule(loc)

	assert.True(t, s.SameDay(tokyoTime(t, 9, 0), tokyoTime(t, 20, 0)))
	assert.False(t, s.SameDay(tokyoTime(t, 9, 0), tokyoTime(t, 9, 0).AddDate(0, 0, 1)))

	// Day membership follows the schedule's zone, not the input's.
	lateUTC := time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "20260315", s.DayKey(lateUTC))
}
