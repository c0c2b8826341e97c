package service

import (
	"fmt"
	"time"
)

// Win5SlotCount is how many of the day's opening races the quintet bet spans.
const Win5SlotCount = 5

// Schedule maps wall-clock time to race slots. A fixed ordered list of
// daily post times in a single timezone defines the slots; race identifiers
// derive from (date, hour, minute) so concurrent callers converge on the
// same identifier without coordination.
type Schedule struct {
	loc   *time.Location
	slots []slot
}

type slot struct {
	Hour   int
	Minute int
}

// defaultSlots posts a race every hour on the hour from 09:00 to 20:00.
var defaultSlots = []slot{
	{9, 0}, {10, 0}, {11, 0}, {12, 0}, {13, 0}, {14, 0},
	{15, 0}, {16, 0}, {17, 0}, {18, 0}, {19, 0}, {20, 0},
}

// NewSchedule creates the standard daily timetable in the given timezone
func NewSchedule(loc *time.Location) *Schedule {
	return &Schedule{loc: loc, slots: defaultSlots}
}

// SlotCount returns the number of races per day
func (s *Schedule) SlotCount() int {
	return len(s.slots)
}

// postOn returns the post time of slot i on the given day
func (s *Schedule) postOn(day time.Time, i int) time.Time {
	d := day.In(s.loc)
	return time.Date(d.Year(), d.Month(), d.Day(), s.slots[i].Hour, s.slots[i].Minute, 0, 0, s.loc)
}

// RaceID derives the deterministic race identifier for a post time
func (s *Schedule) RaceID(post time.Time) string {
	return post.In(s.loc).Format("20060102-1504")
}

// DayKey returns the race-day prefix of race identifiers for t's day
func (s *Schedule) DayKey(t time.Time) string {
	return t.In(s.loc).Format("20060102")
}

// RaceName names a race by its slot position within the day
func (s *Schedule) RaceName(post time.Time) string {
	p := post.In(s.loc)
	for i, sl := range s.slots {
		if sl.Hour == p.Hour() && sl.Minute == p.Minute() {
			return fmt.Sprintf("Race %d", i+1)
		}
	}
	return "Race"
}

// CurrentPost returns the latest post time at or before now. ok is false
// when no slot has started yet today.
func (s *Schedule) CurrentPost(now time.Time) (post time.Time, ok bool) {
	n := now.In(s.loc)
	for i := len(s.slots) - 1; i >= 0; i-- {
		p := s.postOn(n, i)
		if !p.After(n) {
			return p, true
		}
	}
	return time.Time{}, false
}

// NextPost returns the earliest post time strictly after now, wrapping past
// the end of the list to the first slot of the next day.
func (s *Schedule) NextPost(now time.Time) time.Time {
	n := now.In(s.loc)
	for i := range s.slots {
		p := s.postOn(n, i)
		if p.After(n) {
			return p
		}
	}
	return s.postOn(n.AddDate(0, 0, 1), 0)
}

// FirstPosts returns the first n post times of t's day. The quintet bet
// covers FirstPosts(day, Win5SlotCount).
func (s *Schedule) FirstPosts(day time.Time, n int) []time.Time {
	if n > len(s.slots) {
		n = len(s.slots)
	}
	posts := make([]time.Time, n)
	for i := 0; i < n; i++ {
		posts[i] = s.postOn(day, i)
	}
	return posts
}

// SameDay reports whether both times fall on the same race-day
func (s *Schedule) SameDay(a, b time.Time) bool {
	return s.DayKey(a) == s.DayKey(b)
}
