package core

import (
	"fmt"
	"time"
)

// WeekKey returns the ISO-8601 week label ("2025-W07") for t in loc.
// Weekly boards never rewrite historical rows, membership is decided by
// the key stamped on each donation at write time.
func WeekKey(t time.Time, loc *time.Location) string {
	year, week := t.In(loc).ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func (s *Service) currentWeekKey() string {
	return WeekKey(time.Now(), s.loc)
}
