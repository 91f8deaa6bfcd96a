package schedule

import "time"

// BusyInterval is a calendar range reported busy by the remote calendar.
type BusyInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether [start, end) intersects the busy interval,
// treating both as half-open.
func (b BusyInterval) Overlaps(start, end time.Time) bool {
	return start.Before(b.End) && b.Start.Before(end)
}

// ComputeSlots returns, in chronological order, every start time on date's
// day (in date's location) where a meeting of the policy duration fits inside
// the day window without overlapping any busy interval. Candidates step by
// SlotStep from the window start. An empty result is valid.
func ComputeSlots(date time.Time, busy []BusyInterval, policy *Policy) []time.Time {
	window := policy.SlotWindow(date.Weekday())
	duration := policy.Duration()

	// Bounds are wall-clock times so DST days keep the configured hours.
	windowStart := wallClock(date, window.Start)
	windowEnd := wallClock(date, window.End)

	var slots []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(SlotStep) {
		if !overlapsAny(t, t.Add(duration), busy) {
			slots = append(slots, t)
		}
	}
	return slots
}

func wallClock(date time.Time, minutes int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), minutes/60, minutes%60, 0, 0, date.Location())
}

func overlapsAny(start, end time.Time, busy []BusyInterval) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}
