package progression

import "time"

// dayFormat is the fixed calendar-day format used for all streak
// comparisons. Callers are responsible for timezone normalization; the
// tracker feeds in days derived from a single clock.
const dayFormat = "2006-01-02"

// Streak is the consecutive-study-day block of the learner state.
type Streak struct {
	CurrentStreak  int    `json:"currentStreak"`
	LongestStreak  int    `json:"longestStreak"`
	LastStudyDate  string `json:"lastStudyDate,omitempty"`
	TotalStudyDays int    `json:"totalStudyDays"`
}

// Day formats t as a calendar-day string.
func Day(t time.Time) string {
	return t.Format(dayFormat)
}

// UpdateStreak advances the streak for a study event occurring on today.
//
//   - Same day as the last study event: no-op. A second event on the same
//     calendar day must not double-increment anything.
//   - Exactly one day after: streak extends by one.
//   - Any larger gap, or no prior date: streak restarts at 1.
//
// LongestStreak is kept at the running maximum and TotalStudyDays counts
// each distinct study day once.
func UpdateStreak(st Streak, today string) Streak {
	if st.LastStudyDate == today {
		return st
	}

	if st.LastStudyDate != "" && st.LastStudyDate == previousDay(today) {
		st.CurrentStreak++
	} else {
		st.CurrentStreak = 1
	}
	if st.CurrentStreak > st.LongestStreak {
		st.LongestStreak = st.CurrentStreak
	}
	st.TotalStudyDays++
	st.LastStudyDate = today
	return st
}

// ActiveOn reports whether the learner has already studied on the given day.
func ActiveOn(st Streak, today string) bool {
	return st.LastStudyDate == today
}

// previousDay returns the calendar day before the given day string.
// A malformed day yields an empty string, which never matches a stored date.
func previousDay(day string) string {
	t, err := time.Parse(dayFormat, day)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -1).Format(dayFormat)
}
