package ledger

import (
	"fmt"
	"time"

	"github.com/mealsync/mealsync/internal/domain"
)

// DefaultGrace is the response window applied when no meal schedule is
// configured: entries created now lock at now + DefaultGrace.
const DefaultGrace = 30 * time.Minute

// MealSchedule maps each meal type to its scheduled time of day in
// "15:04" form. An empty schedule disables schedule-derived deadlines.
type MealSchedule map[domain.MealType]string

// DeadlinePolicy computes the response deadline assigned to a newly
// created attendance entry.
//
// With a schedule, the deadline is the scheduled mealtime on the
// entry's date minus Lead. Without one (or for a meal missing from the
// schedule) the deadline is creation time plus Grace.
type DeadlinePolicy struct {
	Grace    time.Duration
	Lead     time.Duration
	Schedule MealSchedule
	Location *time.Location
}

// DefaultPolicy returns a grace-window-only policy.
func DefaultPolicy() DeadlinePolicy {
	return DeadlinePolicy{Grace: DefaultGrace, Location: time.Local}
}

// Validate checks that every scheduled time parses.
func (p DeadlinePolicy) Validate() error {
	for meal, at := range p.Schedule {
		if !domain.ValidMealType(meal) {
			return fmt.Errorf("unknown meal type %q in schedule", meal)
		}
		if _, err := time.Parse("15:04", at); err != nil {
			return fmt.Errorf("invalid schedule time %q for %s", at, meal)
		}
	}
	return nil
}

// DeadlineFor computes the deadline for an entry keyed by date and meal
// created at the given time.
func (p DeadlinePolicy) DeadlineFor(date string, meal domain.MealType, createdAt time.Time) *time.Time {
	if at, ok := p.Schedule[meal]; ok {
		if mealtime, err := p.mealtime(date, at); err == nil {
			d := mealtime.Add(-p.Lead)
			return &d
		}
	}
	grace := p.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}
	d := createdAt.Add(grace)
	return &d
}

func (p DeadlinePolicy) mealtime(date, at string) (time.Time, error) {
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation("2006-01-02 15:04", date+" "+at, loc)
}
