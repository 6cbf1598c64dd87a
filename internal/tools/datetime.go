package tools

import (
	"context"
	"fmt"
	"time"
)

// Clock implements the get_current_date_time tool. It has no side effects
// and never fails.
type Clock struct {
	now func() time.Time
}

// NewClock creates a Clock reading the system time.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// NewClockAt creates a Clock with an injected time source for tests.
func NewClockAt(now func() time.Time) *Clock {
	return &Clock{now: now}
}

// CurrentDateTime renders the current date, time and day of week.
func (c *Clock) CurrentDateTime(_ context.Context, _ DateTimeArgs) string {
	now := c.now()
	return fmt.Sprintf("%s, %s (ISO 8601: %s)",
		now.Format("Monday"),
		now.Format("2006-01-02 15:04:05"),
		now.Format(time.RFC3339),
	)
}
