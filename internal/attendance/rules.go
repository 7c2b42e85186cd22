package attendance

import (
	"fmt"
	"time"
)

// DayLayout is the storage format of attendance dates.
const DayLayout = "2006-01-02"

// DefaultMinCheckoutGap is the shortest allowed interval between check-in and check-out.
const DefaultMinCheckoutGap = 5 * time.Minute

// Day returns the attendance date for t in loc.
func Day(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DayLayout)
}

// ValidDay reports whether value is a YYYY-MM-DD date.
func ValidDay(value string) bool {
	_, err := time.Parse(DayLayout, value)
	return err == nil
}

// RejectionReason classifies a business-rule rejection.
type RejectionReason string

const (
	ReasonAlreadyCheckedIn  RejectionReason = "already_checked_in"
	ReasonNoCheckIn         RejectionReason = "no_check_in"
	ReasonTooEarly          RejectionReason = "too_early"
	ReasonAlreadyCheckedOut RejectionReason = "already_checked_out"
)

// Rejection is a normal outcome that stops an attendance write. It is not an
// infrastructure error.
type Rejection struct {
	Reason  RejectionReason
	Message string
}

func (r *Rejection) Error() string {
	return r.Message
}

// clock renders t as HH:MM in loc (time.Local when nil).
func clock(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("15:04")
}

// GuardCheckIn returns a rejection when status already has a check-in. Times
// in the message are shown in loc.
func GuardCheckIn(status Status, loc *time.Location) *Rejection {
	if status.CheckIn != nil {
		return &Rejection{
			Reason:  ReasonAlreadyCheckedIn,
			Message: "already checked in today at " + clock(*status.CheckIn, loc),
		}
	}
	return nil
}

// GuardCheckOut returns a rejection when a check-out at now is not allowed.
func GuardCheckOut(status Status, now time.Time, minGap time.Duration, loc *time.Location) *Rejection {
	if status.CheckIn == nil {
		return &Rejection{Reason: ReasonNoCheckIn, Message: "no check-in recorded today"}
	}
	if status.CheckOut != nil {
		return &Rejection{
			Reason:  ReasonAlreadyCheckedOut,
			Message: "already checked out today at " + clock(*status.CheckOut, loc),
		}
	}
	if elapsed := now.Sub(*status.CheckIn); elapsed < minGap {
		return TooEarly(minGap)
	}
	return nil
}

// TooEarly is the rejection for a check-out inside the minimum gap.
func TooEarly(minGap time.Duration) *Rejection {
	return &Rejection{
		Reason:  ReasonTooEarly,
		Message: fmt.Sprintf("must wait %s after check-in before checking out", formatMinutes(minGap)),
	}
}

// Guard applies the rule for direction.
func Guard(direction Direction, status Status, now time.Time, minGap time.Duration, loc *time.Location) *Rejection {
	if direction == CheckOut {
		return GuardCheckOut(status, now, minGap, loc)
	}
	return GuardCheckIn(status, loc)
}

func formatMinutes(d time.Duration) string {
	minutes := int(d / time.Minute)
	if minutes == 1 {
		return "1 minute"
	}
	if minutes > 0 && d%time.Minute == 0 {
		return fmt.Sprintf("%d minutes", minutes)
	}
	return d.String()
}

// FormatDuration renders a worked duration as H:MM.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Minute)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
