package reminders

import (
	"errors"
	"time"
)

// Schedule is a patient's standing instruction for when to take a medication.
// Schedules are deactivated when discontinued, never deleted.
type Schedule struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	PatientID    string    `json:"patient_id"`
	ScheduleText string    `json:"schedule_text"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate checks schedule invariants. ScheduleText is deliberately not
// validated: unparseable text falls back to the default reminder interval.
func (s Schedule) Validate() error {
	if s.ID == "" {
		return errors.New("schedule: empty id")
	}
	if s.TenantID == "" {
		return errors.New("schedule: empty tenant id")
	}
	if s.PatientID == "" {
		return errors.New("schedule: empty patient id")
	}
	return nil
}
