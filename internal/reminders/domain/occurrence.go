package reminders

import (
	"fmt"
	"time"
)

const (
	StatusPending = "pending"
	StatusTaken   = "taken"
	StatusMissed  = "missed"
)

// Occurrence is one concrete instance of a schedule's reminder. Every active
// schedule has exactly one pending occurrence at any instant; resolving it
// spawns the next cycle.
type Occurrence struct {
	ID         string    `json:"id"`
	ScheduleID string    `json:"schedule_id"`
	TenantID   string    `json:"tenant_id"`
	PatientID  string    `json:"patient_id"`
	Cycle      int       `json:"cycle"`
	DueAt      time.Time `json:"due_at"`
	Status     string    `json:"status"`
	ResolvedAt time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Terminal returns true once the occurrence has been resolved.
func (o Occurrence) Terminal() bool {
	return o.Status == StatusTaken || o.Status == StatusMissed
}

// BuildOccurrenceID derives a cycle-unique occurrence id. The cycle counter
// disambiguates which cycle an adherence event belongs to; schedule ids alone
// are not reused across cycles.
func BuildOccurrenceID(scheduleID string, cycle int) string {
	return fmt.Sprintf("%s#%d", scheduleID, cycle)
}
