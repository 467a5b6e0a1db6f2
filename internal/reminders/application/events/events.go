package events

import "time"

// AdherenceRecorded is published after an occurrence reaches a terminal
// status and its adherence event has been appended to the log.
type AdherenceRecorded struct {
	TenantID     string    `json:"tenant_id"`
	PatientID    string    `json:"patient_id"`
	ScheduleID   string    `json:"schedule_id"`
	OccurrenceID string    `json:"occurrence_id"`
	Taken        bool      `json:"taken"`
	OccurredAt   time.Time `json:"occurred_at"`
}
