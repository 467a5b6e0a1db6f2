package reminders

import "errors"

var (
	// ErrNotFound indicates a missing schedule or occurrence record.
	ErrNotFound = errors.New("reminder: not found")
	// ErrAlreadyResolved indicates a mark on an occurrence that already
	// reached a terminal status.
	ErrAlreadyResolved = errors.New("reminder: occurrence already resolved")
	// ErrScheduleInactive indicates an operation on a deactivated schedule.
	ErrScheduleInactive = errors.New("reminder: schedule inactive")
)
