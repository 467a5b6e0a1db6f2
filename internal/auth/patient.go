package auth

import (
	"context"
	"database/sql"
	"errors"

	patientrepo "carecoord/internal/patients/infrastructure/postgres"
)

var (
	// ErrTenantMismatch indicates resource belongs to a different clinic.
	ErrTenantMismatch = errors.New("tenant mismatch")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("resource not found")
)

// PatientTenantChecker validates patient clinic ownership.
type PatientTenantChecker interface {
	EnsurePatientTenant(ctx context.Context, tenantID, patientID string) error
}

// PatientChecker checks patient ownership against master data.
type PatientChecker struct {
	repo *patientrepo.PatientRepository
}

// NewPatientChecker constructs a PatientChecker.
func NewPatientChecker(db *sql.DB) *PatientChecker {
	if db == nil {
		return nil
	}
	return &PatientChecker{repo: patientrepo.NewPatientRepository(db)}
}

// EnsurePatientTenant verifies patient belongs to the clinic.
func (c *PatientChecker) EnsurePatientTenant(ctx context.Context, tenantID, patientID string) error {
	if c == nil || c.repo == nil {
		return nil
	}
	if tenantID == "" || patientID == "" {
		return nil
	}
	patient, err := c.repo.Get(ctx, patientID)
	if err != nil {
		return err
	}
	if patient == nil {
		return ErrNotFound
	}
	if patient.TenantID != tenantID {
		return ErrTenantMismatch
	}
	return nil
}
