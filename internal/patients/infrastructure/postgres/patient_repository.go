package postgres

import (
	"context"
	"database/sql"
	"errors"

	patients "carecoord/internal/patients/domain"
)

// PatientRepository is a Postgres repository for patient master data.
type PatientRepository struct {
	db *sql.DB
}

// NewPatientRepository constructs a repository.
func NewPatientRepository(db *sql.DB) *PatientRepository {
	return &PatientRepository{db: db}
}

// Get fetches a patient by id. Returns nil when absent.
func (r *PatientRepository) Get(ctx context.Context, id string) (*patients.Patient, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("patient repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, name, condition, doctor_id
FROM patients
WHERE id = $1`, id)
	var patient patients.Patient
	if err := row.Scan(&patient.ID, &patient.TenantID, &patient.Name, &patient.Condition, &patient.DoctorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &patient, nil
}

// ListByTenant lists a clinic's patients.
func (r *PatientRepository) ListByTenant(ctx context.Context, tenantID string) ([]patients.Patient, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("patient repo: nil db")
	}
	if tenantID == "" {
		return nil, errors.New("patient repo: invalid query")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, tenant_id, name, condition, doctor_id
FROM patients
WHERE tenant_id = $1
ORDER BY name ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []patients.Patient
	for rows.Next() {
		var patient patients.Patient
		if err := rows.Scan(&patient.ID, &patient.TenantID, &patient.Name, &patient.Condition, &patient.DoctorID); err != nil {
			return nil, err
		}
		result = append(result, patient)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save upserts a patient.
func (r *PatientRepository) Save(ctx context.Context, patient *patients.Patient) error {
	if r == nil || r.db == nil {
		return errors.New("patient repo: nil db")
	}
	if patient == nil {
		return errors.New("patient repo: nil patient")
	}
	if patient.ID == "" || patient.TenantID == "" {
		return errors.New("patient repo: missing fields")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO patients (id, tenant_id, name, condition, doctor_id)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name,
	condition = EXCLUDED.condition,
	doctor_id = EXCLUDED.doctor_id`,
		patient.ID, patient.TenantID, patient.Name, patient.Condition, patient.DoctorID)
	return err
}
