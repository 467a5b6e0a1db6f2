package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	patients "carecoord/internal/patients/domain"
)

// PatientRepository is an in-memory patient store for demo/testing.
type PatientRepository struct {
	mu   sync.RWMutex
	data map[string]*patients.Patient
}

// NewPatientRepository constructs a repository.
func NewPatientRepository() *PatientRepository {
	return &PatientRepository{data: make(map[string]*patients.Patient)}
}

// Get loads a patient by id. Returns nil when absent.
func (r *PatientRepository) Get(ctx context.Context, id string) (*patients.Patient, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	patient := r.data[id]
	if patient == nil {
		return nil, nil
	}
	copied := *patient
	return &copied, nil
}

// ListByTenant lists a clinic's patients sorted by id.
func (r *PatientRepository) ListByTenant(ctx context.Context, tenantID string) ([]patients.Patient, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []patients.Patient
	for _, patient := range r.data {
		if patient != nil && patient.TenantID == tenantID {
			result = append(result, *patient)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Save upserts a patient.
func (r *PatientRepository) Save(ctx context.Context, patient *patients.Patient) error {
	_ = ctx
	if patient == nil || patient.ID == "" {
		return errors.New("memory patient repo: invalid patient")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *patient
	r.data[patient.ID] = &copied
	return nil
}
