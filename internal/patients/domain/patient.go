package patients

import "context"

// Patient is the master record for a monitored person.
type Patient struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Name      string `json:"name"`
	Condition string `json:"condition"`
	DoctorID  string `json:"doctor_id"`
}

// Repository persists patient master data.
type Repository interface {
	Get(ctx context.Context, id string) (*Patient, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Patient, error)
	Save(ctx context.Context, patient *Patient) error
}
