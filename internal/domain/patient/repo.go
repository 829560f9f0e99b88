package patient

import (
	"context"
)

// PatientRepository is the Record Store seen by the service. Every method runs
// on the transaction carried in ctx when there is one.
type PatientRepository interface {
	Insert(ctx context.Context, rec *Record) (int64, error)
	// Update overwrites the core fields and reports whether the patient exists.
	Update(ctx context.Context, id int64, rec *Record) (bool, error)
	// Delete removes the patient and its dependents and reports whether it existed.
	Delete(ctx context.Context, id int64) (bool, error)

	SetStatus(ctx context.Context, patientID int64, statusID int) error

	// Addresses
	ReplaceAddresses(ctx context.Context, patientID int64, addrs []Address) error

	// Additional fields
	ResolveField(ctx context.Context, name string, fieldType FieldType) (int, FieldType, error)
	FindField(ctx context.Context, name string) (int, bool, error)
	UpsertFieldValue(ctx context.Context, patientID int64, fieldID int, value string) error
	DeleteFieldValue(ctx context.Context, patientID int64, fieldID int) error

	GetByID(ctx context.Context, id int64) (*Patient, error)
	List(ctx context.Context, filter ListFilter) ([]*Patient, error)
}

type StatusRepository interface {
	List(ctx context.Context) ([]Status, error)
}
