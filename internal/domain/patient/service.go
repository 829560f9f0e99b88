package patient

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lyengoian/patient-management-portal/internal/platform/apperr"
	"github.com/lyengoian/patient-management-portal/internal/platform/db"
)

type Service struct {
	tx       db.Transactor
	patients PatientRepository
	statuses StatusRepository
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(tx db.Transactor, patients PatientRepository, statuses StatusRepository, logger zerolog.Logger) *Service {
	return &Service{
		tx:       tx,
		patients: patients,
		statuses: statuses,
		logger:   logger.With().Str("component", "patient").Logger(),
		now:      time.Now,
	}
}

// -- Reconciliation --

// CreatePatient writes the patient, its status, its complete addresses and its
// additional fields in one transaction and returns the new id.
func (s *Service) CreatePatient(ctx context.Context, in *Input) (int64, error) {
	rec, err := in.Validate(s.now())
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if id, err = s.patients.Insert(ctx, rec); err != nil {
			return err
		}
		if err := s.patients.SetStatus(ctx, id, rec.StatusID); err != nil {
			return err
		}
		if len(rec.Addresses) > 0 {
			if err := s.patients.ReplaceAddresses(ctx, id, rec.Addresses); err != nil {
				return err
			}
		}
		return s.upsertFields(ctx, id, rec.Fields)
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("op", "create").Msg("patient write rolled back")
		return 0, err
	}

	s.logger.Info().Int64("patient_id", id).Msg("patient created")
	return id, nil
}

// UpdatePatient reconciles the stored patient with the submitted state: core
// fields and status are overwritten, addresses are replaced wholesale, fields
// are upserted and then the removed names are dropped.
func (s *Service) UpdatePatient(ctx context.Context, id int64, in *Input) error {
	if id <= 0 {
		return apperr.Validation("invalid patient id %d", id)
	}
	rec, err := in.Validate(s.now())
	if err != nil {
		return err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		found, err := s.patients.Update(ctx, id, rec)
		if err != nil {
			return err
		}
		if !found {
			return apperr.NotFound("patient %d not found", id)
		}
		if err := s.patients.SetStatus(ctx, id, rec.StatusID); err != nil {
			return err
		}
		if err := s.patients.ReplaceAddresses(ctx, id, rec.Addresses); err != nil {
			return err
		}
		if err := s.upsertFields(ctx, id, rec.Fields); err != nil {
			return err
		}
		return s.removeFields(ctx, id, rec.Removed)
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("op", "update").Int64("patient_id", id).Msg("patient write rolled back")
		return err
	}

	s.logger.Info().Int64("patient_id", id).Msg("patient updated")
	return nil
}

// DeletePatient removes the patient; addresses, status and field values go
// with it. Field definitions are kept.
func (s *Service) DeletePatient(ctx context.Context, id int64) error {
	if id <= 0 {
		return apperr.Validation("invalid patient id %d", id)
	}
	found, err := s.patients.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return apperr.NotFound("patient %d not found", id)
	}
	s.logger.Info().Int64("patient_id", id).Msg("patient deleted")
	return nil
}

// upsertFields writes each value against its shared definition. A value is
// checked against the stored definition's type, not the type sent with it.
func (s *Service) upsertFields(ctx context.Context, patientID int64, fields []FieldValue) error {
	for _, f := range fields {
		fieldID, stored, err := s.patients.ResolveField(ctx, f.FieldName, f.FieldType)
		if err != nil {
			return fmt.Errorf("field %q: %w", f.FieldName, err)
		}
		if f.FieldType != "" && f.FieldType != stored {
			return apperr.Validation("additional field %q is defined as %s", f.FieldName, stored)
		}
		if stored == FieldNumber && !isNumber(f.FieldValue) {
			return apperr.Validation("additional field %q: %q is not a number", f.FieldName, f.FieldValue)
		}
		if err := s.patients.UpsertFieldValue(ctx, patientID, fieldID, f.FieldValue); err != nil {
			return fmt.Errorf("field %q: %w", f.FieldName, err)
		}
	}
	return nil
}

// removeFields drops the named values. Names that were never defined are
// ignored.
func (s *Service) removeFields(ctx context.Context, patientID int64, names []string) error {
	for _, name := range names {
		fieldID, ok, err := s.patients.FindField(ctx, name)
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		if !ok {
			continue
		}
		if err := s.patients.DeleteFieldValue(ctx, patientID, fieldID); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
	}
	return nil
}

// -- Queries --

// ListPatients returns the roster ordered by id. A non-empty filter.Query is
// applied after loading, since it matches across addresses and fields.
func (s *Service) ListPatients(ctx context.Context, filter ListFilter) ([]*Patient, error) {
	patients, err := s.patients.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if filter.Query == "" {
		return patients, nil
	}

	terms := ParseQuery(filter.Query)
	matched := make([]*Patient, 0, len(patients))
	for _, p := range patients {
		if Matches(p, terms) {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

func (s *Service) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	if id <= 0 {
		return nil, apperr.Validation("invalid patient id %d", id)
	}
	return s.patients.GetByID(ctx, id)
}

func (s *Service) ListStatuses(ctx context.Context) ([]Status, error) {
	return s.statuses.List(ctx)
}
