package patient

import (
	"regexp"
	"strings"
	"time"

	"github.com/lyengoian/patient-management-portal/internal/platform/apperr"
)

// decimalPattern matches plain decimal literals with an optional exponent.
// NaN, Inf and hex floats do not match.
var decimalPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

func isNumber(s string) bool {
	return decimalPattern.MatchString(s)
}

// Validate checks the input against the write rules and returns the normalized
// record. today is the reference date for rejecting future birth dates.
func (in *Input) Validate(today time.Time) (*Record, error) {
	rec := &Record{
		FirstName:  strings.TrimSpace(in.FirstName),
		MiddleName: trimOptional(in.MiddleName),
		LastName:   strings.TrimSpace(in.LastName),
		StatusID:   int(in.StatusID),
	}

	if rec.FirstName == "" {
		return nil, apperr.Validation("first_name is required")
	}
	if rec.LastName == "" {
		return nil, apperr.Validation("last_name is required")
	}

	if strings.TrimSpace(in.DateOfBirth) == "" {
		return nil, apperr.Validation("date_of_birth is required")
	}
	dob, err := ParseDate(in.DateOfBirth)
	if err != nil {
		return nil, apperr.Validation("date_of_birth %q is not a valid date", in.DateOfBirth)
	}
	y, m, d := today.Date()
	if dob.After(time.Date(y, m, d, 0, 0, 0, 0, time.UTC)) {
		return nil, apperr.Validation("date_of_birth cannot be in the future")
	}
	rec.DateOfBirth = dob

	if rec.StatusID <= 0 {
		return nil, apperr.Validation("status_id is required")
	}

	for _, a := range in.Addresses {
		if a.Complete() {
			rec.Addresses = append(rec.Addresses, a.normalized())
		}
	}

	seen := make(map[string]bool, len(in.AdditionalFields))
	for i, f := range in.AdditionalFields {
		name := strings.TrimSpace(f.FieldName)
		if name == "" {
			return nil, apperr.Validation("additional_fields[%d]: fieldName is required", i)
		}
		if seen[name] {
			return nil, apperr.Validation("additional field %q appears more than once", name)
		}
		seen[name] = true

		if !f.FieldType.Valid() {
			return nil, apperr.Validation("additional field %q: fieldType must be text or number", name)
		}
		value := strings.TrimSpace(f.FieldValue)
		if f.FieldType == FieldNumber && !isNumber(value) {
			return nil, apperr.Validation("additional field %q: %q is not a number", name, f.FieldValue)
		}
		rec.Fields = append(rec.Fields, FieldValue{FieldName: name, FieldValue: value, FieldType: f.FieldType})
	}

	removed := make(map[string]bool, len(in.RemovedFields))
	for _, r := range in.RemovedFields {
		name := strings.TrimSpace(r.FieldName)
		if name == "" || removed[name] {
			continue
		}
		removed[name] = true
		rec.Removed = append(rec.Removed, name)
	}

	return rec, nil
}
