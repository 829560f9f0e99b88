package patient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is a reference-data label assigned to a patient.
type Status struct {
	ID         int    `json:"id"`
	StatusName string `json:"status_name"`
}

// FieldType tags an additional field definition.
type FieldType string

const (
	FieldText   FieldType = "text"
	FieldNumber FieldType = "number"
)

func (t FieldType) Valid() bool {
	return t == "" || t == FieldText || t == FieldNumber
}

// orDefault returns the stored type for a definition created from t.
func (t FieldType) orDefault() FieldType {
	if t == "" {
		return FieldText
	}
	return t
}

// FieldValue is one user-defined (name, value) attribute of a patient.
type FieldValue struct {
	FieldName  string    `json:"fieldName"`
	FieldValue string    `json:"fieldValue"`
	FieldType  FieldType `json:"fieldType,omitempty"`
}

// RemovedField names an additional field to drop from a patient on update.
type RemovedField struct {
	FieldName string `json:"fieldName"`
}

// Address is one postal address of a patient. It is rendered with the
// camelCase keys the web client reads.
type Address struct {
	ID           int64   `json:"-"`
	AddressLine1 string  `json:"addressLine1"`
	AddressLine2 *string `json:"addressLine2,omitempty"`
	City         string  `json:"city"`
	State        string  `json:"state"`
	ZipCode      string  `json:"zipCode"`
	Country      *string `json:"country,omitempty"`
}

// UnmarshalJSON accepts the camelCase keys as well as their snake_case
// spellings (address_line_1, address_line_2, zip_code).
func (a *Address) UnmarshalJSON(data []byte) error {
	var raw struct {
		AddressLine1 string  `json:"addressLine1"`
		AddressLine2 *string `json:"addressLine2"`
		City         string  `json:"city"`
		State        string  `json:"state"`
		ZipCode      string  `json:"zipCode"`
		Country      *string `json:"country"`

		SnakeLine1 string  `json:"address_line_1"`
		SnakeLine2 *string `json:"address_line_2"`
		SnakeZip   string  `json:"zip_code"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*a = Address{
		AddressLine1: firstNonEmpty(raw.AddressLine1, raw.SnakeLine1),
		AddressLine2: raw.AddressLine2,
		City:         raw.City,
		State:        raw.State,
		ZipCode:      firstNonEmpty(raw.ZipCode, raw.SnakeZip),
		Country:      raw.Country,
	}
	if a.AddressLine2 == nil {
		a.AddressLine2 = raw.SnakeLine2
	}
	return nil
}

// Complete reports whether every required sub-field is present. Incomplete
// addresses are skipped on write rather than rejected.
func (a Address) Complete() bool {
	return strings.TrimSpace(a.AddressLine1) != "" &&
		strings.TrimSpace(a.City) != "" &&
		strings.TrimSpace(a.State) != "" &&
		strings.TrimSpace(a.ZipCode) != ""
}

func (a Address) normalized() Address {
	return Address{
		AddressLine1: strings.TrimSpace(a.AddressLine1),
		AddressLine2: trimOptional(a.AddressLine2),
		City:         strings.TrimSpace(a.City),
		State:        strings.TrimSpace(a.State),
		ZipCode:      strings.TrimSpace(a.ZipCode),
		Country:      trimOptional(a.Country),
	}
}

// Date is a calendar date rendered as YYYY-MM-DD.
type Date struct {
	time.Time
}

const isoDate = "2006-01-02"

var dateLayouts = []string{isoDate, time.RFC3339Nano, time.RFC3339, "01-02-2006", "01/02/2006"}

// ParseDate accepts ISO dates, RFC 3339 timestamps and the MM-DD-YYYY form
// posted by the web client.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDate(t.Year(), t.Month(), t.Day()), nil
		}
	}
	return Date{}, fmt.Errorf("unrecognised date %q", s)
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(isoDate)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// NumericID decodes from a JSON number or a numeric string; the web client
// posts select values as strings.
type NumericID int

func (n *NumericID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	s := string(bytes.Trim(data, `"`))
	if strings.TrimSpace(s) == "" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("status_id must be an integer, got %s", data)
	}
	*n = NumericID(v)
	return nil
}

// Patient is the normalized view returned by the query operations.
type Patient struct {
	ID               int64        `json:"id"`
	FirstName        string       `json:"first_name"`
	MiddleName       *string      `json:"middle_name"`
	LastName         string       `json:"last_name"`
	DateOfBirth      Date         `json:"date_of_birth"`
	StatusID         int          `json:"status_id"`
	StatusName       string       `json:"status_name"`
	Addresses        []Address    `json:"addresses"`
	AdditionalFields []FieldValue `json:"additional_fields"`
}

// Input is the desired target state submitted on create and update.
type Input struct {
	FirstName        string         `json:"first_name"`
	MiddleName       *string        `json:"middle_name"`
	LastName         string         `json:"last_name"`
	DateOfBirth      string         `json:"date_of_birth"`
	StatusID         NumericID      `json:"status_id"`
	Addresses        []Address      `json:"addresses"`
	AdditionalFields []FieldValue   `json:"additional_fields"`
	RemovedFields    []RemovedField `json:"removed_fields"`
}

// Record is an Input that passed validation, ready to be written.
type Record struct {
	FirstName   string
	MiddleName  *string
	LastName    string
	DateOfBirth Date
	StatusID    int
	Addresses   []Address
	Fields      []FieldValue
	Removed     []string
}

// ListFilter narrows the roster returned by ListPatients.
type ListFilter struct {
	StatusID int
	Query    string
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
