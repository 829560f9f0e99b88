package patient

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lyengoian/patient-management-portal/internal/platform/apperr"
)

// memStore is an in-memory Record Store. WithinTx snapshots the whole state
// and restores it when fn fails, which gives the service the same
// all-or-nothing behaviour as a database transaction.
type memStore struct {
	mu sync.Mutex

	patients  map[int64]*memPatient
	statuses  []Status
	fields    map[string]memField
	values    map[int64]map[int]string
	nextID    int64
	nextField int
	nextAddr  int64

	// failOn makes the named repository method return the error.
	failOn map[string]error
	calls  []string
}

type memPatient struct {
	rec       Record
	statusID  int
	addresses []Address
}

type memField struct {
	id        int
	fieldType FieldType
}

func newMemStore() *memStore {
	return &memStore{
		patients: map[int64]*memPatient{},
		statuses: []Status{
			{ID: 1, StatusName: "Inquiry"},
			{ID: 2, StatusName: "Onboarding"},
			{ID: 3, StatusName: "Active"},
			{ID: 4, StatusName: "Churned"},
		},
		fields: map[string]memField{},
		values: map[int64]map[int]string{},
		failOn: map[string]error{},
	}
}

type memSnapshot struct {
	patients  map[int64]*memPatient
	fields    map[string]memField
	values    map[int64]map[int]string
	nextID    int64
	nextField int
	nextAddr  int64
}

func (m *memStore) snapshot() memSnapshot {
	s := memSnapshot{
		patients:  make(map[int64]*memPatient, len(m.patients)),
		fields:    make(map[string]memField, len(m.fields)),
		values:    make(map[int64]map[int]string, len(m.values)),
		nextID:    m.nextID,
		nextField: m.nextField,
		nextAddr:  m.nextAddr,
	}
	for id, p := range m.patients {
		cp := *p
		cp.addresses = append([]Address(nil), p.addresses...)
		s.patients[id] = &cp
	}
	for k, v := range m.fields {
		s.fields[k] = v
	}
	for pid, vals := range m.values {
		cp := make(map[int]string, len(vals))
		for k, v := range vals {
			cp[k] = v
		}
		s.values[pid] = cp
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.patients = s.patients
	m.fields = s.fields
	m.values = s.values
	m.nextID = s.nextID
	m.nextField = s.nextField
	m.nextAddr = s.nextAddr
}

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	snap := m.snapshot()
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.restore(snap)
		m.mu.Unlock()
		return err
	}
	return nil
}

// enter records the call and returns the injected failure, if any. Callers
// hold m.mu.
func (m *memStore) enter(method string) error {
	m.calls = append(m.calls, method)
	return m.failOn[method]
}

func (m *memStore) Insert(_ context.Context, rec *Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Insert"); err != nil {
		return 0, err
	}
	m.nextID++
	m.patients[m.nextID] = &memPatient{rec: *rec}
	return m.nextID, nil
}

func (m *memStore) Update(_ context.Context, id int64, rec *Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Update"); err != nil {
		return false, err
	}
	p, ok := m.patients[id]
	if !ok {
		return false, nil
	}
	p.rec.FirstName = rec.FirstName
	p.rec.MiddleName = rec.MiddleName
	p.rec.LastName = rec.LastName
	p.rec.DateOfBirth = rec.DateOfBirth
	return true, nil
}

func (m *memStore) Delete(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Delete"); err != nil {
		return false, err
	}
	if _, ok := m.patients[id]; !ok {
		return false, nil
	}
	delete(m.patients, id)
	delete(m.values, id)
	return true, nil
}

func (m *memStore) SetStatus(_ context.Context, patientID int64, statusID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SetStatus"); err != nil {
		return err
	}
	known := false
	for _, s := range m.statuses {
		if s.ID == statusID {
			known = true
		}
	}
	if !known {
		return apperr.Validation("unknown status_id")
	}
	m.patients[patientID].statusID = statusID
	return nil
}

func (m *memStore) ReplaceAddresses(_ context.Context, patientID int64, addrs []Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ReplaceAddresses"); err != nil {
		return err
	}
	p := m.patients[patientID]
	p.addresses = nil
	for _, a := range addrs {
		m.nextAddr++
		a.ID = m.nextAddr
		p.addresses = append(p.addresses, a)
	}
	return nil
}

func (m *memStore) ResolveField(_ context.Context, name string, fieldType FieldType) (int, FieldType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ResolveField"); err != nil {
		return 0, "", err
	}
	if f, ok := m.fields[name]; ok {
		return f.id, f.fieldType, nil
	}
	m.nextField++
	m.fields[name] = memField{id: m.nextField, fieldType: fieldType.orDefault()}
	return m.nextField, fieldType.orDefault(), nil
}

func (m *memStore) FindField(_ context.Context, name string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindField"); err != nil {
		return 0, false, err
	}
	f, ok := m.fields[name]
	return f.id, ok, nil
}

func (m *memStore) UpsertFieldValue(_ context.Context, patientID int64, fieldID int, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpsertFieldValue"); err != nil {
		return err
	}
	if m.values[patientID] == nil {
		m.values[patientID] = map[int]string{}
	}
	m.values[patientID][fieldID] = value
	return nil
}

func (m *memStore) DeleteFieldValue(_ context.Context, patientID int64, fieldID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteFieldValue"); err != nil {
		return err
	}
	delete(m.values[patientID], fieldID)
	return nil
}

func (m *memStore) GetByID(_ context.Context, id int64) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetByID"); err != nil {
		return nil, err
	}
	if _, ok := m.patients[id]; !ok {
		return nil, apperr.NotFound("patient %d not found", id)
	}
	return m.view(id), nil
}

func (m *memStore) List(_ context.Context, filter ListFilter) ([]*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("List"); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(m.patients))
	for id, p := range m.patients {
		if filter.StatusID > 0 && p.statusID != filter.StatusID {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]*Patient, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.view(id))
	}
	return out, nil
}

func (m *memStore) view(id int64) *Patient {
	p := m.patients[id]
	v := &Patient{
		ID:               id,
		FirstName:        p.rec.FirstName,
		MiddleName:       p.rec.MiddleName,
		LastName:         p.rec.LastName,
		DateOfBirth:      p.rec.DateOfBirth,
		StatusID:         p.statusID,
		Addresses:        append([]Address{}, p.addresses...),
		AdditionalFields: []FieldValue{},
	}
	for _, s := range m.statuses {
		if s.ID == p.statusID {
			v.StatusName = s.StatusName
		}
	}

	type named struct {
		id int
		f  FieldValue
	}
	var fields []named
	for name, def := range m.fields {
		if val, ok := m.values[id][def.id]; ok {
			fields = append(fields, named{def.id, FieldValue{FieldName: name, FieldValue: val, FieldType: def.fieldType}})
		}
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].id < fields[j].id })
	for _, f := range fields {
		v.AdditionalFields = append(v.AdditionalFields, f.f)
	}
	return v
}

// valueCount is the number of stored value rows across all patients.
func (m *memStore) valueCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, vals := range m.values {
		n += len(vals)
	}
	return n
}

func (m *memStore) fieldDefinitions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.fields))
	for name := range m.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *memStore) fail(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[method] = apperr.Storage(fmt.Sprintf("%s failed", method), fmt.Errorf("injected"))
}

// memStatuses counts List calls, for cache tests.
type memStatuses struct {
	mu       sync.Mutex
	statuses []Status
	calls    int
	err      error
}

func (s *memStatuses) List(context.Context) ([]Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return append([]Status(nil), s.statuses...), nil
}
