package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lyengoian/patient-management-portal/internal/platform/apperr"
	"github.com/lyengoian/patient-management-portal/internal/platform/db"
)

var dialect = goqu.Dialect("postgres")

// -- Patient Repository --

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *patientRepoPG) Insert(ctx context.Context, rec *Record) (int64, error) {
	var id int64
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (first_name, middle_name, last_name, date_of_birth)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		rec.FirstName, rec.MiddleName, rec.LastName, rec.DateOfBirth.Time,
	).Scan(&id)
	if err != nil {
		return 0, translate("insert patient", err)
	}
	return id, nil
}

func (r *patientRepoPG) Update(ctx context.Context, id int64, rec *Record) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient
		SET first_name = $2, middle_name = $3, last_name = $4, date_of_birth = $5, updated_at = NOW()
		WHERE id = $1`,
		id, rec.FirstName, rec.MiddleName, rec.LastName, rec.DateOfBirth.Time,
	)
	if err != nil {
		return false, translate("update patient", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return false, translate("delete patient", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *patientRepoPG) SetStatus(ctx context.Context, patientID int64, statusID int) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_status (patient_id, status_id)
		VALUES ($1, $2)
		ON CONFLICT (patient_id) DO UPDATE SET status_id = EXCLUDED.status_id`,
		patientID, statusID,
	)
	return translate("set patient status", err)
}

func (r *patientRepoPG) ReplaceAddresses(ctx context.Context, patientID int64, addrs []Address) error {
	q := r.conn(ctx)
	if _, err := q.Exec(ctx, `DELETE FROM address WHERE patient_id = $1`, patientID); err != nil {
		return translate("delete addresses", err)
	}
	for _, a := range addrs {
		_, err := q.Exec(ctx, `
			INSERT INTO address (patient_id, address_line_1, address_line_2, city, state, zip_code, country)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			patientID, a.AddressLine1, a.AddressLine2, a.City, a.State, a.ZipCode, a.Country,
		)
		if err != nil {
			return translate("insert address", err)
		}
	}
	return nil
}

// ResolveField returns the id and stored type of the named definition,
// creating it with fieldType if needed. The no-op DO UPDATE makes RETURNING
// yield the existing row on conflict, so concurrent writers agree on one
// definition and the first writer's type sticks.
func (r *patientRepoPG) ResolveField(ctx context.Context, name string, fieldType FieldType) (int, FieldType, error) {
	var (
		id     int
		stored string
	)
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO additional_field (field_name, field_type)
		VALUES ($1, $2)
		ON CONFLICT (field_name) DO UPDATE SET field_name = EXCLUDED.field_name
		RETURNING id, field_type`,
		name, string(fieldType.orDefault()),
	).Scan(&id, &stored)
	if err != nil {
		return 0, "", translate("resolve additional field", err)
	}
	return id, FieldType(stored), nil
}

func (r *patientRepoPG) FindField(ctx context.Context, name string) (int, bool, error) {
	var id int
	err := r.conn(ctx).QueryRow(ctx, `SELECT id FROM additional_field WHERE field_name = $1`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, translate("find additional field", err)
	}
	return id, true, nil
}

func (r *patientRepoPG) UpsertFieldValue(ctx context.Context, patientID int64, fieldID int, value string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_field (patient_id, field_id, field_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (patient_id, field_id) DO UPDATE SET field_value = EXCLUDED.field_value`,
		patientID, fieldID, value,
	)
	return translate("upsert field value", err)
}

func (r *patientRepoPG) DeleteFieldValue(ctx context.Context, patientID int64, fieldID int) error {
	_, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM patient_field WHERE patient_id = $1 AND field_id = $2`, patientID, fieldID)
	return translate("delete field value", err)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id int64) (*Patient, error) {
	patients, err := r.query(ctx, goqu.Ex{"p.id": id})
	if err != nil {
		return nil, err
	}
	if len(patients) == 0 {
		return nil, apperr.NotFound("patient %d not found", id)
	}
	return patients[0], nil
}

func (r *patientRepoPG) List(ctx context.Context, filter ListFilter) ([]*Patient, error) {
	where := goqu.Ex{}
	if filter.StatusID > 0 {
		where["ps.status_id"] = filter.StatusID
	}
	return r.query(ctx, where)
}

// rosterQuery joins each patient with its status and addresses, one row per
// address (or one row for a patient without any).
func rosterQuery(where exp.Ex) *goqu.SelectDataset {
	ds := dialect.From(goqu.T("patient").As("p")).
		Select(
			"p.id", "p.first_name", "p.middle_name", "p.last_name", "p.date_of_birth",
			"ps.status_id", "s.status_name",
			"a.id", "a.address_line_1", "a.address_line_2", "a.city", "a.state", "a.zip_code", "a.country",
		).
		LeftJoin(goqu.T("patient_status").As("ps"), goqu.On(goqu.I("ps.patient_id").Eq(goqu.I("p.id")))).
		LeftJoin(goqu.T("status").As("s"), goqu.On(goqu.I("s.id").Eq(goqu.I("ps.status_id")))).
		LeftJoin(goqu.T("address").As("a"), goqu.On(goqu.I("a.patient_id").Eq(goqu.I("p.id"))))
	if len(where) > 0 {
		ds = ds.Where(where)
	}
	return ds.Order(goqu.I("p.id").Asc(), goqu.I("a.id").Asc()).Prepared(true)
}

func (r *patientRepoPG) query(ctx context.Context, where exp.Ex) ([]*Patient, error) {
	sql, args, err := rosterQuery(where).ToSQL()
	if err != nil {
		return nil, apperr.Storage("build roster query", err)
	}

	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, translate("list patients", err)
	}
	defer rows.Close()

	var (
		patients []*Patient
		byID     = map[int64]*Patient{}
	)
	for rows.Next() {
		var (
			pid        int64
			first      string
			middle     *string
			last       string
			dob        time.Time
			statusID   *int
			statusName *string
			addrID     *int64
			line1      *string
			line2      *string
			city       *string
			state      *string
			zip        *string
			country    *string
		)
		if err := rows.Scan(&pid, &first, &middle, &last, &dob, &statusID, &statusName,
			&addrID, &line1, &line2, &city, &state, &zip, &country); err != nil {
			return nil, apperr.Storage("scan patient row", err)
		}

		p, ok := byID[pid]
		if !ok {
			p = &Patient{
				ID:               pid,
				FirstName:        first,
				MiddleName:       middle,
				LastName:         last,
				DateOfBirth:      NewDate(dob.Year(), dob.Month(), dob.Day()),
				Addresses:        []Address{},
				AdditionalFields: []FieldValue{},
			}
			if statusID != nil {
				p.StatusID = *statusID
			}
			if statusName != nil {
				p.StatusName = *statusName
			}
			byID[pid] = p
			patients = append(patients, p)
		}
		if addrID != nil {
			p.Addresses = append(p.Addresses, Address{
				ID:           *addrID,
				AddressLine1: deref(line1),
				AddressLine2: line2,
				City:         deref(city),
				State:        deref(state),
				ZipCode:      deref(zip),
				Country:      country,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, translate("list patients", err)
	}

	if err := r.attachFields(ctx, byID); err != nil {
		return nil, err
	}
	return patients, nil
}

func (r *patientRepoPG) attachFields(ctx context.Context, byID map[int64]*Patient) error {
	if len(byID) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	sql, args, err := dialect.From(goqu.T("patient_field").As("pf")).
		Select("pf.patient_id", "af.field_name", "pf.field_value", "af.field_type").
		Join(goqu.T("additional_field").As("af"), goqu.On(goqu.I("af.id").Eq(goqu.I("pf.field_id")))).
		Where(goqu.Ex{"pf.patient_id": ids}).
		Order(goqu.I("pf.patient_id").Asc(), goqu.I("af.id").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return apperr.Storage("build field query", err)
	}

	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return translate("list additional fields", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			pid       int64
			f         FieldValue
			fieldType string
		)
		if err := rows.Scan(&pid, &f.FieldName, &f.FieldValue, &fieldType); err != nil {
			return apperr.Storage("scan additional field", err)
		}
		f.FieldType = FieldType(fieldType)
		if p := byID[pid]; p != nil {
			p.AdditionalFields = append(p.AdditionalFields, f)
		}
	}
	return translate("list additional fields", rows.Err())
}

// -- Status Repository --

type statusRepoPG struct {
	pool *pgxpool.Pool
}

func NewStatusRepo(pool *pgxpool.Pool) StatusRepository {
	return &statusRepoPG{pool: pool}
}

func (r *statusRepoPG) List(ctx context.Context) ([]Status, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id, status_name FROM status ORDER BY id`)
	if err != nil {
		return nil, translate("list statuses", err)
	}
	defer rows.Close()

	statuses := []Status{}
	for rows.Next() {
		var s Status
		if err := rows.Scan(&s.ID, &s.StatusName); err != nil {
			return nil, apperr.Storage("scan status", err)
		}
		statuses = append(statuses, s)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("list statuses", err)
	}
	return statuses, nil
}

// translate maps a pgx error onto the application error taxonomy. nil stays nil.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("%s: no rows", op)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503":
			if pgErr.ConstraintName == "patient_status_status_id_fkey" {
				return apperr.Validation("unknown status_id")
			}
			return apperr.Validation("%s: referenced row does not exist", op)
		case "23505":
			return apperr.Conflict(fmt.Sprintf("%s: duplicate value", op), err)
		case "23514", "22P02", "22007", "22008":
			return apperr.Validation("%s: %s", op, pgErr.Message)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperr.Storage(op+": request cancelled", err)
	}
	return apperr.Storage(op, err)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
