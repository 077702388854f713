package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"labcore/internal/domain"

	"github.com/jackc/pgx/v5"
)

const patientColumns = `
	id,
	patient_id,
	name,
	cnic,
	phone,
	age,
	gender,
	address,
	guardian_name,
	guardian_relation,
	created_at,
	updated_at
`

type PatientListFilter struct {
	Search string
	Limit  int
	Offset int
}

// FindPatientByKey looks up an existing patient by CNIC first, then by phone.
// Returns domain.ErrNotFound when neither key matches.
func (r *Repository) FindPatientByKey(ctx context.Context, cnic, phone *string) (*domain.Patient, error) {
	if key := trimmed(cnic); key != "" {
		patient, err := r.findPatientWhere(ctx, "cnic = $1", key)
		if err == nil {
			return patient, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if key := trimmed(phone); key != "" {
		return r.findPatientWhere(ctx, "phone = $1", key)
	}
	return nil, domain.ErrNotFound
}

func (r *Repository) findPatientWhere(ctx context.Context, where string, arg any) (*domain.Patient, error) {
	row := r.pool.QueryRow(ctx,
		"SELECT "+patientColumns+" FROM patients WHERE "+where+" ORDER BY id ASC LIMIT 1", arg)
	patient, err := scanPatientRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find patient: %w", err)
	}
	return &patient, nil
}

func (r *Repository) CreatePatient(ctx context.Context, patient domain.Patient) (domain.Patient, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (
			patient_id,
			name,
			cnic,
			phone,
			age,
			gender,
			address,
			guardian_name,
			guardian_relation
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+patientColumns,
		patient.PatientID,
		patient.Name,
		patient.CNIC,
		patient.Phone,
		patient.Age,
		patient.Gender,
		patient.Address,
		patient.GuardianName,
		patient.GuardianRelation,
	)
	created, err := scanPatientRow(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Patient{}, domain.ErrDuplicatePatientKey
		}
		return domain.Patient{}, fmt.Errorf("create patient: %w", err)
	}
	return created, nil
}

func (r *Repository) GetPatientByPublicID(ctx context.Context, patientID string) (*domain.Patient, error) {
	return r.findPatientWhere(ctx, "patient_id = $1", strings.TrimSpace(patientID))
}

func (r *Repository) ListPatients(ctx context.Context, filter PatientListFilter) ([]domain.Patient, error) {
	limit := normalizeLimit(filter.Limit)
	offset := normalizeOffset(filter.Offset)
	search := strings.TrimSpace(filter.Search)

	rows, err := r.pool.Query(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE (
			$1 = ''
			OR name ILIKE '%' || $1 || '%'
			OR patient_id ILIKE '%' || $1 || '%'
			OR COALESCE(cnic, '') = $1
			OR COALESCE(phone, '') = $1
		)
		ORDER BY id ASC
		LIMIT $2 OFFSET $3
	`, search, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	patients := make([]domain.Patient, 0, limit)
	for rows.Next() {
		patient, err := scanPatientRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		patients = append(patients, patient)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patients: %w", err)
	}
	return patients, nil
}

func scanPatientRow(row pgx.Row) (domain.Patient, error) {
	var patient domain.Patient
	if err := row.Scan(
		&patient.ID,
		&patient.PatientID,
		&patient.Name,
		&patient.CNIC,
		&patient.Phone,
		&patient.Age,
		&patient.Gender,
		&patient.Address,
		&patient.GuardianName,
		&patient.GuardianRelation,
		&patient.CreatedAt,
		&patient.UpdatedAt,
	); err != nil {
		return domain.Patient{}, err
	}
	return patient, nil
}

func trimmed(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}
