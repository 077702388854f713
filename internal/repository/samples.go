package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"labcore/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const sampleColumns = `
	id,
	sample_number,
	patient_id,
	patient_name,
	phone,
	cnic,
	age,
	gender,
	address,
	guardian_name,
	referred_by,
	total_amount::double precision,
	paid_amount::double precision,
	payment_method,
	payment_status,
	priority,
	status,
	created_at,
	updated_at
`

type SampleListFilter struct {
	Status    string
	PatientID string
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// CreateSample persists the sample with its test and consumable lines in one
// transaction. A sample_number uniqueness conflict maps to
// domain.ErrDuplicateSampleNumber.
func (r *Repository) CreateSample(ctx context.Context, sample domain.Sample) (domain.Sample, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Sample{}, fmt.Errorf("begin create sample tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO samples (
			sample_number,
			patient_id,
			patient_name,
			phone,
			cnic,
			age,
			gender,
			address,
			guardian_name,
			referred_by,
			total_amount,
			paid_amount,
			payment_method,
			payment_status,
			priority,
			status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING `+sampleColumns,
		sample.SampleNumber,
		sample.PatientID,
		sample.PatientName,
		sample.Phone,
		sample.CNIC,
		sample.Age,
		sample.Gender,
		sample.Address,
		sample.GuardianName,
		sample.ReferredBy,
		sample.TotalAmount,
		sample.PaidAmount,
		sample.PaymentMethod,
		sample.PaymentStatus,
		sample.Priority,
		sample.Status,
	)
	created, err := scanSampleRow(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Sample{}, domain.ErrDuplicateSampleNumber
		}
		return domain.Sample{}, fmt.Errorf("insert sample: %w", err)
	}

	for _, test := range sample.Tests {
		if _, err := tx.Exec(ctx, `
			INSERT INTO sample_tests (sample_id, test_ref, name, price)
			VALUES ($1, $2, $3, $4)
		`, created.ID, test.TestRef, test.Name, test.Price); err != nil {
			return domain.Sample{}, fmt.Errorf("insert sample test line: %w", err)
		}
	}
	for idx, line := range sample.Consumables {
		if _, err := tx.Exec(ctx, `
			INSERT INTO sample_consumables (sample_id, line_idx, item_ref, quantity)
			VALUES ($1, $2, $3, $4)
		`, created.ID, idx, line.ItemRef, line.Quantity); err != nil {
			return domain.Sample{}, fmt.Errorf("insert sample consumable line: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.Sample{}, domain.ErrDuplicateSampleNumber
		}
		return domain.Sample{}, fmt.Errorf("commit create sample tx: %w", err)
	}

	created.Tests = sample.Tests
	created.Consumables = sample.Consumables
	return created, nil
}

// DeleteSample removes a sample and its lines; the compensation path of a
// failed intake. Deleting an already-deleted sample is not an error, so a
// retried compensation stays idempotent.
func (r *Repository) DeleteSample(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM samples WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete sample %d: %w", id, err)
	}
	return nil
}

func (r *Repository) GetSampleByID(ctx context.Context, id int64) (*domain.Sample, error) {
	return r.getSampleWhere(ctx, "id = $1", id)
}

func (r *Repository) GetSampleByNumber(ctx context.Context, sampleNumber string) (*domain.Sample, error) {
	return r.getSampleWhere(ctx, "sample_number = $1", strings.TrimSpace(sampleNumber))
}

func (r *Repository) getSampleWhere(ctx context.Context, where string, arg any) (*domain.Sample, error) {
	row := r.pool.QueryRow(ctx,
		"SELECT "+sampleColumns+" FROM samples WHERE "+where, arg)
	sample, err := scanSampleRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get sample: %w", err)
	}
	if err := r.loadSampleLines(ctx, &sample); err != nil {
		return nil, err
	}
	return &sample, nil
}

func (r *Repository) loadSampleLines(ctx context.Context, sample *domain.Sample) error {
	rows, err := r.pool.Query(ctx, `
		SELECT test_ref, name, price::double precision
		FROM sample_tests
		WHERE sample_id = $1
		ORDER BY id ASC
	`, sample.ID)
	if err != nil {
		return fmt.Errorf("load sample tests: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var test domain.SampleTest
		if err := rows.Scan(&test.TestRef, &test.Name, &test.Price); err != nil {
			return fmt.Errorf("scan sample test: %w", err)
		}
		sample.Tests = append(sample.Tests, test)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate sample tests: %w", err)
	}

	lineRows, err := r.pool.Query(ctx, `
		SELECT item_ref, quantity
		FROM sample_consumables
		WHERE sample_id = $1
		ORDER BY line_idx ASC
	`, sample.ID)
	if err != nil {
		return fmt.Errorf("load sample consumables: %w", err)
	}
	defer lineRows.Close()
	for lineRows.Next() {
		var line domain.SampleConsumable
		if err := lineRows.Scan(&line.ItemRef, &line.Quantity); err != nil {
			return fmt.Errorf("scan sample consumable: %w", err)
		}
		sample.Consumables = append(sample.Consumables, line)
	}
	if err := lineRows.Err(); err != nil {
		return fmt.Errorf("iterate sample consumables: %w", err)
	}
	return nil
}

func (r *Repository) ListSamples(ctx context.Context, filter SampleListFilter) ([]domain.Sample, error) {
	limit := normalizeLimit(filter.Limit)
	offset := normalizeOffset(filter.Offset)

	query := `
		SELECT ` + sampleColumns + `
		FROM samples
		WHERE ($1 = '' OR status = $1)
		AND ($2 = '' OR patient_id = $2)
	`
	args := []any{strings.TrimSpace(filter.Status), strings.TrimSpace(filter.PatientID)}
	idx := 3
	if filter.From != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", idx)
		args = append(args, *filter.From)
		idx++
	}
	if filter.To != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", idx)
		args = append(args, *filter.To)
		idx++
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	samples := make([]domain.Sample, 0, limit)
	for rows.Next() {
		sample, err := scanSampleRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return samples, nil
}

func (r *Repository) UpdateSampleStatus(ctx context.Context, id int64, from, to domain.SampleStatus) error {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE samples
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return fmt.Errorf("update sample %d status: %w", id, err)
	}
	if cmd.RowsAffected() == 0 {
		// Distinguish a missing sample from one whose status moved on under a
		// concurrent transition.
		var current domain.SampleStatus
		err := r.pool.QueryRow(ctx, `SELECT status FROM samples WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read sample %d status: %w", id, err)
		}
		return domain.ErrStatusConflict
	}
	return nil
}

func scanSampleRow(row pgx.Row) (domain.Sample, error) {
	var sample domain.Sample
	if err := row.Scan(
		&sample.ID,
		&sample.SampleNumber,
		&sample.PatientID,
		&sample.PatientName,
		&sample.Phone,
		&sample.CNIC,
		&sample.Age,
		&sample.Gender,
		&sample.Address,
		&sample.GuardianName,
		&sample.ReferredBy,
		&sample.TotalAmount,
		&sample.PaidAmount,
		&sample.PaymentMethod,
		&sample.PaymentStatus,
		&sample.Priority,
		&sample.Status,
		&sample.CreatedAt,
		&sample.UpdatedAt,
	); err != nil {
		return domain.Sample{}, err
	}
	return sample, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
