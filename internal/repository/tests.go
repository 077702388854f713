package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"labcore/internal/domain"

	"github.com/jackc/pgx/v5"
)

type TestCreateInput struct {
	Name     string
	Price    float64
	Category *string
}

func (r *Repository) CreateTest(ctx context.Context, input TestCreateInput) (domain.LabTest, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return domain.LabTest{}, &domain.ValidationError{Field: "name", Reason: "is required"}
	}
	if input.Price < 0 {
		return domain.LabTest{}, &domain.ValidationError{Field: "price", Reason: "cannot be negative"}
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO lab_tests (name, price, category)
		VALUES ($1, $2, $3)
		RETURNING id, name, price::double precision, category, created_at
	`, name, input.Price, input.Category)
	var test domain.LabTest
	if err := row.Scan(&test.ID, &test.Name, &test.Price, &test.Category, &test.CreatedAt); err != nil {
		return domain.LabTest{}, fmt.Errorf("create lab test: %w", err)
	}
	return test, nil
}

func (r *Repository) GetTestByID(ctx context.Context, id int64) (*domain.LabTest, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, price::double precision, category, created_at
		FROM lab_tests
		WHERE id = $1
	`, id)
	var test domain.LabTest
	if err := row.Scan(&test.ID, &test.Name, &test.Price, &test.Category, &test.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get lab test %d: %w", id, err)
	}
	return &test, nil
}

func (r *Repository) ListTests(ctx context.Context, search string, limit, offset int) ([]domain.LabTest, error) {
	limit = normalizeLimit(limit)
	offset = normalizeOffset(offset)

	rows, err := r.pool.Query(ctx, `
		SELECT id, name, price::double precision, category, created_at
		FROM lab_tests
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%')
		ORDER BY id ASC
		LIMIT $2 OFFSET $3
	`, strings.TrimSpace(search), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list lab tests: %w", err)
	}
	defer rows.Close()

	tests := make([]domain.LabTest, 0, limit)
	for rows.Next() {
		var test domain.LabTest
		if err := rows.Scan(&test.ID, &test.Name, &test.Price, &test.Category, &test.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lab test: %w", err)
		}
		tests = append(tests, test)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lab tests: %w", err)
	}
	return tests, nil
}

// LookupTests resolves catalog entries for the given ids, preserving the
// request order. Missing ids are reported as a validation error so the intake
// aborts before any mutation.
func (r *Repository) LookupTests(ctx context.Context, ids []int64) ([]domain.LabTest, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, name, price::double precision, category, created_at
		FROM lab_tests
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("lookup lab tests: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]domain.LabTest, len(ids))
	for rows.Next() {
		var test domain.LabTest
		if err := rows.Scan(&test.ID, &test.Name, &test.Price, &test.Category, &test.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lab test: %w", err)
		}
		byID[test.ID] = test
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lab tests: %w", err)
	}

	tests := make([]domain.LabTest, 0, len(ids))
	for _, id := range ids {
		test, ok := byID[id]
		if !ok {
			return nil, &domain.ValidationError{Field: "tests", Reason: fmt.Sprintf("unknown test id %d", id)}
		}
		tests = append(tests, test)
	}
	return tests, nil
}

func (r *Repository) DeleteTest(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, "DELETE FROM lab_tests WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete lab test %d: %w", id, err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
