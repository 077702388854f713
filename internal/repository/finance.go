package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"labcore/internal/domain"
)

type FinanceListFilter struct {
	Category  string
	Reference string
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// InsertFinanceRecord appends one ledger entry. There is no update or delete
// path for finance_records anywhere in this package.
func (r *Repository) InsertFinanceRecord(ctx context.Context, record domain.FinanceRecord) (domain.FinanceRecord, error) {
	if record.Amount <= 0 {
		return domain.FinanceRecord{}, &domain.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO finance_records (date, amount, category, reference, recorded_by, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, date, amount::double precision, category, reference, recorded_by, description, created_at
	`,
		record.Date,
		record.Amount,
		record.Category,
		record.Reference,
		record.RecordedBy,
		record.Description,
	)
	var created domain.FinanceRecord
	if err := row.Scan(
		&created.ID,
		&created.Date,
		&created.Amount,
		&created.Category,
		&created.Reference,
		&created.RecordedBy,
		&created.Description,
		&created.CreatedAt,
	); err != nil {
		return domain.FinanceRecord{}, fmt.Errorf("insert finance record: %w", err)
	}
	return created, nil
}

func (r *Repository) ListFinanceRecords(ctx context.Context, filter FinanceListFilter) ([]domain.FinanceRecord, error) {
	limit := normalizeLimit(filter.Limit)
	offset := normalizeOffset(filter.Offset)

	query := `
		SELECT id, date, amount::double precision, category, reference, recorded_by, description, created_at
		FROM finance_records
		WHERE ($1 = '' OR category = $1)
		AND ($2 = '' OR reference = $2)
	`
	args := []any{strings.TrimSpace(filter.Category), strings.TrimSpace(filter.Reference)}
	idx := 3
	if filter.From != nil {
		query += fmt.Sprintf(" AND date >= $%d", idx)
		args = append(args, *filter.From)
		idx++
	}
	if filter.To != nil {
		query += fmt.Sprintf(" AND date <= $%d", idx)
		args = append(args, *filter.To)
		idx++
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list finance records: %w", err)
	}
	defer rows.Close()

	records := make([]domain.FinanceRecord, 0, limit)
	for rows.Next() {
		var record domain.FinanceRecord
		if err := rows.Scan(
			&record.ID,
			&record.Date,
			&record.Amount,
			&record.Category,
			&record.Reference,
			&record.RecordedBy,
			&record.Description,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan finance record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate finance records: %w", err)
	}
	return records, nil
}

func (r *Repository) GetDailyFinanceSummary(ctx context.Context, limit int) ([]domain.DailyFinanceSummary, error) {
	if limit <= 0 {
		limit = 30
	}
	if limit > 366 {
		limit = 366
	}

	rows, err := r.pool.Query(ctx, `
		SELECT
			TO_CHAR(DATE_TRUNC('day', date), 'YYYY-MM-DD') AS day,
			COALESCE(SUM(CASE WHEN category = $1 THEN amount ELSE 0 END), 0)::double precision,
			COALESCE(SUM(CASE WHEN category = $2 THEN amount ELSE 0 END), 0)::double precision,
			COALESCE(SUM(amount), 0)::double precision,
			COUNT(*)::int
		FROM finance_records
		GROUP BY 1
		ORDER BY day DESC
		LIMIT $3
	`, domain.CategoryConsumablesProfit, domain.CategoryTestRevenue, limit)
	if err != nil {
		return nil, fmt.Errorf("daily finance summary query: %w", err)
	}
	defer rows.Close()

	list := make([]domain.DailyFinanceSummary, 0, limit)
	for rows.Next() {
		var row domain.DailyFinanceSummary
		if err := rows.Scan(
			&row.Day,
			&row.ConsumablesProfit,
			&row.TestRevenue,
			&row.Total,
			&row.RecordCount,
		); err != nil {
			return nil, fmt.Errorf("scan daily finance summary: %w", err)
		}
		list = append(list, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily finance summary: %w", err)
	}
	return list, nil
}
