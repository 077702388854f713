package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"labcore/internal/domain"

	"github.com/jackc/pgx/v5"
)

const itemColumns = `
	id,
	name,
	unit,
	current_stock,
	cost_per_unit::double precision,
	sale_price_per_unit::double precision,
	sale_price_per_pack::double precision,
	items_per_pack,
	reorder_level,
	created_at,
	updated_at
`

type ItemCreateInput struct {
	Name             string
	Unit             string
	CurrentStock     int
	CostPerUnit      float64
	SalePricePerUnit float64
	SalePricePerPack float64
	ItemsPerPack     int
	ReorderLevel     *int
}

type ItemPatchInput struct {
	Name             *string
	Unit             *string
	CostPerUnit      *float64
	SalePricePerUnit *float64
	SalePricePerPack *float64
	ItemsPerPack     *int
	ReorderLevel     *int
}

type ItemListFilter struct {
	Search    string
	Limit     int
	Offset    int
	Threshold *int
}

type InventorySummary struct {
	TotalItems     int     `json:"total_items"`
	TotalUnits     int     `json:"total_units"`
	InventoryValue float64 `json:"inventory_value"`
}

// DecrementStock is the only mutation path that takes stock out. The guard
// and the decrement are one conditional UPDATE, so concurrent callers can
// never jointly draw current_stock below zero. The movement row written in
// the same transaction is what ReleaseStock keys its idempotency on.
func (r *Repository) DecrementStock(ctx context.Context, itemID int64, quantity int, reference string, lineIdx int) (*domain.InventoryItem, error) {
	if quantity <= 0 {
		return nil, &domain.ValidationError{Field: "quantity", Reason: "must be positive"}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin decrement tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE inventory_items
		SET current_stock = current_stock - $2, updated_at = NOW()
		WHERE id = $1 AND current_stock >= $2
		RETURNING `+itemColumns,
		itemID, quantity)
	item, err := scanItemRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyDecrementMiss(ctx, itemID, quantity)
		}
		return nil, fmt.Errorf("decrement item %d: %w", itemID, err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO stock_movements (item_id, reference, line_idx, direction, quantity)
		VALUES ($1, $2, $3, $4, $5)
	`, itemID, reference, lineIdx, domain.MovementOut, quantity); err != nil {
		return nil, fmt.Errorf("record out movement for item %d: %w", itemID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit decrement tx: %w", err)
	}
	return &item, nil
}

// classifyDecrementMiss distinguishes a missing item from an insufficient
// guard, reading the committed row outside the failed update.
func (r *Repository) classifyDecrementMiss(ctx context.Context, itemID int64, quantity int) error {
	item, err := r.GetItemByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.ItemNotFoundError{ItemID: itemID}
		}
		return fmt.Errorf("inspect item %d after failed decrement: %w", itemID, err)
	}
	return &domain.InsufficientStockError{
		ItemID:    itemID,
		ItemName:  item.Name,
		Requested: quantity,
		Available: item.CurrentStock,
	}
}

// ReleaseStock undoes one committed decrement. Idempotent: the reversing
// movement is inserted with ON CONFLICT DO NOTHING on (reference, line_idx,
// direction), and the stock is credited only when that insert landed, so a
// retried compensation never double-credits.
func (r *Repository) ReleaseStock(ctx context.Context, itemID int64, quantity int, reference string, lineIdx int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin release tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `
		INSERT INTO stock_movements (item_id, reference, line_idx, direction, quantity)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (reference, line_idx, direction) WHERE reference <> ''
		DO NOTHING
	`, itemID, reference, lineIdx, domain.MovementIn, quantity)
	if err != nil {
		return fmt.Errorf("record in movement for item %d: %w", itemID, err)
	}
	if cmd.RowsAffected() == 1 {
		if _, err := tx.Exec(ctx, `
			UPDATE inventory_items
			SET current_stock = current_stock + $2, updated_at = NOW()
			WHERE id = $1
		`, itemID, quantity); err != nil {
			return fmt.Errorf("release stock for item %d: %w", itemID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit release tx: %w", err)
	}
	return nil
}

// Restock credits purchased stock and records the movement.
func (r *Repository) Restock(ctx context.Context, itemID int64, quantity int) (*domain.InventoryItem, error) {
	if quantity <= 0 {
		return nil, &domain.ValidationError{Field: "quantity", Reason: "must be positive"}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin restock tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE inventory_items
		SET current_stock = current_stock + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+itemColumns,
		itemID, quantity)
	item, err := scanItemRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("restock item %d: %w", itemID, err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO stock_movements (item_id, reference, line_idx, direction, quantity)
		VALUES ($1, '', 0, $2, $3)
	`, itemID, domain.MovementIn, quantity); err != nil {
		return nil, fmt.Errorf("record restock movement for item %d: %w", itemID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit restock tx: %w", err)
	}
	return &item, nil
}

func (r *Repository) CreateItem(ctx context.Context, input ItemCreateInput) (domain.InventoryItem, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return domain.InventoryItem{}, &domain.ValidationError{Field: "name", Reason: "is required"}
	}
	if input.CurrentStock < 0 {
		return domain.InventoryItem{}, &domain.ValidationError{Field: "current_stock", Reason: "cannot be negative"}
	}
	if input.CostPerUnit < 0 || input.SalePricePerUnit < 0 || input.SalePricePerPack < 0 {
		return domain.InventoryItem{}, &domain.ValidationError{Field: "price", Reason: "cannot be negative"}
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO inventory_items (
			name,
			unit,
			current_stock,
			cost_per_unit,
			sale_price_per_unit,
			sale_price_per_pack,
			items_per_pack,
			reorder_level
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+itemColumns,
		name,
		strings.TrimSpace(input.Unit),
		input.CurrentStock,
		input.CostPerUnit,
		input.SalePricePerUnit,
		input.SalePricePerPack,
		input.ItemsPerPack,
		input.ReorderLevel,
	)
	item, err := scanItemRow(row)
	if err != nil {
		return domain.InventoryItem{}, fmt.Errorf("create item: %w", err)
	}
	return item, nil
}

func (r *Repository) GetItemByID(ctx context.Context, id int64) (*domain.InventoryItem, error) {
	row := r.pool.QueryRow(ctx,
		"SELECT "+itemColumns+" FROM inventory_items WHERE id = $1", id)
	item, err := scanItemRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get item %d: %w", id, err)
	}
	return &item, nil
}

func (r *Repository) ListItems(ctx context.Context, filter ItemListFilter) ([]domain.InventoryItem, error) {
	limit := normalizeLimit(filter.Limit)
	offset := normalizeOffset(filter.Offset)
	search := strings.TrimSpace(filter.Search)

	query := `
		SELECT ` + itemColumns + `
		FROM inventory_items
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%')
	`
	args := []any{search}
	argIndex := 2
	if filter.Threshold != nil {
		query += fmt.Sprintf(" AND current_stock <= COALESCE(reorder_level, $%d)", argIndex)
		args = append(args, *filter.Threshold)
		argIndex++
	}
	query += fmt.Sprintf(" ORDER BY id ASC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.InventoryItem, 0, limit)
	for rows.Next() {
		item, err := scanItemRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

func (r *Repository) PatchItem(ctx context.Context, id int64, input ItemPatchInput) (*domain.InventoryItem, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin patch item tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		"SELECT "+itemColumns+" FROM inventory_items WHERE id = $1 FOR UPDATE", id)
	item, err := scanItemRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("load item for patch: %w", err)
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, &domain.ValidationError{Field: "name", Reason: "cannot be empty"}
		}
		item.Name = name
	}
	if input.Unit != nil {
		item.Unit = strings.TrimSpace(*input.Unit)
	}
	if input.CostPerUnit != nil {
		if *input.CostPerUnit < 0 {
			return nil, &domain.ValidationError{Field: "cost_per_unit", Reason: "cannot be negative"}
		}
		item.CostPerUnit = *input.CostPerUnit
	}
	if input.SalePricePerUnit != nil {
		if *input.SalePricePerUnit < 0 {
			return nil, &domain.ValidationError{Field: "sale_price_per_unit", Reason: "cannot be negative"}
		}
		item.SalePricePerUnit = *input.SalePricePerUnit
	}
	if input.SalePricePerPack != nil {
		if *input.SalePricePerPack < 0 {
			return nil, &domain.ValidationError{Field: "sale_price_per_pack", Reason: "cannot be negative"}
		}
		item.SalePricePerPack = *input.SalePricePerPack
	}
	if input.ItemsPerPack != nil {
		if *input.ItemsPerPack < 0 {
			return nil, &domain.ValidationError{Field: "items_per_pack", Reason: "cannot be negative"}
		}
		item.ItemsPerPack = *input.ItemsPerPack
	}
	if input.ReorderLevel != nil {
		item.ReorderLevel = input.ReorderLevel
	}

	row = tx.QueryRow(ctx, `
		UPDATE inventory_items
		SET
			name = $2,
			unit = $3,
			cost_per_unit = $4,
			sale_price_per_unit = $5,
			sale_price_per_pack = $6,
			items_per_pack = $7,
			reorder_level = $8,
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+itemColumns,
		id,
		item.Name,
		item.Unit,
		item.CostPerUnit,
		item.SalePricePerUnit,
		item.SalePricePerPack,
		item.ItemsPerPack,
		item.ReorderLevel,
	)
	updated, err := scanItemRow(row)
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit patch item tx: %w", err)
	}
	return &updated, nil
}

func (r *Repository) GetInventorySummary(ctx context.Context) (InventorySummary, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*)::int,
			COALESCE(SUM(current_stock), 0)::int,
			COALESCE(SUM(current_stock * cost_per_unit), 0)::double precision
		FROM inventory_items
	`)
	var summary InventorySummary
	if err := row.Scan(&summary.TotalItems, &summary.TotalUnits, &summary.InventoryValue); err != nil {
		return InventorySummary{}, fmt.Errorf("inventory summary: %w", err)
	}
	return summary, nil
}

func (r *Repository) ListMovements(ctx context.Context, itemID int64, limit int) ([]domain.StockMovement, error) {
	limit = normalizeLimit(limit)
	rows, err := r.pool.Query(ctx, `
		SELECT id, item_id, reference, line_idx, direction, quantity, created_at
		FROM stock_movements
		WHERE item_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, itemID, limit)
	if err != nil {
		return nil, fmt.Errorf("list movements for item %d: %w", itemID, err)
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var movement domain.StockMovement
		if err := rows.Scan(
			&movement.ID,
			&movement.ItemID,
			&movement.Reference,
			&movement.LineIdx,
			&movement.Direction,
			&movement.Quantity,
			&movement.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		movements = append(movements, movement)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movements: %w", err)
	}
	return movements, nil
}

func scanItemRow(row pgx.Row) (domain.InventoryItem, error) {
	var item domain.InventoryItem
	if err := row.Scan(
		&item.ID,
		&item.Name,
		&item.Unit,
		&item.CurrentStock,
		&item.CostPerUnit,
		&item.SalePricePerUnit,
		&item.SalePricePerPack,
		&item.ItemsPerPack,
		&item.ReorderLevel,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return domain.InventoryItem{}, err
	}
	return item, nil
}
