package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/neomorfeo/budgetiq/internal/domain"
)

// Timestamps are stored fixed-width in UTC so that they sort as text.
const (
	timeFormat = "2006-01-02T15:04:05.000000000Z"
	dateFormat = "2006-01-02"
)

// Compile-time check: BudgetRepository implements domain.BudgetRepository.
var _ domain.BudgetRepository = (*BudgetRepository)(nil)

// BudgetRepository implements domain.BudgetRepository using SQLite.
// Soft-deleted budgets are invisible to every read but keep their code.
type BudgetRepository struct {
	q querier
}

const budgetColumns = `id, tenant_id, code, customer_id, status, description, due_date,
	discount_percentage, subtotal, discount_amount, total, revision, created_at, updated_at`

func (r *BudgetRepository) Load(ctx context.Context, tenantID, code string) (domain.Budget, error) {
	b, err := scanBudget(r.q.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets
		 WHERE tenant_id = ? AND code = ? AND deleted_at IS NULL`,
		tenantID, code,
	))
	if err != nil {
		return domain.Budget{}, err
	}

	if err := r.loadServices(ctx, &b); err != nil {
		return domain.Budget{}, err
	}
	return b, nil
}

func (r *BudgetRepository) LoadFull(ctx context.Context, tenantID, code string) (domain.FullBudget, error) {
	b, err := r.Load(ctx, tenantID, code)
	if err != nil {
		return domain.FullBudget{}, err
	}

	versions, err := (&VersionRepository{q: r.q}).List(ctx, tenantID, b.ID)
	if err != nil {
		return domain.FullBudget{}, err
	}

	return domain.FullBudget{Budget: b, Versions: versions}, nil
}

func (r *BudgetRepository) List(ctx context.Context, tenantID string, filter domain.ListFilter) ([]domain.Budget, error) {
	query := `SELECT ` + budgetColumns + ` FROM budgets WHERE tenant_id = ? AND deleted_at IS NULL`
	args := []any{tenantID}

	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}

	if filter.DueBefore != nil {
		query += ` AND due_date IS NOT NULL AND due_date < ?`
		args = append(args, filter.DueBefore.UTC().Format(dateFormat))
	}

	query += ` ORDER BY created_at DESC, code DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += ` LIMIT -1`
		}
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing budgets: %w", err)
	}

	var budgets []domain.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		budgets = append(budgets, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating budgets: %w", err)
	}
	rows.Close()

	// Children are read after the cursor is closed: the store runs on a
	// single connection.
	for i := range budgets {
		if err := r.loadServices(ctx, &budgets[i]); err != nil {
			return nil, err
		}
	}

	return budgets, nil
}

// LastCode returns the highest code under prefix ever issued in the tenant,
// deleted budgets included, or "" when there is none.
func (r *BudgetRepository) LastCode(ctx context.Context, tenantID, prefix string) (string, error) {
	var code string
	err := r.q.QueryRowContext(ctx,
		`SELECT code FROM budgets
		 WHERE tenant_id = ? AND substr(code, 1, ?) = ?
		 ORDER BY code DESC LIMIT 1`,
		tenantID, len(prefix), prefix,
	).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading last budget code: %w", err)
	}
	return code, nil
}

// Save persists the whole aggregate. A budget with Revision zero is
// inserted; otherwise the row is updated only if its revision still matches,
// and the service tree is synchronized by ID. Totals are recomputed before
// writing and Revision is advanced on success.
func (r *BudgetRepository) Save(ctx context.Context, b *domain.Budget) error {
	b.Adopt()
	domain.Recalculate(b)

	if b.Revision == 0 {
		if err := r.insert(ctx, b); err != nil {
			return err
		}
	} else if err := r.update(ctx, b); err != nil {
		return err
	}

	if err := r.syncServices(ctx, b); err != nil {
		return err
	}

	b.Revision++
	return nil
}

func (r *BudgetRepository) insert(ctx context.Context, b *domain.Budget) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO budgets (id, tenant_id, code, customer_id, status, description, due_date,
			discount_percentage, subtotal, discount_amount, total, revision, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		b.ID, b.TenantID, b.Code, b.CustomerID, string(b.Status), b.Description, formatDate(b.DueDate),
		b.DiscountPercentage, b.Subtotal, b.DiscountAmount, b.Total,
		b.CreatedAt.UTC().Format(timeFormat),
		b.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.CodeConflictError{Code: b.Code}
		}
		return fmt.Errorf("inserting budget: %w", err)
	}
	return nil
}

func (r *BudgetRepository) update(ctx context.Context, b *domain.Budget) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE budgets SET customer_id = ?, status = ?, description = ?, due_date = ?,
			discount_percentage = ?, subtotal = ?, discount_amount = ?, total = ?,
			revision = revision + 1, updated_at = ?
		 WHERE id = ? AND tenant_id = ? AND revision = ? AND deleted_at IS NULL`,
		b.CustomerID, string(b.Status), b.Description, formatDate(b.DueDate),
		b.DiscountPercentage, b.Subtotal, b.DiscountAmount, b.Total,
		b.UpdatedAt.UTC().Format(timeFormat),
		b.ID, b.TenantID, b.Revision,
	)
	if err != nil {
		return fmt.Errorf("updating budget: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return &domain.ConflictError{Code: b.Code}
	}
	return nil
}

// syncServices makes the stored service tree match b.Services: rows whose ID
// is still present are updated in place, new IDs are inserted, and missing
// ones are deleted. Items go before their services on delete so foreign keys
// hold while items move between services.
func (r *BudgetRepository) syncServices(ctx context.Context, b *domain.Budget) error {
	storedServices, err := r.childIDs(ctx, "budget_services", b)
	if err != nil {
		return err
	}
	storedItems, err := r.childIDs(ctx, "budget_items", b)
	if err != nil {
		return err
	}

	keepServices := make(map[string]bool)
	keepItems := make(map[string]bool)
	for _, s := range b.Services {
		keepServices[s.ID] = true
		for _, it := range s.Items {
			keepItems[it.ID] = true
		}
	}

	for id := range storedItems {
		if !keepItems[id] {
			if _, err := r.q.ExecContext(ctx,
				`DELETE FROM budget_items WHERE id = ? AND budget_id = ?`, id, b.ID,
			); err != nil {
				return fmt.Errorf("deleting item %s: %w", id, err)
			}
		}
	}

	for pos, s := range b.Services {
		if storedServices[s.ID] {
			_, err = r.q.ExecContext(ctx,
				`UPDATE budget_services SET category_id = ?, description = ?, total = ?, position = ?
				 WHERE id = ? AND budget_id = ?`,
				s.CategoryID, s.Description, s.Total, pos, s.ID, b.ID,
			)
		} else {
			_, err = r.q.ExecContext(ctx,
				`INSERT INTO budget_services (id, tenant_id, budget_id, category_id, description, total, position)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				s.ID, b.TenantID, b.ID, s.CategoryID, s.Description, s.Total, pos,
			)
		}
		if err != nil {
			return fmt.Errorf("writing service %s: %w", s.ID, err)
		}

		for itemPos, it := range s.Items {
			if err := r.writeItem(ctx, b, s.ID, itemPos, it, storedItems[it.ID]); err != nil {
				return err
			}
		}
	}

	for id := range storedServices {
		if !keepServices[id] {
			if _, err := r.q.ExecContext(ctx,
				`DELETE FROM budget_services WHERE id = ? AND budget_id = ?`, id, b.ID,
			); err != nil {
				return fmt.Errorf("deleting service %s: %w", id, err)
			}
		}
	}

	return nil
}

func (r *BudgetRepository) writeItem(ctx context.Context, b *domain.Budget, serviceID string, pos int, it domain.ServiceItem, exists bool) error {
	var err error
	if exists {
		_, err = r.q.ExecContext(ctx,
			`UPDATE budget_items SET service_id = ?, product_id = ?, description = ?, long_description = ?,
				quantity = ?, unit = ?, unit_price = ?, discount_percentage = ?, tax_percentage = ?,
				total = ?, position = ?
			 WHERE id = ? AND budget_id = ?`,
			serviceID, it.ProductID, it.Description, it.LongDescription,
			it.Quantity, it.Unit, it.UnitPrice, it.DiscountPercentage, it.TaxPercentage,
			it.Total, pos, it.ID, b.ID,
		)
	} else {
		_, err = r.q.ExecContext(ctx,
			`INSERT INTO budget_items (id, tenant_id, budget_id, service_id, product_id, description,
				long_description, quantity, unit, unit_price, discount_percentage, tax_percentage, total, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			it.ID, b.TenantID, b.ID, serviceID, it.ProductID, it.Description,
			it.LongDescription, it.Quantity, it.Unit, it.UnitPrice, it.DiscountPercentage, it.TaxPercentage,
			it.Total, pos,
		)
	}
	if err != nil {
		return fmt.Errorf("writing item %s: %w", it.ID, err)
	}
	return nil
}

func (r *BudgetRepository) childIDs(ctx context.Context, table string, b *domain.Budget) (map[string]bool, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id FROM `+table+` WHERE budget_id = ? AND tenant_id = ?`, b.ID, b.TenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("reading %s ids: %w", table, err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning %s id: %w", table, err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// Delete removes the service tree and marks the budget as deleted. The code
// stays reserved; versions and history are kept.
func (r *BudgetRepository) Delete(ctx context.Context, tenantID, code string) error {
	var id string
	err := r.q.QueryRowContext(ctx,
		`SELECT id FROM budgets WHERE tenant_id = ? AND code = ? AND deleted_at IS NULL`,
		tenantID, code,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrBudgetNotFound
	}
	if err != nil {
		return fmt.Errorf("looking up budget: %w", err)
	}

	if _, err := r.q.ExecContext(ctx, `DELETE FROM budget_items WHERE budget_id = ?`, id); err != nil {
		return fmt.Errorf("deleting items: %w", err)
	}
	if _, err := r.q.ExecContext(ctx, `DELETE FROM budget_services WHERE budget_id = ?`, id); err != nil {
		return fmt.Errorf("deleting services: %w", err)
	}

	now := time.Now().UTC().Format(timeFormat)
	if _, err := r.q.ExecContext(ctx,
		`UPDATE budgets SET deleted_at = ?, updated_at = ?, revision = revision + 1 WHERE id = ?`,
		now, now, id,
	); err != nil {
		return fmt.Errorf("deleting budget: %w", err)
	}
	return nil
}

func (r *BudgetRepository) loadServices(ctx context.Context, b *domain.Budget) error {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, category_id, description, total FROM budget_services
		 WHERE budget_id = ? AND tenant_id = ? ORDER BY position`,
		b.ID, b.TenantID,
	)
	if err != nil {
		return fmt.Errorf("loading services: %w", err)
	}

	var services []domain.Service
	index := make(map[string]int)
	for rows.Next() {
		s := domain.Service{TenantID: b.TenantID, BudgetID: b.ID}
		if err := rows.Scan(&s.ID, &s.CategoryID, &s.Description, &s.Total); err != nil {
			rows.Close()
			return fmt.Errorf("scanning service: %w", err)
		}
		index[s.ID] = len(services)
		services = append(services, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterating services: %w", err)
	}
	rows.Close()

	rows, err = r.q.QueryContext(ctx,
		`SELECT id, service_id, product_id, description, long_description, quantity, unit,
			unit_price, discount_percentage, tax_percentage, total
		 FROM budget_items WHERE budget_id = ? AND tenant_id = ? ORDER BY position`,
		b.ID, b.TenantID,
	)
	if err != nil {
		return fmt.Errorf("loading items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		it := domain.ServiceItem{TenantID: b.TenantID}
		if err := rows.Scan(&it.ID, &it.ServiceID, &it.ProductID, &it.Description, &it.LongDescription,
			&it.Quantity, &it.Unit, &it.UnitPrice, &it.DiscountPercentage, &it.TaxPercentage, &it.Total,
		); err != nil {
			return fmt.Errorf("scanning item: %w", err)
		}
		i, ok := index[it.ServiceID]
		if !ok {
			return fmt.Errorf("item %s references unknown service %s", it.ID, it.ServiceID)
		}
		services[i].Items = append(services[i].Items, it)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating items: %w", err)
	}

	b.Services = services
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBudget(row rowScanner) (domain.Budget, error) {
	var b domain.Budget
	var status, createdAt, updatedAt string
	var dueDate sql.NullString

	err := row.Scan(&b.ID, &b.TenantID, &b.Code, &b.CustomerID, &status, &b.Description, &dueDate,
		&b.DiscountPercentage, &b.Subtotal, &b.DiscountAmount, &b.Total, &b.Revision, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Budget{}, domain.ErrBudgetNotFound
		}
		return domain.Budget{}, fmt.Errorf("scanning budget: %w", err)
	}

	b.Status = domain.Status(status)
	if b.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return domain.Budget{}, fmt.Errorf("parsing created_at of %s: %w", b.Code, err)
	}
	if b.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return domain.Budget{}, fmt.Errorf("parsing updated_at of %s: %w", b.Code, err)
	}
	if dueDate.Valid {
		due, err := time.Parse(dateFormat, dueDate.String)
		if err != nil {
			return domain.Budget{}, fmt.Errorf("parsing due_date of %s: %w", b.Code, err)
		}
		b.DueDate = &due
	}

	return b, nil
}

func formatDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(dateFormat), Valid: true}
}
