package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/neomorfeo/budgetiq/internal/domain"
)

// Compile-time check: VersionRepository implements domain.VersionRepository.
var _ domain.VersionRepository = (*VersionRepository)(nil)

// VersionRepository stores budget snapshots as JSON documents.
type VersionRepository struct {
	q querier
}

// Append assigns the next sequence number of the budget to v and stores it.
func (r *VersionRepository) Append(ctx context.Context, v *domain.BudgetVersion) error {
	var last int
	if err := r.q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM budget_versions WHERE budget_id = ?`, v.BudgetID,
	).Scan(&last); err != nil {
		return fmt.Errorf("reading last version sequence: %w", err)
	}

	snapshot, err := json.Marshal(v.Snapshot)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	v.Sequence = last + 1
	_, err = r.q.ExecContext(ctx,
		`INSERT INTO budget_versions (id, tenant_id, budget_id, sequence, note, snapshot, author_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.TenantID, v.BudgetID, v.Sequence, v.Note, string(snapshot), v.AuthorID,
		v.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.ConflictError{Code: v.Snapshot.Code}
		}
		return fmt.Errorf("inserting version: %w", err)
	}
	return nil
}

func (r *VersionRepository) Get(ctx context.Context, tenantID, versionID string) (domain.BudgetVersion, error) {
	v, err := scanVersion(r.q.QueryRowContext(ctx,
		`SELECT id, tenant_id, budget_id, sequence, note, snapshot, author_id, created_at
		 FROM budget_versions WHERE id = ? AND tenant_id = ?`,
		versionID, tenantID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BudgetVersion{}, domain.ErrVersionNotFound
	}
	return v, err
}

// List returns the versions of a budget in ascending sequence order.
func (r *VersionRepository) List(ctx context.Context, tenantID, budgetID string) ([]domain.BudgetVersion, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, tenant_id, budget_id, sequence, note, snapshot, author_id, created_at
		 FROM budget_versions WHERE tenant_id = ? AND budget_id = ? ORDER BY sequence`,
		tenantID, budgetID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	defer rows.Close()

	var versions []domain.BudgetVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func scanVersion(row rowScanner) (domain.BudgetVersion, error) {
	var v domain.BudgetVersion
	var snapshot, createdAt string

	if err := row.Scan(&v.ID, &v.TenantID, &v.BudgetID, &v.Sequence, &v.Note, &snapshot, &v.AuthorID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.BudgetVersion{}, err
		}
		return domain.BudgetVersion{}, fmt.Errorf("scanning version: %w", err)
	}

	if err := json.Unmarshal([]byte(snapshot), &v.Snapshot); err != nil {
		return domain.BudgetVersion{}, fmt.Errorf("decoding snapshot of version %s: %w", v.ID, err)
	}

	var err error
	if v.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return domain.BudgetVersion{}, fmt.Errorf("parsing created_at of version %s: %w", v.ID, err)
	}
	return v, nil
}
