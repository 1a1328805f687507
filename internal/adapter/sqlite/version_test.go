package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neomorfeo/budgetiq/internal/domain"
)

func TestVersions_AppendAssignsIncreasingSequence(t *testing.T) {
	store := newTestStore(t)
	b := newBudget("t-1", "ORC2026100001")
	mustSave(t, store, &b)

	var versions []domain.BudgetVersion
	inTx(t, store, func(ctx context.Context, tx domain.Tx) error {
		for i, note := range []string{"created", "edited", "edited again"} {
			v := &domain.BudgetVersion{
				ID:        "v-" + note,
				TenantID:  "t-1",
				BudgetID:  b.ID,
				Note:      note,
				Snapshot:  domain.TakeSnapshot(b),
				AuthorID:  "user-1",
				CreatedAt: created.Add(time.Duration(i) * time.Minute),
			}
			if err := tx.Versions().Append(ctx, v); err != nil {
				return err
			}
			if v.Sequence != i+1 {
				t.Errorf("Sequence = %d, want %d", v.Sequence, i+1)
			}
		}
		var err error
		versions, err = tx.Versions().List(ctx, "t-1", b.ID)
		return err
	})

	if len(versions) != 3 {
		t.Fatalf("versions = %d, want 3", len(versions))
	}
	for i, v := range versions {
		if v.Sequence != i+1 {
			t.Errorf("versions[%d].Sequence = %d", i, v.Sequence)
		}
	}
	snap := versions[0].Snapshot
	if snap.Code != "ORC2026100001" || len(snap.Services) != 1 || len(snap.Services[0].Items) != 2 {
		t.Errorf("snapshot = %+v", snap)
	}
	if !snap.Total.Equal(dec("180")) {
		t.Errorf("snapshot total = %s, want 180", snap.Total)
	}
}

func TestVersions_GetIsTenantScoped(t *testing.T) {
	store := newTestStore(t)
	b := newBudget("t-1", "ORC2026100001")
	mustSave(t, store, &b)

	inTx(t, store, func(ctx context.Context, tx domain.Tx) error {
		return tx.Versions().Append(ctx, &domain.BudgetVersion{
			ID: "v-1", TenantID: "t-1", BudgetID: b.ID,
			Snapshot: domain.TakeSnapshot(b), AuthorID: "user-1", CreatedAt: created,
		})
	})

	var got domain.BudgetVersion
	inTx(t, store, func(ctx context.Context, tx domain.Tx) error {
		var err error
		got, err = tx.Versions().Get(ctx, "t-1", "v-1")
		return err
	})
	if got.BudgetID != b.ID || got.Sequence != 1 || got.AuthorID != "user-1" {
		t.Errorf("Get = %+v", got)
	}

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Versions().Get(ctx, "t-2", "v-1")
		return err
	})
	if !errors.Is(err, domain.ErrVersionNotFound) {
		t.Errorf("expected ErrVersionNotFound, got %v", err)
	}
}

func TestLoadFull_IncludesVersions(t *testing.T) {
	store := newTestStore(t)
	b := newBudget("t-1", "ORC2026100001")
	mustSave(t, store, &b)
	inTx(t, store, func(ctx context.Context, tx domain.Tx) error {
		return tx.Versions().Append(ctx, &domain.BudgetVersion{
			ID: "v-1", TenantID: "t-1", BudgetID: b.ID,
			Snapshot: domain.TakeSnapshot(b), AuthorID: "user-1", CreatedAt: created,
		})
	})

	var full domain.FullBudget
	inTx(t, store, func(ctx context.Context, tx domain.Tx) error {
		var err error
		full, err = tx.Budgets().LoadFull(ctx, "t-1", "ORC2026100001")
		return err
	})

	if full.Budget.Code != "ORC2026100001" || len(full.Versions) != 1 {
		t.Errorf("LoadFull = %s with %d versions", full.Budget.Code, len(full.Versions))
	}
}

func TestHistory_AppendAndList(t *testing.T) {
	store := newTestStore(t)
	b := newBudget("t-1", "ORC2026100001")
	mustSave(t, store, &b)

	entries := []domain.ActionEntry{
		{ID: "h-1", TenantID: "t-1", BudgetID: b.ID, ActorID: "user-1", Action: domain.HistoryCreated, NewStatus: domain.StatusDraft, CreatedAt: created},
		{ID: "h-2", TenantID: "t-1", BudgetID: b.ID, ActorID: "user-2", Action: domain.HistorySent, OldStatus: domain.StatusDraft, NewStatus: domain.StatusPending, Note: "please review", CreatedAt: created.Add(time.Hour)},
	}

	var got []domain.ActionEntry
	inTx(t, store, func(ctx context.Context, tx domain.Tx) error {
		for i := range entries {
			if err := tx.History().Append(ctx, &entries[i]); err != nil {
				return err
			}
		}
		var err error
		got, err = tx.History().List(ctx, "t-1", b.ID)
		return err
	})

	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
	if got[1].Action != domain.HistorySent || got[1].OldStatus != domain.StatusDraft || got[1].NewStatus != domain.StatusPending {
		t.Errorf("second entry = %+v", got[1])
	}
	if got[1].Note != "please review" || !got[1].CreatedAt.Equal(created.Add(time.Hour)) {
		t.Errorf("second entry note/time = %q/%v", got[1].Note, got[1].CreatedAt)
	}

	inTx(t, store, func(ctx context.Context, tx domain.Tx) error {
		other, err := tx.History().List(ctx, "t-2", b.ID)
		if len(other) != 0 {
			t.Errorf("other tenant sees %d entries", len(other))
		}
		return err
	})
}
