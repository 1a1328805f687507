package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neomorfeo/budgetiq/internal/adapter/fsm"
	"github.com/neomorfeo/budgetiq/internal/adapter/sqlite"
	"github.com/neomorfeo/budgetiq/internal/app"
	"github.com/neomorfeo/budgetiq/internal/domain"
)

// --- Fakes ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) kinds() []domain.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventKind, len(p.events))
	for i, e := range p.events {
		out[i] = e.Kind
	}
	return out
}

type denyAll struct{}

func (denyAll) Authorize(context.Context, domain.Actor, domain.Operation) error {
	return domain.ErrForbidden
}

type fakeRenderer struct {
	rendered []string
}

func (r *fakeRenderer) Render(_ context.Context, full domain.FullBudget) (domain.Document, error) {
	r.rendered = append(r.rendered, full.Budget.Code)
	return domain.Document{Path: "/docs/" + full.Budget.Code + ".json", ContentType: "application/json"}, nil
}

// staleCodeStore hides existing codes from the first staleReads LastCode
// calls, as a concurrent create would.
type staleCodeStore struct {
	domain.Store
	staleReads int
}

func (s *staleCodeStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return fn(ctx, staleCodeTx{Tx: tx, store: s})
	})
}

type staleCodeTx struct {
	domain.Tx
	store *staleCodeStore
}

func (t staleCodeTx) Budgets() domain.BudgetRepository {
	return staleCodeRepo{BudgetRepository: t.Tx.Budgets(), store: t.store}
}

type staleCodeRepo struct {
	domain.BudgetRepository
	store *staleCodeStore
}

func (r staleCodeRepo) LastCode(ctx context.Context, tenantID, prefix string) (string, error) {
	if r.store.staleReads > 0 {
		r.store.staleReads--
		return "", nil
	}
	return r.BudgetRepository.LastCode(ctx, tenantID, prefix)
}

// --- Helpers ---

var (
	actor      = domain.Actor{TenantID: "tenant-1", UserID: "user-1"}
	otherActor = domain.Actor{TenantID: "tenant-2", UserID: "user-9"}
)

type fixture struct {
	svc   *app.BudgetService
	store *sqlite.Store
	pub   *recordingPublisher
	clock time.Time
}

func newFixture(t *testing.T, opts ...app.Option) *fixture {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		store: store,
		pub:   &recordingPublisher{},
		clock: time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC),
	}
	opts = append([]app.Option{app.WithClock(func() time.Time { return f.clock })}, opts...)
	f.svc = app.NewBudgetService(store, fsm.New(), f.pub, opts...)
	return f
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func item(desc, qty, price string) app.ItemInput {
	return app.ItemInput{
		Description: desc,
		Quantity:    dec(qty),
		Unit:        "un",
		UnitPrice:   dec(price),
	}
}

// scenarioInput is one service with (1 x 100) and (2 x 50) and a 10% global
// discount.
func scenarioInput() app.BudgetInput {
	return app.BudgetInput{
		CustomerID:         "customer-1",
		Description:        "Office renovation",
		DiscountPercentage: dec("10"),
		Services: []app.ServiceInput{{
			Description: "Painting",
			Items:       []app.ItemInput{item("Paint", "1", "100"), item("Labour", "2", "50")},
		}},
	}
}

func (f *fixture) create(t *testing.T, in app.BudgetInput) domain.Budget {
	t.Helper()
	r := f.svc.Create(context.Background(), actor, in)
	require.True(t, r.Success, "create failed: %s (%s)", r.Message, r.Category)
	return *r.Data
}

func (f *fixture) versions(t *testing.T, code string) []domain.BudgetVersion {
	t.Helper()
	r := f.svc.ListVersions(context.Background(), actor, code)
	require.True(t, r.Success, r.Message)
	return *r.Data
}

func (f *fixture) history(t *testing.T, code string) []domain.ActionEntry {
	t.Helper()
	r := f.svc.History(context.Background(), actor, code)
	require.True(t, r.Success, r.Message)
	return *r.Data
}

// inputFrom rebuilds an update payload that keeps every identifier of b.
func inputFrom(b domain.Budget) app.BudgetInput {
	in := app.BudgetInput{
		CustomerID:         b.CustomerID,
		Description:        b.Description,
		DueDate:            b.DueDate,
		DiscountPercentage: b.DiscountPercentage,
		Services:           []app.ServiceInput{},
	}
	for _, s := range b.Services {
		si := app.ServiceInput{ID: s.ID, CategoryID: s.CategoryID, Description: s.Description}
		for _, it := range s.Items {
			si.Items = append(si.Items, app.ItemInput{
				ID:                 it.ID,
				Description:        it.Description,
				Quantity:           it.Quantity,
				Unit:               it.Unit,
				UnitPrice:          it.UnitPrice,
				DiscountPercentage: it.DiscountPercentage,
				TaxPercentage:      it.TaxPercentage,
			})
		}
		in.Services = append(in.Services, si)
	}
	return in
}

// --- Create ---

func TestCreate_ComputesTotalsAndCapturesFirstVersion(t *testing.T) {
	f := newFixture(t)

	b := f.create(t, scenarioInput())

	assert.Equal(t, "ORC2026100001", b.Code)
	assert.Equal(t, domain.StatusDraft, b.Status)
	assert.Equal(t, "tenant-1", b.TenantID)
	assert.True(t, b.Subtotal.Equal(dec("200")), "subtotal = %s", b.Subtotal)
	assert.True(t, b.Total.Equal(dec("180")), "total = %s", b.Total)
	assert.True(t, b.DiscountAmount.Equal(dec("20")), "discount = %s", b.DiscountAmount)
	require.Len(t, b.Services, 1)
	assert.NotEmpty(t, b.Services[0].ID)
	assert.NotEmpty(t, b.Services[0].Items[0].ID)

	versions := f.versions(t, b.Code)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].Sequence)
	assert.Equal(t, "user-1", versions[0].AuthorID)

	history := f.history(t, b.Code)
	require.Len(t, history, 1)
	assert.Equal(t, domain.HistoryCreated, history[0].Action)
	assert.Equal(t, domain.StatusDraft, history[0].NewStatus)

	assert.Equal(t, []domain.EventKind{domain.EventCreated}, f.pub.kinds())
	assert.Equal(t, "180.00", f.pub.events[0].Total)
}

func TestCreate_SequencePerTenantAndMonth(t *testing.T) {
	f := newFixture(t, app.WithCodePrefix("QT"))
	ctx := context.Background()

	first := f.create(t, scenarioInput())
	second := f.create(t, scenarioInput())
	other := f.svc.Create(ctx, otherActor, scenarioInput())

	f.clock = time.Date(2026, time.November, 2, 9, 0, 0, 0, time.UTC)
	nextMonth := f.create(t, scenarioInput())

	assert.Equal(t, "QT2026100001", first.Code)
	assert.Equal(t, "QT2026100002", second.Code)
	require.True(t, other.Success)
	assert.Equal(t, "QT2026100001", other.Data.Code)
	assert.Equal(t, "QT2026110001", nextMonth.Code)
}

func TestCreate_RetriesOnCodeCollision(t *testing.T) {
	f := newFixture(t)
	f.create(t, scenarioInput())

	stale := &staleCodeStore{Store: f.store, staleReads: 2}
	svc := app.NewBudgetService(stale, fsm.New(), f.pub, app.WithClock(func() time.Time { return f.clock }))

	r := svc.Create(context.Background(), actor, scenarioInput())

	require.True(t, r.Success, r.Message)
	assert.Equal(t, "ORC2026100002", r.Data.Code)
	assert.Zero(t, stale.staleReads)
}

func TestCreate_GivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture(t)
	f.create(t, scenarioInput())

	stale := &staleCodeStore{Store: f.store, staleReads: 100}
	svc := app.NewBudgetService(stale, fsm.New(), f.pub, app.WithClock(func() time.Time { return f.clock }))

	r := svc.Create(context.Background(), actor, scenarioInput())

	assert.False(t, r.Success)
	assert.Equal(t, app.CategoryValidation, r.Category)
	assert.Equal(t, 95, stale.staleReads)
}

func TestCreate_InvalidInputReportsFieldPaths(t *testing.T) {
	f := newFixture(t)
	in := scenarioInput()
	in.CustomerID = ""
	in.DiscountPercentage = dec("120")
	in.Services[0].Items[1].Quantity = dec("0")
	in.Services[0].Items[1].Unit = ""

	r := f.svc.Create(context.Background(), actor, in)

	require.False(t, r.Success)
	assert.Equal(t, app.CategoryValidation, r.Category)
	assert.Nil(t, r.Data)

	fields := make(map[string]string)
	for _, fe := range r.Fields {
		fields[fe.Field] = fe.Message
	}
	assert.Equal(t, "is required", fields["customer_id"])
	assert.Equal(t, "must be at most 100", fields["discount_percentage"])
	assert.Equal(t, "must be greater than 0", fields["services[0].items[1].quantity"])
	assert.Equal(t, "is required", fields["services[0].items[1].unit"])
	assert.Empty(t, f.pub.events)
}

func TestCreate_PercentagesAreCheckedExactly(t *testing.T) {
	f := newFixture(t)
	in := scenarioInput()
	in.DiscountPercentage = dec("100.00000000000000001")
	in.Services[0].Items[0].TaxPercentage = dec("100.00000000000000001")
	in.Services[0].Items[0].DiscountPercentage = dec("-0.00000000000000001")
	in.Services[0].Items[1].Quantity = dec("0.000000000000000000001")

	r := f.svc.Create(context.Background(), actor, in)

	require.False(t, r.Success)
	assert.Equal(t, app.CategoryValidation, r.Category)

	fields := make(map[string]string)
	for _, fe := range r.Fields {
		fields[fe.Field] = fe.Message
	}
	assert.Equal(t, "must be at most 100", fields["discount_percentage"])
	assert.Equal(t, "must be at most 100", fields["services[0].items[0].tax_percentage"])
	assert.Equal(t, "must be at least 0", fields["services[0].items[0].discount_percentage"])
	assert.NotContains(t, fields, "services[0].items[1].quantity", "a tiny positive quantity is still positive")
	assert.Len(t, fields, 3)
}

func TestCreate_AcceptsExactBounds(t *testing.T) {
	f := newFixture(t)
	in := scenarioInput()
	in.DiscountPercentage = dec("100.000")
	in.Services[0].Items[0].TaxPercentage = dec("100")
	in.Services[0].Items[0].DiscountPercentage = dec("0")

	r := f.svc.Create(context.Background(), actor, in)

	require.True(t, r.Success, r.Message)
	assert.True(t, r.Data.Total.IsZero(), "total = %s", r.Data.Total)
}

func TestCreate_MissingActor(t *testing.T) {
	f := newFixture(t)

	r := f.svc.Create(context.Background(), domain.Actor{TenantID: "tenant-1"}, scenarioInput())

	assert.Equal(t, app.CategoryValidation, r.Category)
	require.Len(t, r.Fields, 1)
	assert.Equal(t, "user_id", r.Fields[0].Field)
}

func TestCreate_Forbidden(t *testing.T) {
	f := newFixture(t, app.WithAuthorizer(denyAll{}))

	r := f.svc.Create(context.Background(), actor, scenarioInput())

	assert.False(t, r.Success)
	assert.Equal(t, app.CategoryForbidden, r.Category)
	assert.ErrorIs(t, r.Err, domain.ErrForbidden)
}

func TestCreate_PublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("queue unavailable")

	r := f.svc.Create(context.Background(), actor, scenarioInput())

	assert.True(t, r.Success)
	assert.Len(t, f.pub.events, 1)
}

// --- Update ---

func TestUpdate_ReplacesItemsAndCapturesVersion(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, scenarioInput())

	in := inputFrom(b)
	in.Services[0].Items = []app.ItemInput{in.Services[0].Items[0], item("Primer", "1", "200")}

	r := f.svc.Update(context.Background(), actor, b.Code, in)

	require.True(t, r.Success, r.Message)
	updated := *r.Data
	require.Len(t, updated.Services, 1)
	svc := updated.Services[0]
	assert.Equal(t, b.Services[0].ID, svc.ID)
	assert.True(t, svc.Total.Equal(dec("300")), "service total = %s", svc.Total)
	require.Len(t, svc.Items, 2)
	assert.Equal(t, b.Services[0].Items[0].ID, svc.Items[0].ID)
	assert.NotEqual(t, b.Services[0].Items[1].ID, svc.Items[1].ID)

	versions := f.versions(t, b.Code)
	require.Len(t, versions, 2)
	assert.Equal(t, versions[0].Sequence+1, versions[1].Sequence)
	assert.Len(t, f.history(t, b.Code), 1, "update must not add history")

	got := f.svc.Get(context.Background(), actor, b.Code)
	require.True(t, got.Success)
	assert.True(t, got.Data.Services[0].Total.Equal(dec("300")))
}

func TestUpdate_NilServicesKeepsTree(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, scenarioInput())

	r := f.svc.Update(context.Background(), actor, b.Code, app.BudgetInput{
		CustomerID:  "customer-2",
		Description: "Renamed",
	})

	require.True(t, r.Success, r.Message)
	assert.Equal(t, "customer-2", r.Data.CustomerID)
	assert.Equal(t, 2, r.Data.ItemCount())
	assert.True(t, r.Data.Total.Equal(dec("200")), "no global discount any more: %s", r.Data.Total)
}

func TestUpdate_StaleRevisionConflicts(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, scenarioInput())

	stale := b.Revision - 1
	in := inputFrom(b)
	in.Revision = &stale

	r := f.svc.Update(context.Background(), actor, b.Code, in)

	assert.Equal(t, app.CategoryConflict, r.Category)
	assert.Len(t, f.versions(t, b.Code), 1)
}

func TestUpdate_RejectsForeignIdentifiers(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, scenarioInput())
	b := f.create(t, scenarioInput())

	in := inputFrom(b)
	in.Services[0].Items[0].ID = a.Services[0].Items[0].ID

	r := f.svc.Update(context.Background(), actor, b.Code, in)

	assert.Equal(t, app.CategoryValidation, r.Category)
	require.Len(t, r.Fields, 1)
	assert.Equal(t, "services[0].items[0].id", r.Fields[0].Field)
}

func TestUpdate_NotEditableOnceApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, scenarioInput())
	require.True(t, f.svc.Send(ctx, actor, b.Code, "").Success)
	require.True(t, f.svc.Approve(ctx, actor, b.Code, "").Success)

	r := f.svc.Update(ctx, actor, b.Code, inputFrom(b))

	assert.Equal(t, app.CategoryValidation, r.Category)
	assert.Contains(t, r.Message, "cannot be edited")
}

// --- Status changes ---

func TestSend_WithoutItemsIsRejected(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, app.BudgetInput{CustomerID: "customer-1"})

	r := f.svc.Send(context.Background(), actor, b.Code, "")

	assert.False(t, r.Success)
	assert.Equal(t, app.CategoryValidation, r.Category)
	assert.Equal(t, "at least one item required", r.Message)
	assert.Len(t, f.versions(t, b.Code), 1)
}

func TestApprove_TwiceFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, scenarioInput())

	require.True(t, f.svc.Send(ctx, actor, b.Code, "").Success)
	first := f.svc.Approve(ctx, actor, b.Code, "ok")
	require.True(t, first.Success, first.Message)
	assert.Equal(t, domain.StatusApproved, first.Data.Status)
	before := len(f.versions(t, b.Code))

	second := f.svc.Approve(ctx, actor, b.Code, "again")

	assert.False(t, second.Success)
	assert.Equal(t, app.CategoryValidation, second.Category)
	assert.Equal(t, "budget is already approved", second.Message)
	assert.Len(t, f.versions(t, b.Code), before)
}

func TestChangeStatus_ConcurrentDecisionsCommitOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, scenarioInput())
	require.True(t, f.svc.Send(ctx, actor, b.Code, "").Success)

	const callers = 20
	results := make([]app.Result[domain.Budget], callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				results[i] = f.svc.Approve(ctx, actor, b.Code, "")
			} else {
				results[i] = f.svc.Reject(ctx, actor, b.Code, "")
			}
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
			continue
		}
		assert.Equal(t, app.CategoryValidation, r.Category, r.Message)
	}
	assert.Equal(t, 1, succeeded)

	versions := f.versions(t, b.Code)
	require.Len(t, versions, 3, "created, sent and one decision")
	for i, v := range versions {
		assert.Equal(t, i+1, v.Sequence)
	}

	decisions := 0
	for _, e := range f.history(t, b.Code) {
		if e.Action == domain.HistoryApproved || e.Action == domain.HistoryRejected {
			decisions++
		}
	}
	assert.Equal(t, 1, decisions)
}

func TestApprove_RejectedBudgetStaysRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, scenarioInput())
	require.True(t, f.svc.Send(ctx, actor, b.Code, "").Success)
	require.True(t, f.svc.Reject(ctx, actor, b.Code, "too expensive").Success)

	r := f.svc.Approve(ctx, actor, b.Code, "")

	assert.Equal(t, app.CategoryValidation, r.Category)
	got := f.svc.Get(ctx, actor, b.Code)
	assert.Equal(t, domain.StatusRejected, got.Data.Status)
}

func TestApprove_PastDueIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := scenarioInput()
	due := time.Date(2026, time.October, 20, 0, 0, 0, 0, time.UTC)
	in.DueDate = &due
	b := f.create(t, in)
	require.True(t, f.svc.Send(ctx, actor, b.Code, "").Success)

	f.clock = time.Date(2026, time.October, 21, 8, 0, 0, 0, time.UTC)
	r := f.svc.Approve(ctx, actor, b.Code, "")

	assert.Equal(t, app.CategoryValidation, r.Category)
	assert.Contains(t, r.Message, "past its due date")
}

func TestChangeStatus_RecordsHistoryAndEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, scenarioInput())

	r := f.svc.Send(ctx, actor, b.Code, "please review")

	require.True(t, r.Success, r.Message)
	assert.Equal(t, domain.StatusPending, r.Data.Status)

	history := f.history(t, b.Code)
	require.Len(t, history, 2)
	assert.Equal(t, domain.HistorySent, history[1].Action)
	assert.Equal(t, domain.StatusDraft, history[1].OldStatus)
	assert.Equal(t, domain.StatusPending, history[1].NewStatus)
	assert.Equal(t, "please review", history[1].Note)

	versions := f.versions(t, b.Code)
	require.Len(t, versions, 2)
	assert.Equal(t, domain.StatusPending, versions[1].Snapshot.Status)

	last := f.pub.events[len(f.pub.events)-1]
	assert.Equal(t, domain.EventStatusChanged, last.Kind)
	assert.Equal(t, domain.StatusDraft, last.PreviousStatus)
	assert.Equal(t, domain.StatusPending, last.Status)
}

func TestSend_AgainIsNoOpThatRepublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, scenarioInput())
	require.True(t, f.svc.Send(ctx, actor, b.Code, "").Success)
	versions := len(f.versions(t, b.Code))
	events := len(f.pub.events)

	r := f.svc.Send(ctx, actor, b.Code, "reminder")

	require.True(t, r.Success, r.Message)
	assert.Equal(t, domain.StatusPending, r.Data.Status)
	assert.Len(t, f.versions(t, b.Code), versions)
	assert.Len(t, f.history(t, b.Code), 2)
	assert.Len(t, f.pub.events, events+1)
}

func TestChangeStatus_UnreachableTarget(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, scenarioInput())

	r := f.svc.ChangeStatus(context.Background(), actor, app.StatusChange{Code: b.Code, Target: domain.StatusDraft})

	assert.Equal(t, app.CategoryValidation, r.Category)
	require.Len(t, r.Fields, 1)
	assert.Equal(t, "status", r.Fields[0].Field)
}

func TestChangeStatus_ExpectedStatusMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, scenarioInput())
	require.True(t, f.svc.Send(ctx, actor, b.Code, "").Success)
	require.True(t, f.svc.Reject(ctx, actor, b.Code, "").Success)

	pending := domain.StatusPending
	r := f.svc.ChangeStatus(ctx, actor, app.StatusChange{Code: b.Code, Target: domain.StatusCancelled, ExpectedStatus: &pending})

	assert.Equal(t, app.CategoryValidation, r.Category)
	assert.Equal(t, "budget is rejected, expected pending", r.Message)
}

func TestBulkUpdateStatus_IsBestEffort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, scenarioInput())
	b := f.create(t, scenarioInput())
	empty := f.create(t, app.BudgetInput{CustomerID: "customer-1"})

	r := f.svc.BulkUpdateStatus(ctx, actor, []string{a.Code, "ORC2026109999", b.Code, empty.Code, a.Code}, domain.StatusPending, "batch")

	require.True(t, r.Success, r.Message)
	assert.Equal(t, []string{a.Code, b.Code}, r.Data.Succeeded)
	require.Len(t, r.Data.Failed, 2)
	assert.Equal(t, "ORC2026109999", r.Data.Failed[0].Code)
	assert.Equal(t, app.CategoryNotFound, r.Data.Failed[0].Category)
	assert.Equal(t, empty.Code, r.Data.Failed[1].Code)
	assert.Equal(t, app.CategoryValidation, r.Data.Failed[1].Category)
	assert.Equal(t, "2 of 4 budgets updated", r.Message)
}

func TestBulkUpdateStatus_RequiresCodes(t *testing.T) {
	f := newFixture(t)

	r := f.svc.BulkUpdateStatus(context.Background(), actor, nil, domain.StatusPending, "")

	assert.Equal(t, app.CategoryValidation, r.Category)
}

func TestExpireOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := scenarioInput()
	due := time.Date(2026, time.October, 20, 0, 0, 0, 0, time.UTC)
	in.DueDate = &due
	overdue := f.create(t, in)
	require.True(t, f.svc.Send(ctx, actor, overdue.Code, "").Success)

	later := scenarioInput()
	dueLater := time.Date(2026, time.December, 1, 0, 0, 0, 0, time.UTC)
	later.DueDate = &dueLater
	current := f.create(t, later)
	require.True(t, f.svc.Send(ctx, actor, current.Code, "").Success)

	draft := f.create(t, in)

	f.clock = time.Date(2026, time.October, 25, 6, 0, 0, 0, time.UTC)
	r := f.svc.ExpireOverdue(ctx, actor)

	require.True(t, r.Success, r.Message)
	assert.Equal(t, []string{overdue.Code}, r.Data.Succeeded)
	assert.Empty(t, r.Data.Failed)

	assert.Equal(t, domain.StatusExpired, f.svc.Get(ctx, actor, overdue.Code).Data.Status)
	assert.Equal(t, domain.StatusPending, f.svc.Get(ctx, actor, current.Code).Data.Status)
	assert.Equal(t, domain.StatusDraft, f.svc.Get(ctx, actor, draft.Code).Data.Status)

	history := f.history(t, overdue.Code)
	assert.Equal(t, domain.HistoryExpired, history[len(history)-1].Action)
}

// --- Versions ---

func TestRestoreVersion_CopiesSnapshotForward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, scenarioInput())
	original := f.versions(t, b.Code)[0]

	in := inputFrom(b)
	in.Description = "Changed"
	in.Services[0].Items = []app.ItemInput{item("Wallpaper", "3", "70")}
	require.True(t, f.svc.Update(ctx, actor, b.Code, in).Success)

	r := f.svc.RestoreVersion(ctx, actor, b.Code, original.ID)

	require.True(t, r.Success, r.Message)
	restored := *r.Data
	assert.Equal(t, "Office renovation", restored.Description)
	assert.True(t, restored.Total.Equal(dec("180")), "total = %s", restored.Total)

	stored := f.svc.Get(ctx, actor, b.Code).Data
	require.Len(t, stored.Services, 1)
	require.Len(t, stored.Services[0].Items, 2)
	for i, want := range original.Snapshot.Services[0].Items {
		got := stored.Services[0].Items[i]
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Description, got.Description)
		assert.True(t, want.Quantity.Equal(got.Quantity))
		assert.True(t, want.UnitPrice.Equal(got.UnitPrice))
	}

	versions := f.versions(t, b.Code)
	require.Len(t, versions, 3)
	assert.Equal(t, 3, versions[2].Sequence)
	assert.Equal(t, "restored version 1", versions[2].Note)
	assert.Equal(t, "Changed", versions[1].Snapshot.Description, "restore must not rewrite history")

	history := f.history(t, b.Code)
	assert.Equal(t, domain.HistoryRestored, history[len(history)-1].Action)
	assert.Equal(t, domain.EventRestored, f.pub.events[len(f.pub.events)-1].Kind)
}

func TestRestoreVersion_OfAnotherBudget(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, scenarioInput())
	b := f.create(t, scenarioInput())
	foreign := f.versions(t, a.Code)[0]

	r := f.svc.RestoreVersion(context.Background(), actor, b.Code, foreign.ID)

	assert.Equal(t, app.CategoryValidation, r.Category)
	assert.Len(t, f.versions(t, b.Code), 1)
}

func TestRestoreVersion_UnknownVersion(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, scenarioInput())

	r := f.svc.RestoreVersion(context.Background(), actor, b.Code, "missing")

	assert.Equal(t, app.CategoryNotFound, r.Category)
}

// --- Duplicate / Delete ---

func TestDuplicate_StartsFreshAggregate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := f.create(t, scenarioInput())
	require.True(t, f.svc.Send(ctx, actor, src.Code, "").Success)

	r := f.svc.Duplicate(ctx, actor, src.Code)

	require.True(t, r.Success, r.Message)
	dup := *r.Data
	assert.Equal(t, "ORC2026100002", dup.Code)
	assert.Equal(t, domain.StatusDraft, dup.Status)
	assert.NotEqual(t, src.ID, dup.ID)
	assert.NotEqual(t, src.Services[0].ID, dup.Services[0].ID)
	assert.NotEqual(t, src.Services[0].Items[0].ID, dup.Services[0].Items[0].ID)
	assert.True(t, dup.Total.Equal(src.Total))

	versions := f.versions(t, dup.Code)
	require.Len(t, versions, 1)
	assert.Equal(t, "duplicated from "+src.Code, versions[0].Note)
	assert.Len(t, f.versions(t, src.Code), 2)
}

func TestDelete_LogsAndHidesBudget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, scenarioInput())

	r := f.svc.Delete(ctx, actor, b.Code)

	require.True(t, r.Success, r.Message)
	assert.Equal(t, app.CategoryNotFound, f.svc.Get(ctx, actor, b.Code).Category)
	assert.Equal(t, domain.EventDeleted, f.pub.events[len(f.pub.events)-1].Kind)

	// The code stays reserved.
	next := f.create(t, scenarioInput())
	assert.Equal(t, "ORC2026100002", next.Code)
}

func TestDelete_FinalizedBudgetIsKept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, scenarioInput())
	require.True(t, f.svc.Send(ctx, actor, b.Code, "").Success)
	require.True(t, f.svc.Approve(ctx, actor, b.Code, "").Success)
	require.True(t, f.svc.ChangeStatus(ctx, actor, app.StatusChange{Code: b.Code, Target: domain.StatusFinalized}).Success)

	r := f.svc.Delete(ctx, actor, b.Code)

	assert.Equal(t, app.CategoryValidation, r.Category)
	assert.True(t, f.svc.Get(ctx, actor, b.Code).Success)
}

// --- Tenant isolation and reads ---

func TestOtherTenantSeesNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, scenarioInput())

	assert.Equal(t, app.CategoryNotFound, f.svc.Get(ctx, otherActor, b.Code).Category)
	assert.Equal(t, app.CategoryNotFound, f.svc.Update(ctx, otherActor, b.Code, inputFrom(b)).Category)
	assert.Equal(t, app.CategoryNotFound, f.svc.Delete(ctx, otherActor, b.Code).Category)
	assert.Equal(t, app.CategoryNotFound, f.svc.Send(ctx, otherActor, b.Code, "").Category)
	assert.Equal(t, app.CategoryNotFound, f.svc.History(ctx, otherActor, b.Code).Category)

	list := f.svc.List(ctx, otherActor, domain.ListFilter{})
	require.True(t, list.Success)
	assert.Empty(t, *list.Data)

	assert.True(t, f.svc.Get(ctx, actor, b.Code).Success)
}

func TestList_FiltersByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, scenarioInput())
	f.create(t, scenarioInput())
	require.True(t, f.svc.Send(ctx, actor, a.Code, "").Success)

	pending := domain.StatusPending
	r := f.svc.List(ctx, actor, domain.ListFilter{Status: &pending})

	require.True(t, r.Success)
	require.Len(t, *r.Data, 1)
	assert.Equal(t, a.Code, (*r.Data)[0].Code)

	all := f.svc.List(ctx, actor, domain.ListFilter{})
	assert.Len(t, *all.Data, 2)
}

func TestList_InvalidFilter(t *testing.T) {
	f := newFixture(t)
	bogus := domain.Status("sent")

	r := f.svc.List(context.Background(), actor, domain.ListFilter{Status: &bogus, Limit: 1000})

	assert.Equal(t, app.CategoryValidation, r.Category)
	assert.Len(t, r.Fields, 2)
}

func TestGetFull_IncludesVersions(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, scenarioInput())
	require.True(t, f.svc.Send(context.Background(), actor, b.Code, "").Success)

	r := f.svc.GetFull(context.Background(), actor, b.Code)

	require.True(t, r.Success)
	assert.Equal(t, b.Code, r.Data.Budget.Code)
	assert.Len(t, r.Data.Versions, 2)
}

func TestRenderDocument(t *testing.T) {
	renderer := &fakeRenderer{}
	f := newFixture(t, app.WithRenderer(renderer))
	b := f.create(t, scenarioInput())

	r := f.svc.RenderDocument(context.Background(), actor, b.Code)

	require.True(t, r.Success, r.Message)
	assert.Equal(t, "/docs/"+b.Code+".json", r.Data.Path)
	assert.Equal(t, []string{b.Code}, renderer.rendered)
}

func TestRenderDocument_WithoutRenderer(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, scenarioInput())

	r := f.svc.RenderDocument(context.Background(), actor, b.Code)

	assert.Equal(t, app.CategoryInternal, r.Category)
	assert.Equal(t, "internal error", r.Message)
}
