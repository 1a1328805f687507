package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/neomorfeo/budgetiq/internal/domain"
	"github.com/neomorfeo/budgetiq/internal/logger"
)

const (
	// DefaultCodePrefix starts every budget code unless WithCodePrefix is used.
	DefaultCodePrefix = "ORC"

	// maxCodeAttempts bounds the retries when two creates race for the same
	// monthly sequence number.
	maxCodeAttempts = 5

	defaultListLimit = 50
	maxListLimit     = 200
)

// BudgetService orchestrates the budget lifecycle. Every operation runs in
// one transaction and returns a Result; nothing below it escapes as an error.
type BudgetService struct {
	store      domain.Store
	validator  domain.TransitionValidator
	publisher  domain.EventPublisher
	authorizer domain.Authorizer
	renderer   domain.Renderer
	logger     *zap.Logger
	now        func() time.Time
	codePrefix string
	inputs     *validator.Validate
}

// Option configures a BudgetService.
type Option func(*BudgetService)

// WithLogger sets the logger used when the context carries none.
func WithLogger(l *zap.Logger) Option {
	return func(s *BudgetService) { s.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *BudgetService) { s.now = now }
}

// WithCodePrefix sets the prefix of generated budget codes.
func WithCodePrefix(prefix string) Option {
	return func(s *BudgetService) { s.codePrefix = prefix }
}

// WithAuthorizer installs a permission check run before every operation.
func WithAuthorizer(a domain.Authorizer) Option {
	return func(s *BudgetService) { s.authorizer = a }
}

// WithRenderer enables RenderDocument.
func WithRenderer(r domain.Renderer) Option {
	return func(s *BudgetService) { s.renderer = r }
}

// NewBudgetService creates a service with the given adapters.
func NewBudgetService(store domain.Store, validator domain.TransitionValidator, publisher domain.EventPublisher, opts ...Option) *BudgetService {
	s := &BudgetService{
		store:      store,
		validator:  validator,
		publisher:  publisher,
		authorizer: allowAll{},
		logger:     zap.NewNop(),
		now:        time.Now,
		codePrefix: DefaultCodePrefix,
		inputs:     newInputValidator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// allowAll is the default Authorizer.
type allowAll struct{}

func (allowAll) Authorize(context.Context, domain.Actor, domain.Operation) error { return nil }

// begin checks the actor and asks the authorizer for permission.
func (s *BudgetService) begin(ctx context.Context, actor domain.Actor, op domain.Operation) error {
	var fields []domain.FieldError
	if actor.TenantID == "" {
		fields = append(fields, domain.FieldError{Field: "tenant_id", Message: "is required"})
	}
	if actor.UserID == "" {
		fields = append(fields, domain.FieldError{Field: "user_id", Message: "is required"})
	}
	if len(fields) > 0 {
		return &domain.ValidationError{Message: "missing actor", Fields: fields}
	}

	if err := s.authorizer.Authorize(ctx, actor, op); err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			return err
		}
		return fmt.Errorf("authorizing %s: %w", op, err)
	}
	return nil
}

func (s *BudgetService) log(ctx context.Context) *zap.Logger {
	return logger.FromContextOr(ctx, s.logger)
}

// fail converts err into a failed Result and logs it: unexpected failures at
// error level, expected ones at debug.
func fail[T any](ctx context.Context, s *BudgetService, op domain.Operation, err error) Result[T] {
	r := failWith[T](err)
	l := s.log(ctx).With(zap.String("operation", string(op)), zap.String("category", string(r.Category)))
	if r.Category == CategoryInternal {
		l.Error("budget operation failed", zap.Error(err))
	} else {
		l.Debug("budget operation rejected", zap.Error(err))
	}
	return r
}

// publish emits an event after commit. Failures are logged, never returned.
func (s *BudgetService) publish(ctx context.Context, event domain.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log(ctx).Error("publishing budget event",
			zap.String("kind", string(event.Kind)),
			zap.String("code", event.Code),
			zap.Error(err),
		)
	}
}

// capture appends a version holding the current state of b.
func (s *BudgetService) capture(ctx context.Context, tx domain.Tx, b domain.Budget, actor domain.Actor, note string, at time.Time) error {
	id, err := generateID()
	if err != nil {
		return fmt.Errorf("generating version id: %w", err)
	}
	err = tx.Versions().Append(ctx, &domain.BudgetVersion{
		ID:        id,
		TenantID:  b.TenantID,
		BudgetID:  b.ID,
		Note:      note,
		Snapshot:  domain.TakeSnapshot(b),
		AuthorID:  actor.UserID,
		CreatedAt: at,
	})
	if err != nil {
		return fmt.Errorf("capturing version: %w", err)
	}
	return nil
}

// record appends an action history entry for b.
func (s *BudgetService) record(ctx context.Context, tx domain.Tx, b domain.Budget, actor domain.Actor, action domain.HistoryAction, from, to domain.Status, note string, at time.Time) error {
	id, err := generateID()
	if err != nil {
		return fmt.Errorf("generating history id: %w", err)
	}
	err = tx.History().Append(ctx, &domain.ActionEntry{
		ID:        id,
		TenantID:  b.TenantID,
		BudgetID:  b.ID,
		ActorID:   actor.UserID,
		Action:    action,
		OldStatus: from,
		NewStatus: to,
		Note:      note,
		CreatedAt: at,
	})
	if err != nil {
		return fmt.Errorf("recording %s: %w", action, err)
	}
	return nil
}

// nextCode reserves the next code of the month for the tenant. The
// reservation only holds if the insert that follows commits.
func (s *BudgetService) nextCode(ctx context.Context, tx domain.Tx, tenantID string, now time.Time) (string, error) {
	prefix := domain.CodePrefix(s.codePrefix, now)
	last, err := tx.Budgets().LastCode(ctx, tenantID, prefix)
	if err != nil {
		return "", err
	}
	seq, err := domain.NextCodeSequence(prefix, last)
	if err != nil {
		return "", err
	}
	return domain.FormatCode(s.codePrefix, now, seq), nil
}

// withCodeRetry runs fn in its own transaction, starting over when the code
// it picked was taken by a concurrent create.
func (s *BudgetService) withCodeRetry(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		err := s.store.WithinTx(ctx, fn)
		var codeErr *domain.CodeConflictError
		if !errors.As(err, &codeErr) {
			return err
		}
		s.log(ctx).Debug("budget code taken, retrying",
			zap.String("code", codeErr.Code),
			zap.Int("attempt", attempt),
		)
	}
	return domain.NewValidationError("could not allocate a unique budget code after %d attempts", maxCodeAttempts)
}

// Create persists a new draft budget with a generated code, captures
// version 1 and records the creation.
func (s *BudgetService) Create(ctx context.Context, actor domain.Actor, in BudgetInput) Result[domain.Budget] {
	if err := s.begin(ctx, actor, domain.OpCreate); err != nil {
		return fail[domain.Budget](ctx, s, domain.OpCreate, err)
	}
	if err := s.validateInput(in); err != nil {
		return fail[domain.Budget](ctx, s, domain.OpCreate, err)
	}
	services, err := buildServices(nil, in.Services)
	if err != nil {
		return fail[domain.Budget](ctx, s, domain.OpCreate, err)
	}
	id, err := generateID()
	if err != nil {
		return fail[domain.Budget](ctx, s, domain.OpCreate, fmt.Errorf("generating budget id: %w", err))
	}

	now := s.now().UTC()
	var created domain.Budget
	err = s.withCodeRetry(ctx, func(ctx context.Context, tx domain.Tx) error {
		code, err := s.nextCode(ctx, tx, actor.TenantID, now)
		if err != nil {
			return err
		}

		b := domain.NewBudget(id, actor.TenantID, code, in.CustomerID, now)
		applyScalars(&b, in)
		b.Services = domain.CloneServices(services)

		if err := tx.Budgets().Save(ctx, &b); err != nil {
			return err
		}
		if err := s.capture(ctx, tx, b, actor, "created", now); err != nil {
			return err
		}
		if err := s.record(ctx, tx, b, actor, domain.HistoryCreated, "", b.Status, "", now); err != nil {
			return err
		}
		created = b
		return nil
	})
	if err != nil {
		return fail[domain.Budget](ctx, s, domain.OpCreate, err)
	}

	s.publish(ctx, domain.NewEvent(domain.EventCreated, created, actor.UserID, now))
	return succeed(created, "budget created")
}

// Get returns a budget with its services and items.
func (s *BudgetService) Get(ctx context.Context, actor domain.Actor, code string) Result[domain.Budget] {
	if err := s.begin(ctx, actor, domain.OpRead); err != nil {
		return fail[domain.Budget](ctx, s, domain.OpRead, err)
	}

	var b domain.Budget
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		b, err = tx.Budgets().Load(ctx, actor.TenantID, code)
		return err
	})
	if err != nil {
		return fail[domain.Budget](ctx, s, domain.OpRead, err)
	}
	return succeed(b, "")
}

// GetFull returns a budget together with its versions.
func (s *BudgetService) GetFull(ctx context.Context, actor domain.Actor, code string) Result[domain.FullBudget] {
	if err := s.begin(ctx, actor, domain.OpRead); err != nil {
		return fail[domain.FullBudget](ctx, s, domain.OpRead, err)
	}

	var full domain.FullBudget
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		full, err = tx.Budgets().LoadFull(ctx, actor.TenantID, code)
		return err
	})
	if err != nil {
		return fail[domain.FullBudget](ctx, s, domain.OpRead, err)
	}
	return succeed(full, "")
}

// List returns the budgets of the actor's tenant matching filter. A zero
// limit means the default page size.
func (s *BudgetService) List(ctx context.Context, actor domain.Actor, filter domain.ListFilter) Result[[]domain.Budget] {
	if err := s.begin(ctx, actor, domain.OpRead); err != nil {
		return fail[[]domain.Budget](ctx, s, domain.OpRead, err)
	}

	var fields []domain.FieldError
	if filter.Status != nil && !filter.Status.IsValid() {
		fields = append(fields, domain.FieldError{Field: "status", Message: "is not a known status"})
	}
	if filter.Limit < 0 || filter.Limit > maxListLimit {
		fields = append(fields, domain.FieldError{Field: "limit", Message: fmt.Sprintf("must be between 0 and %d", maxListLimit)})
	}
	if filter.Offset < 0 {
		fields = append(fields, domain.FieldError{Field: "offset", Message: "must be at least 0"})
	}
	if len(fields) > 0 {
		return fail[[]domain.Budget](ctx, s, domain.OpRead, &domain.ValidationError{Message: "invalid filter", Fields: fields})
	}
	if filter.Limit == 0 {
		filter.Limit = defaultListLimit
	}

	var budgets []domain.Budget
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		budgets, err = tx.Budgets().List(ctx, actor.TenantID, filter)
		return err
	})
	if err != nil {
		return fail[[]domain.Budget](ctx, s, domain.OpRead, err)
	}
	if budgets == nil {
		budgets = []domain.Budget{}
	}
	return succeed(budgets, "")
}

// Update replaces the content of an editable budget and captures a new
// version. Services and items are matched by ID: present ones are updated,
// new ones inserted and missing ones deleted.
func (s *BudgetService) Update(ctx context.Context, actor domain.Actor, code string, in BudgetInput) Result[domain.Budget] {
	if err := s.begin(ctx, actor, domain.OpUpdate); err != nil {
		return fail[domain.Budget](ctx, s, domain.OpUpdate, err)
	}
	if err := s.validateInput(in); err != nil {
		return fail[domain.Budget](ctx, s, domain.OpUpdate, err)
	}

	now := s.now().UTC()
	var b domain.Budget
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		if b, err = tx.Budgets().Load(ctx, actor.TenantID, code); err != nil {
			return err
		}
		if in.Revision != nil && *in.Revision != b.Revision {
			return &domain.ConflictError{Code: b.Code}
		}
		if !b.CanBeEdited() {
			return domain.NewValidationError("budget cannot be edited while %s", b.Status)
		}

		if in.Services != nil {
			services, err := buildServices(b.Services, in.Services)
			if err != nil {
				return err
			}
			b.Services = services
		}
		applyScalars(&b, in)
		b.UpdatedAt = now

		if err := tx.Budgets().Save(ctx, &b); err != nil {
			return err
		}
		return s.capture(ctx, tx, b, actor, "updated", now)
	})
	if err != nil {
		return fail[domain.Budget](ctx, s, domain.OpUpdate, err)
	}

	s.publish(ctx, domain.NewEvent(domain.EventUpdated, b, actor.UserID, now))
	return succeed(b, "budget updated")
}

// Duplicate copies a budget into a new draft with a new code and fresh
// identifiers. The copy starts its own version history.
func (s *BudgetService) Duplicate(ctx context.Context, actor domain.Actor, code string) Result[domain.Budget] {
	if err := s.begin(ctx, actor, domain.OpDuplicate); err != nil {
		return fail[domain.Budget](ctx, s, domain.OpDuplicate, err)
	}
	id, err := generateID()
	if err != nil {
		return fail[domain.Budget](ctx, s, domain.OpDuplicate, fmt.Errorf("generating budget id: %w", err))
	}

	now := s.now().UTC()
	note := "duplicated from " + code
	var dup domain.Budget
	err = s.withCodeRetry(ctx, func(ctx context.Context, tx domain.Tx) error {
		src, err := tx.Budgets().Load(ctx, actor.TenantID, code)
		if err != nil {
			return err
		}
		newCode, err := s.nextCode(ctx, tx, actor.TenantID, now)
		if err != nil {
			return err
		}

		b := domain.NewBudget(id, actor.TenantID, newCode, src.CustomerID, now)
		b.Description = src.Description
		b.DueDate = src.DueDate
		b.DiscountPercentage = src.DiscountPercentage
		if b.Services, err = cloneWithNewIDs(src.Services); err != nil {
			return err
		}

		if err := tx.Budgets().Save(ctx, &b); err != nil {
			return err
		}
		if err := s.capture(ctx, tx, b, actor, note, now); err != nil {
			return err
		}
		if err := s.record(ctx, tx, b, actor, domain.HistoryCreated, "", b.Status, note, now); err != nil {
			return err
		}
		dup = b
		return nil
	})
	if err != nil {
		return fail[domain.Budget](ctx, s, domain.OpDuplicate, err)
	}

	event := domain.NewEvent(domain.EventCreated, dup, actor.UserID, now)
	event.Note = note
	s.publish(ctx, event)
	return succeed(dup, "budget duplicated")
}

// Delete records the deletion in the action history, removes the service
// tree and tombstones the budget. Versions and history are kept.
func (s *BudgetService) Delete(ctx context.Context, actor domain.Actor, code string) Result[domain.Budget] {
	if err := s.begin(ctx, actor, domain.OpDelete); err != nil {
		return fail[domain.Budget](ctx, s, domain.OpDelete, err)
	}

	now := s.now().UTC()
	var b domain.Budget
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		if b, err = tx.Budgets().Load(ctx, actor.TenantID, code); err != nil {
			return err
		}
		if !b.CanBeDeleted() {
			return domain.NewValidationError("budget cannot be deleted while %s", b.Status)
		}
		if err := s.record(ctx, tx, b, actor, domain.HistoryDeleted, b.Status, "", "", now); err != nil {
			return err
		}
		return tx.Budgets().Delete(ctx, actor.TenantID, code)
	})
	if err != nil {
		return fail[domain.Budget](ctx, s, domain.OpDelete, err)
	}

	event := domain.NewEvent(domain.EventDeleted, b, actor.UserID, now)
	event.PreviousStatus = b.Status
	s.publish(ctx, event)
	return succeed(b, "budget deleted")
}

// RenderDocument reads the committed aggregate and hands it to the
// renderer. No transaction is open while rendering.
func (s *BudgetService) RenderDocument(ctx context.Context, actor domain.Actor, code string) Result[domain.Document] {
	if err := s.begin(ctx, actor, domain.OpRender); err != nil {
		return fail[domain.Document](ctx, s, domain.OpRender, err)
	}
	if s.renderer == nil {
		return fail[domain.Document](ctx, s, domain.OpRender, errors.New("no document renderer configured"))
	}

	var full domain.FullBudget
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		full, err = tx.Budgets().LoadFull(ctx, actor.TenantID, code)
		return err
	})
	if err != nil {
		return fail[domain.Document](ctx, s, domain.OpRender, err)
	}

	doc, err := s.renderer.Render(ctx, full)
	if err != nil {
		return fail[domain.Document](ctx, s, domain.OpRender, fmt.Errorf("rendering %s: %w", code, err))
	}
	return succeed(doc, "document rendered")
}
