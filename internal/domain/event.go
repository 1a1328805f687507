package domain

import "time"

// EventKind identifies a lifecycle event.
type EventKind string

const (
	EventCreated       EventKind = "budget.created"
	EventUpdated       EventKind = "budget.updated"
	EventStatusChanged EventKind = "budget.status_changed"
	EventRestored      EventKind = "budget.restored"
	EventDeleted       EventKind = "budget.deleted"
)

// Event carries what downstream collaborators need, so they never have to
// read the database.
type Event struct {
	Kind           EventKind
	TenantID       string
	BudgetID       string
	Code           string
	CustomerID     string
	Status         Status
	PreviousStatus Status
	ActorID        string
	Note           string
	Total          string
	OccurredAt     time.Time
}

// NewEvent builds an event describing the current state of b.
func NewEvent(kind EventKind, b Budget, actorID string, at time.Time) Event {
	return Event{
		Kind:       kind,
		TenantID:   b.TenantID,
		BudgetID:   b.ID,
		Code:       b.Code,
		CustomerID: b.CustomerID,
		Status:     b.Status,
		ActorID:    actorID,
		Total:      b.Total.StringFixed(DisplayPlaces),
		OccurredAt: at.UTC(),
	}
}
