package domain

import "time"

// HistoryAction labels an entry of the action history.
type HistoryAction string

const (
	HistoryCreated   HistoryAction = "created"
	HistorySent      HistoryAction = "sent"
	HistoryApproved  HistoryAction = "approved"
	HistoryRejected  HistoryAction = "rejected"
	HistoryCancelled HistoryAction = "cancelled"
	HistoryFinalized HistoryAction = "finalized"
	HistoryCompleted HistoryAction = "completed"
	HistoryExpired   HistoryAction = "expired"
	HistoryRestored  HistoryAction = "restored"
	HistoryDeleted   HistoryAction = "deleted"
)

// ActionEntry is one append-only audit record. OldStatus and NewStatus use
// the same Status type as the state machine.
type ActionEntry struct {
	ID        string
	TenantID  string
	BudgetID  string
	ActorID   string
	Action    HistoryAction
	OldStatus Status
	NewStatus Status
	Note      string
	CreatedAt time.Time
}
