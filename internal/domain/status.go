package domain

import "time"

// Status represents the lifecycle state of a budget.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusFinalized Status = "finalized"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Statuses lists every valid status, in display order.
var Statuses = []Status{
	StatusDraft,
	StatusPending,
	StatusApproved,
	StatusRejected,
	StatusFinalized,
	StatusCompleted,
	StatusExpired,
	StatusCancelled,
}

// IsValid reports whether s belongs to the closed status set.
func (s Status) IsValid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// Action is a command that moves a budget from one status to another.
type Action string

const (
	ActionSend     Action = "send"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionCancel   Action = "cancel"
	ActionFinalize Action = "finalize"
	ActionComplete Action = "complete"
	ActionExpire   Action = "expire"
)

// Transition defines a valid state change: an action moves a budget from Src to Dst.
type Transition struct {
	Action Action
	Src    Status
	Dst    Status
}

// Transitions defines all valid state changes in the budget lifecycle.
// Consumed by the FSM adapter.
var Transitions = []Transition{
	{Action: ActionSend, Src: StatusDraft, Dst: StatusPending},
	{Action: ActionApprove, Src: StatusPending, Dst: StatusApproved},
	{Action: ActionReject, Src: StatusPending, Dst: StatusRejected},
	{Action: ActionCancel, Src: StatusDraft, Dst: StatusCancelled},
	{Action: ActionCancel, Src: StatusPending, Dst: StatusCancelled},
	{Action: ActionCancel, Src: StatusApproved, Dst: StatusCancelled},
	{Action: ActionFinalize, Src: StatusApproved, Dst: StatusFinalized},
	{Action: ActionComplete, Src: StatusApproved, Dst: StatusCompleted},
	{Action: ActionComplete, Src: StatusFinalized, Dst: StatusCompleted},
	{Action: ActionExpire, Src: StatusPending, Dst: StatusExpired},
}

// Target returns the status an action leads to.
func (a Action) Target() Status {
	for _, t := range Transitions {
		if t.Action == a {
			return t.Dst
		}
	}
	return ""
}

// ActionFor maps a requested target status to the action that reaches it.
func ActionFor(target Status) (Action, bool) {
	if target == StatusDraft {
		return "", false
	}
	for _, t := range Transitions {
		if t.Dst == target {
			return t.Action, true
		}
	}
	return "", false
}

// HistoryLabel is the audit label recorded when the action is applied.
func (a Action) HistoryLabel() HistoryAction {
	switch a {
	case ActionSend:
		return HistorySent
	case ActionApprove:
		return HistoryApproved
	case ActionReject:
		return HistoryRejected
	case ActionCancel:
		return HistoryCancelled
	case ActionFinalize:
		return HistoryFinalized
	case ActionComplete:
		return HistoryCompleted
	case ActionExpire:
		return HistoryExpired
	}
	return HistoryAction(a)
}

// IsNoOp reports whether applying the action to a budget in the given status
// succeeds without changing anything. Re-sending a pending budget and sending
// an approved one never downgrade the status.
func (a Action) IsNoOp(current Status) bool {
	return a == ActionSend && (current == StatusPending || current == StatusApproved)
}

// CanBeEdited reports whether the budget content may still change.
func (b Budget) CanBeEdited() bool {
	return b.Status == StatusDraft || b.Status == StatusPending
}

// CanBeSent reports whether the send guard holds.
func (b Budget) CanBeSent(now time.Time) bool {
	return b.Status == StatusDraft && b.HasItems() && !b.IsPastDue(now)
}

// CanBeApproved reports whether the approve guard holds.
func (b Budget) CanBeApproved(now time.Time) bool {
	return b.Status == StatusPending && !b.IsPastDue(now)
}

// CanBeRejected reports whether the reject guard holds.
func (b Budget) CanBeRejected() bool {
	return b.Status == StatusPending
}

// CanBeDeleted reports whether the budget may be removed.
func (b Budget) CanBeDeleted() bool {
	return b.Status != StatusCompleted && b.Status != StatusFinalized
}

// CheckGuard returns a *ValidationError when the business precondition of
// the action does not hold. It does not check the source status; that is the
// state machine's job.
func (b Budget) CheckGuard(action Action, now time.Time) error {
	switch action {
	case ActionSend:
		if !b.HasItems() {
			return NewValidationError("at least one item required")
		}
		if b.IsPastDue(now) {
			return NewValidationError("budget is past its due date")
		}
	case ActionApprove:
		if b.IsPastDue(now) {
			return NewValidationError("budget is past its due date")
		}
	case ActionExpire:
		if !b.IsPastDue(now) {
			return NewValidationError("budget is not past its due date")
		}
	}
	return nil
}
