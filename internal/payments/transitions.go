package payments

import "github.com/angelmondragon/starter-billing/pkg/enums"

// progress orders the settlement path. Failure states are reachable from any
// non-terminal state and have no rank.
var progress = map[enums.PaymentStatus]int{
	enums.PaymentStatusWaiting:       0,
	enums.PaymentStatusConfirming:    1,
	enums.PaymentStatusPartiallyPaid: 2,
	enums.PaymentStatusConfirmed:     3,
	enums.PaymentStatusSending:       4,
	enums.PaymentStatusFinished:      5,
}

// CanTransition reports whether a payment may move from one status to another.
// Re-applying the current status is always allowed; leaving a terminal status and
// moving backwards along the settlement path are not. Steps may be skipped since
// the gateway does not report every intermediate state.
func CanTransition(from, to enums.PaymentStatus) bool {
	if !from.IsValid() || !to.IsValid() {
		return false
	}
	if from == to {
		return true
	}
	if from.IsTerminal() {
		return false
	}
	toRank, ok := progress[to]
	if !ok {
		return true
	}
	return toRank > progress[from]
}
