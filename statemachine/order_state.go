package statemachine

import (
	"fmt"
	"strings"

	"campus-eats-api/models"
)

// Transition defines a valid state change and what drives it
type Transition struct {
	From    models.OrderStatus `json:"from"`
	To      models.OrderStatus `json:"to"`
	Trigger string             `json:"trigger"`
}

// validTransitions is the authoritative state machine definition
var validTransitions = []Transition{
	// Kitchen may start cash/counter orders before any proof arrives
	{From: models.StatusPending, To: models.StatusPreparing, Trigger: "staff"},
	// Student submits a transaction reference or screenshot
	{From: models.StatusPending, To: models.StatusPendingVerification, Trigger: "payment_submit"},
	{From: models.StatusPendingVerification, To: models.StatusPaid, Trigger: "payment_verify"},
	{From: models.StatusPendingVerification, To: models.StatusPaymentRejected, Trigger: "payment_reject"},
	// Student retries after a rejection
	{From: models.StatusPaymentRejected, To: models.StatusPendingVerification, Trigger: "payment_submit"},
	{From: models.StatusPaid, To: models.StatusPreparing, Trigger: "staff"},
	{From: models.StatusPreparing, To: models.StatusReady, Trigger: "staff"},
	// Handover at the counter after the OTP check
	{From: models.StatusReady, To: models.StatusCompleted, Trigger: "staff"},
}

// Build an adjacency list for O(1) validation
var adjacency = func() map[models.OrderStatus][]models.OrderStatus {
	m := make(map[models.OrderStatus][]models.OrderStatus)
	for _, t := range validTransitions {
		m[t.From] = append(m[t.From], t.To)
	}
	return m
}()

// InvalidTransitionError names the current state and where it may go instead.
type InvalidTransitionError struct {
	From    models.OrderStatus
	To      models.OrderStatus
	Allowed []models.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: '%s' → '%s'. Allowed transitions from '%s': %s",
		e.From, e.To, e.From, describe(e.Allowed))
}

// ValidTransitionsFrom returns all valid next states from a given state
func ValidTransitionsFrom(status models.OrderStatus) []models.OrderStatus {
	nexts := adjacency[status]
	out := make([]models.OrderStatus, len(nexts))
	copy(out, nexts)
	return out
}

// CanTransition checks whether an order may move from one state to another.
// Requesting the current state is an idempotent no-op and always allowed.
func CanTransition(from, to models.OrderStatus) error {
	if from == to {
		return nil
	}
	for _, next := range adjacency[from] {
		if next == to {
			return nil
		}
	}
	return &InvalidTransitionError{From: from, To: to, Allowed: ValidTransitionsFrom(from)}
}

// IsTerminal reports whether no transition leaves the state.
func IsTerminal(status models.OrderStatus) bool {
	return len(adjacency[status]) == 0
}

func describe(nexts []models.OrderStatus) string {
	if len(nexts) == 0 {
		return "none (terminal state)"
	}
	parts := make([]string, len(nexts))
	for i, s := range nexts {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}

// GetAllTransitions returns the full state machine for documentation
func GetAllTransitions() []Transition {
	return validTransitions
}
