package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"campus-eats-api/models"
	"campus-eats-api/repository"
	"campus-eats-api/statemachine"

	"go.uber.org/zap"
)

// Transaction reference length bounds.
const (
	MinReferenceLen = 4
	MaxReferenceLen = 64
)

// ProofStore holds uploaded payment screenshots.
type ProofStore interface {
	Upload(ctx context.Context, r io.Reader) (string, error)
	SignedURL(handle string, ttl time.Duration) (string, time.Time, error)
}

// ProofView is what the owner or staff see of an order's payment proof.
type ProofView struct {
	OrderID   uint             `json:"order_id"`
	Kind      models.ProofKind `json:"kind"`
	Reference string           `json:"reference,omitempty"`
	URL       string           `json:"url,omitempty"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
}

// PaymentService is the fraud guard around proof submission, verification
// and rejection.
type PaymentService struct {
	orders *OrderService
	repo   repository.Repository
	proofs ProofStore
	urlTTL time.Duration
	logger *zap.SugaredLogger
}

func NewPaymentService(orders *OrderService, proofs ProofStore, urlTTL time.Duration, logger *zap.SugaredLogger) *PaymentService {
	return &PaymentService{
		orders: orders,
		repo:   orders.repo,
		proofs: proofs,
		urlTTL: urlTTL,
		logger: logger,
	}
}

// SubmitReference attaches a typed transaction reference to the actor's order.
func (p *PaymentService) SubmitReference(ctx context.Context, actor Actor, orderID uint, ref string) (*models.Order, error) {
	ref = strings.TrimSpace(ref)
	if len(ref) < MinReferenceLen || len(ref) > MaxReferenceLen {
		return nil, invalid("reference", "must be between %d and %d characters", MinReferenceLen, MaxReferenceLen)
	}
	return p.submit(ctx, actor, orderID, models.ReferenceProof(ref))
}

// SubmitUpload stores a screenshot and attaches its handle to the actor's order.
// Preconditions are checked before anything is written to the proof store.
func (p *PaymentService) SubmitUpload(ctx context.Context, actor Actor, orderID uint, r io.Reader) (*models.Order, error) {
	order, err := p.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, translate(err, "order")
	}
	if err := checkSubmittable(actor, order); err != nil {
		return nil, err
	}
	handle, err := p.proofs.Upload(ctx, r)
	if err != nil {
		return nil, err
	}
	return p.submit(ctx, actor, orderID, models.UploadProof(handle))
}

func checkSubmittable(actor Actor, order *models.Order) error {
	if !order.OwnedBy(actor.UserID) {
		return fmt.Errorf("only the order owner can submit payment: %w", ErrForbidden)
	}
	switch order.Status {
	case models.StatusPending, models.StatusPaymentRejected, models.StatusPendingVerification:
		return nil
	}
	return statemachine.CanTransition(order.Status, models.StatusPendingVerification)
}

func (p *PaymentService) submit(ctx context.Context, actor Actor, orderID uint, proof models.Proof) (*models.Order, error) {
	var (
		from    models.OrderStatus
		changed bool
	)
	err := p.repo.Transaction(ctx, func(tx repository.Repository) error {
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return translate(err, "order")
		}
		if err := checkSubmittable(actor, order); err != nil {
			return err
		}
		if order.Status == models.StatusPendingVerification {
			if order.Proof == proof {
				return nil
			}
			return fmt.Errorf("payment is already awaiting verification: %w", ErrConflict)
		}

		if proof.Kind == models.ProofReference {
			err := tx.ClaimReference(ctx, proof.Value, order.ID)
			if errors.Is(err, repository.ErrDuplicate) {
				p.logger.Warnw("duplicate transaction reference rejected", "order_id", order.ID, "user_id", actor.UserID)
				return ErrDuplicateReference
			}
			if err != nil {
				return err
			}
		}

		from = order.Status
		changed = true
		err = tx.ApplyStatusChange(ctx, repository.StatusChange{
			OrderID: order.ID,
			From:    order.Status,
			To:      models.StatusPendingVerification,
			Fields: map[string]interface{}{
				"payment_submitted": true,
				"proof_kind":        proof.Kind,
				"proof_value":       proof.Value,
				"rejection_reason":  "",
			},
			ChangedBy: actor.label(),
			Note:      "payment proof submitted (" + string(proof.Kind) + ")",
		})
		return translate(err, "order")
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		order, err := p.repo.GetOrder(ctx, orderID)
		return order, translate(err, "order")
	}
	return p.orders.committed(ctx, orderID, from)
}

// Verify approves a pending payment and mints the collection OTP. Verifying
// an already paid order returns it unchanged.
func (p *PaymentService) Verify(ctx context.Context, actor Actor, orderID uint) (*models.Order, error) {
	if !actor.IsStaff() {
		return nil, ErrForbidden
	}
	order, err := p.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, translate(err, "order")
	}
	if order.Status == models.StatusPaid {
		return order, nil
	}
	if order.Status != models.StatusPendingVerification {
		return nil, paymentStepError(order.Status, models.StatusPaid)
	}
	return p.orders.markPaid(ctx, actor, order, "payment verified")
}

// Reject turns a pending payment down with a reason, letting the student resubmit.
func (p *PaymentService) Reject(ctx context.Context, actor Actor, orderID uint, reason string) (*models.Order, error) {
	if !actor.IsStaff() {
		return nil, ErrForbidden
	}
	order, err := p.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, translate(err, "order")
	}
	if order.Status == models.StatusPaymentRejected {
		return order, nil
	}
	if order.Status != models.StatusPendingVerification {
		return nil, paymentStepError(order.Status, models.StatusPaymentRejected)
	}
	return p.orders.markRejected(ctx, actor, order, strings.TrimSpace(reason))
}

// paymentStepError reports a verify or reject outside Pending_Verification.
func paymentStepError(from, to models.OrderStatus) error {
	if err := statemachine.CanTransition(from, to); err != nil {
		return err
	}
	return &statemachine.InvalidTransitionError{From: from, To: to, Allowed: statemachine.ValidTransitionsFrom(from)}
}

// Proof returns the order's payment proof. Uploaded proofs resolve to a
// signed link that expires after the configured TTL.
func (p *PaymentService) Proof(ctx context.Context, actor Actor, orderID uint) (*ProofView, error) {
	order, err := p.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, translate(err, "order")
	}
	if !actor.canView(order) {
		return nil, fmt.Errorf("order %d does not belong to you: %w", orderID, ErrForbidden)
	}
	view := &ProofView{OrderID: order.ID, Kind: order.Proof.Kind}
	switch order.Proof.Kind {
	case models.ProofReference:
		view.Reference = order.Proof.Value
	case models.ProofUpload:
		link, expires, err := p.proofs.SignedURL(order.Proof.Value, p.urlTTL)
		if err != nil {
			return nil, fmt.Errorf("sign proof link: %w", err)
		}
		view.URL = link
		view.ExpiresAt = &expires
	default:
		return nil, fmt.Errorf("no payment proof on order %d: %w", orderID, ErrNotFound)
	}
	return view, nil
}
