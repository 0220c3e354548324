package models

import (
	"time"

	"github.com/goccy/go-json"
)

// OrderStatus represents all possible states of a campus order
type OrderStatus string

const (
	StatusPending             OrderStatus = "Pending"
	StatusPendingVerification OrderStatus = "Pending_Verification"
	StatusPaymentRejected     OrderStatus = "Payment_Rejected"
	StatusPaid                OrderStatus = "Paid"
	StatusPreparing           OrderStatus = "Preparing"
	StatusReady               OrderStatus = "Ready"
	StatusCompleted           OrderStatus = "Completed"
)

// AllStatuses lists every order status in lifecycle order.
var AllStatuses = []OrderStatus{
	StatusPending,
	StatusPendingVerification,
	StatusPaymentRejected,
	StatusPaid,
	StatusPreparing,
	StatusReady,
	StatusCompleted,
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ProofKind tells how a payment was evidenced.
type ProofKind string

const (
	ProofNone      ProofKind = ""
	ProofReference ProofKind = "reference" // free-text UTR typed by the student
	ProofUpload    ProofKind = "upload"    // opaque handle of an uploaded screenshot
)

// Proof is the payment evidence attached to an order. Kind decides how Value is read.
type Proof struct {
	Kind  ProofKind `gorm:"size:16"`
	Value string    `gorm:"index"`
}

// ReferenceProof wraps a typed transaction reference.
func ReferenceProof(ref string) Proof { return Proof{Kind: ProofReference, Value: ref} }

// UploadProof wraps an uploaded proof handle.
func UploadProof(handle string) Proof { return Proof{Kind: ProofUpload, Value: handle} }

func (p Proof) IsZero() bool { return p.Kind == ProofNone }

// MarshalJSON never exposes upload handles; they are resolved through signed URLs only.
func (p Proof) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case ProofNone:
		return []byte("null"), nil
	case ProofUpload:
		return json.Marshal(map[string]string{"kind": string(p.Kind)})
	default:
		return json.Marshal(map[string]string{"kind": string(p.Kind), "value": p.Value})
	}
}

type Order struct {
	ID               uint                 `json:"id" gorm:"primaryKey"`
	UserID           *uint                `json:"user_id" gorm:"index"`
	User             *User                `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Status           OrderStatus          `json:"status" gorm:"not null;default:'Pending';index"`
	TotalAmount      int                  `json:"total_amount" gorm:"not null;check:order_total_non_negative,total_amount >= 0"`
	PaymentSubmitted bool                 `json:"payment_submitted" gorm:"default:false"`
	OTP              string               `json:"otp,omitempty" gorm:"index;size:6"`
	Proof            Proof                `json:"proof" gorm:"embedded;embeddedPrefix:proof_"`
	VerifiedBy       string               `json:"verified_by,omitempty"`
	RejectionReason  string               `json:"rejection_reason,omitempty"`
	Items            []OrderItem          `json:"items,omitempty" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	StatusHistory    []OrderStatusHistory `json:"status_history,omitempty" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// OwnedBy reports whether userID owns the order.
func (o *Order) OwnedBy(userID uint) bool {
	return o.UserID != nil && *o.UserID == userID
}

type OrderItem struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	OrderID    uint      `json:"order_id" gorm:"not null;index"`
	MenuItemID uint      `json:"menu_item_id" gorm:"not null;index"`
	MenuItem   *MenuItem `json:"menu_item,omitempty" gorm:"foreignKey:MenuItemID;constraint:OnDelete:RESTRICT"`
	Quantity   int       `json:"quantity" gorm:"not null;check:order_item_quantity_positive,quantity >= 1"`
	Price      int       `json:"price" gorm:"not null;check:order_item_price_non_negative,price >= 0"` // snapshot price at time of order
	Name       string    `json:"name"`                                                               // snapshot name
}

// OrderStatusHistory tracks every status change
type OrderStatusHistory struct {
	ID         uint        `json:"id" gorm:"primaryKey"`
	OrderID    uint        `json:"order_id" gorm:"not null;index"`
	FromStatus OrderStatus `json:"from_status"`
	ToStatus   OrderStatus `json:"to_status" gorm:"not null"`
	ChangedBy  string      `json:"changed_by"`
	Note       string      `json:"note"`
	CreatedAt  time.Time   `json:"created_at"`
}

// PaymentReference binds a transaction reference to the first order that
// submitted it. Rows are never removed, so a rejected reference stays taken.
type PaymentReference struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Reference string    `json:"reference" gorm:"not null;size:64;uniqueIndex"`
	OrderID   uint      `json:"order_id" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at"`
}
