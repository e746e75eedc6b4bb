package model

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// PaymentStatus mirrors the integer status codes reported by Flow.
type PaymentStatus int

const (
	StatusUnknown  PaymentStatus = 0
	StatusPending  PaymentStatus = 1
	StatusPaid     PaymentStatus = 2
	StatusRejected PaymentStatus = 3
	StatusVoided   PaymentStatus = 4
)

// Label returns the Spanish label shown to customers.
func (s PaymentStatus) Label() string {
	switch s {
	case StatusPending:
		return "Pendiente"
	case StatusPaid:
		return "Pagado"
	case StatusRejected:
		return "Rechazado"
	case StatusVoided:
		return "Anulado"
	default:
		return "Desconocido"
	}
}

// Paid reports whether the status is the single code that unlocks delivery.
func (s PaymentStatus) Paid() bool {
	return s == StatusPaid
}

// SessionState is the lifecycle of a checkout as tracked locally.
type SessionState string

const (
	SessionPending   SessionState = "pending"
	SessionPaid      SessionState = "paid"
	SessionRejected  SessionState = "rejected"
	SessionVoided    SessionState = "voided"
	SessionDelivered SessionState = "delivered"
)

// SessionStateFor maps a provider status onto the local session state.
func SessionStateFor(s PaymentStatus) SessionState {
	switch s {
	case StatusPaid:
		return SessionPaid
	case StatusRejected:
		return SessionRejected
	case StatusVoided:
		return SessionVoided
	default:
		return SessionPending
	}
}

// PaymentSession is one checkout attempt. The authoritative copy lives at the
// provider; this is the local record joined by OrderID and Token.
type PaymentSession struct {
	OrderID     string       `json:"orderId"`
	Token       string       `json:"token"`
	State       SessionState `json:"state"`
	Amount      int64        `json:"amount"`
	Currency    string       `json:"currency"`
	Email       string       `json:"email"`
	FileName    string       `json:"fileName"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	DeliveredAt *time.Time   `json:"deliveredAt,omitempty"`
}

// UnmarshalJSON accepts the status as a number or a quoted number. Values
// that are not whole numbers decode as StatusUnknown rather than failing, so
// an unexpected provider answer still reads as "not paid".
func (s *PaymentStatus) UnmarshalJSON(data []byte) error {
	*s = ParseStatus(strings.Trim(string(data), `"`))
	return nil
}

// ParseStatus reads a status code written as an integer or as a float with
// no fractional part. Anything else is StatusUnknown.
func ParseStatus(raw string) PaymentStatus {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		return PaymentStatus(n)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return StatusUnknown
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return StatusUnknown
	}
	return PaymentStatus(int(f))
}
