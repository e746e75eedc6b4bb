// Package model contains simple struct definitions shared across packages.
package model

import "time"

// PendingDocument is an uploaded contract waiting for its payment to be
// confirmed. It is keyed by the order id sent to the payment provider.
type PendingDocument struct {
	OrderID string `json:"orderId"`
	// Base64Data is the file payload exactly as the browser sent it.
	Base64Data   string    `json:"base64Data"`
	MimeType     string    `json:"mimeType"`
	FileName     string    `json:"fileName"`
	ContactEmail string    `json:"email,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
