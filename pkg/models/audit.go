package models

import "time"

// Customer owns rules and alarms. Every analysis call operates on exactly
// one customer's records.
type Customer struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`
}

// AuditEntry records one mutating operation for the audit trail.
type AuditEntry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"ts"`
	CustomerID int64     `json:"customer_id"`
	Actor      string    `json:"actor,omitempty"`
	Action     string    `json:"action"`
	Detail     string    `json:"detail,omitempty"`
}
