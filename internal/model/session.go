package model

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

// PaymentStatus only ever moves from unpaid to paid.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

// Session models a row of the `sessions` table: one visit of a credential
// from entry to exit. Exit time, duration and amount stay null while the
// session is open and are written together when it closes.
//
// Fields:
//  ID              – monotonic identifier assigned by the store.
//  CredentialID    – credential that opened the session.
//  EntryTime       – UTC time of the accepted entry event.
//  ExitTime        – UTC time of the accepted exit event (null while open).
//  DurationSeconds – ExitTime minus EntryTime in whole seconds (null while open).
//  Amount          – charge fixed at close time (null while open).
//  PaymentStatus   – unpaid or paid.
type Session struct {
	ID              int64         `json:"id"`
	CredentialID    string        `json:"credential_id"`
	EntryTime       time.Time     `json:"entry_time"`
	ExitTime        null.Time     `json:"exit_time"`
	DurationSeconds null.Int      `json:"duration_seconds"`
	Amount          null.Int      `json:"amount"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
}

// IsOpen reports whether the session still waits for its exit event.
func (s Session) IsOpen() bool { return !s.ExitTime.Valid }

// SessionView is a session joined with the name of its credential, used by
// operator reports. Name is empty when the credential row is gone.
type SessionView struct {
	Session
	CredentialName string `json:"credential_name"`
	Duration       string `json:"duration,omitempty"`
}
