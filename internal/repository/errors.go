// Package repository defines the storage contracts the parking core depends
// on and the error values every implementation returns. The gate engine and
// ledger translate these into parking error kinds at their boundary.
package repository

import "errors"

// ErrNotFound is returned when the addressed credential, slot or session
// does not exist (or does not belong to the given credential).
var ErrNotFound = errors.New("not found")

// ErrConflict signals that a conditional write lost: an open session
// already exists for the credential, the session was already closed, or it
// was already paid.
var ErrConflict = errors.New("conflict")

// ErrDuplicateKey is returned when inserting a credential whose id is taken.
var ErrDuplicateKey = errors.New("duplicate key")

// ErrNotClosed is returned when paying a session that has no exit yet.
var ErrNotClosed = errors.New("session not closed")
