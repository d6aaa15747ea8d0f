// Package parking holds the error kinds shared by the slot registry, the
// session ledger and the gate decision engine. Every kind is recoverable:
// callers turn it into a deny command, an HTTP status or a log line, never a
// process exit.
package parking

import (
	"errors"
	"fmt"
)

// Gate and ledger outcomes. Reason codes (see Code) are what ends up in HTTP
// bodies, log entries and metric labels.
var (
	ErrUnknownCredential = errors.New("parking: unknown credential")
	ErrOwnerNotPermitted = errors.New("parking: owner credentials cannot be used for parking")
	ErrFacilityFull      = errors.New("parking: all slots are occupied")
	ErrDuplicateEntry    = errors.New("parking: credential already has an active session")
	ErrNoActiveSession   = errors.New("parking: no active parking session")
	ErrInvalidEvent      = errors.New("parking: invalid gate event")

	ErrUnknownSlot       = errors.New("parking: unknown slot")
	ErrInvalidSlotStatus = errors.New("parking: invalid slot status")

	ErrSessionAlreadyOpen = errors.New("parking: session already open")
	ErrNoOpenSession      = errors.New("parking: no open session")
	ErrClockSkew          = errors.New("parking: exit precedes entry")
	ErrNotFound           = errors.New("parking: session not found")
	ErrSessionNotClosed   = errors.New("parking: session is still open")
	ErrAlreadyPaid        = errors.New("parking: session already paid")

	ErrCredentialExists = errors.New("parking: credential already exists")
	ErrInvalidRole      = errors.New("parking: invalid role")

	// ErrStoreUnavailable covers timeouts, lost connections and any other
	// storage failure. The whole event may be retried.
	ErrStoreUnavailable = errors.New("parking: store unavailable")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrUnknownCredential, "unknown_credential"},
	{ErrOwnerNotPermitted, "owner_not_permitted"},
	{ErrFacilityFull, "facility_full"},
	{ErrDuplicateEntry, "duplicate_entry"},
	{ErrNoActiveSession, "no_active_session"},
	{ErrInvalidEvent, "invalid_event"},
	{ErrUnknownSlot, "unknown_slot"},
	{ErrInvalidSlotStatus, "invalid_slot_status"},
	{ErrSessionAlreadyOpen, "session_already_open"},
	{ErrNoOpenSession, "no_open_session"},
	{ErrClockSkew, "clock_skew"},
	{ErrNotFound, "not_found"},
	{ErrSessionNotClosed, "session_not_closed"},
	{ErrAlreadyPaid, "already_paid"},
	{ErrCredentialExists, "credential_exists"},
	{ErrInvalidRole, "invalid_role"},
	{ErrStoreUnavailable, "store_unavailable"},
}

// Code returns the stable reason code for err, "ok" for nil and "internal"
// for anything that is not one of the kinds above.
func Code(err error) string {
	if err == nil {
		return "ok"
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// IsKnown reports whether err is one of the package error kinds.
func IsKnown(err error) bool {
	return err != nil && Code(err) != "internal"
}

// IsRetryable reports whether the caller may replay the whole event.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// Unavailable wraps a storage-level failure as ErrStoreUnavailable while
// keeping the cause in the message. Known kinds pass through untouched.
func Unavailable(err error) error {
	if err == nil || IsKnown(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
