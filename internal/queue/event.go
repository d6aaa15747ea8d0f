// Package queue connects the gate to the message bus: it consumes slot
// sensor reports and card reads, hands them to the slot registry and the
// gate engine, and publishes the resulting gate commands.
package queue

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/iliyamo/parking-gate/internal/model"
)

// ErrMalformed marks a payload that can never be processed. Such messages
// are logged and dropped; a sensor cannot be asked to resend.
var ErrMalformed = errors.New("queue: malformed payload")

// SlotUpdate is a decoded "<slot_id>:<status>" sensor report.
type SlotUpdate struct {
	SlotID int
	Status model.SlotStatus
}

// ParseSlotUpdate decodes a slot report and checks the id against the
// provisioned range 1..capacity.
func ParseSlotUpdate(body []byte, capacity int) (SlotUpdate, error) {
	idPart, statusPart, ok := strings.Cut(strings.TrimSpace(string(body)), ":")
	if !ok {
		return SlotUpdate{}, fmt.Errorf("%w: %q lacks ':'", ErrMalformed, body)
	}
	id, err := strconv.Atoi(strings.TrimSpace(idPart))
	if err != nil {
		return SlotUpdate{}, fmt.Errorf("%w: slot id %q is not a number", ErrMalformed, idPart)
	}
	if id < 1 || id > capacity {
		return SlotUpdate{}, fmt.Errorf("%w: slot %d outside 1..%d", ErrMalformed, id, capacity)
	}
	status := model.SlotStatus(strings.ToLower(strings.TrimSpace(statusPart)))
	if !status.Valid() {
		return SlotUpdate{}, fmt.Errorf("%w: unknown slot status %q", ErrMalformed, statusPart)
	}
	return SlotUpdate{SlotID: id, Status: status}, nil
}

// ParseCredentialEvent decodes "entry:<credential>" or "exit:<credential>".
func ParseCredentialEvent(body []byte) (model.Direction, string, error) {
	dirPart, id, ok := strings.Cut(strings.TrimSpace(string(body)), ":")
	if !ok {
		return "", "", fmt.Errorf("%w: %q lacks ':'", ErrMalformed, body)
	}
	dir := model.Direction(strings.ToLower(strings.TrimSpace(dirPart)))
	if !dir.Valid() {
		return "", "", fmt.Errorf("%w: unknown direction %q", ErrMalformed, dirPart)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", "", fmt.Errorf("%w: empty credential id", ErrMalformed)
	}
	return dir, id, nil
}
