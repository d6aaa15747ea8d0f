package model

import "time"

// SlotStatus is the coarse occupancy signal reported by a slot sensor or set
// by the operator.
type SlotStatus string

const (
	SlotFree     SlotStatus = "free"
	SlotOccupied SlotStatus = "occupied"
)

// Valid reports whether s is a known status token.
func (s SlotStatus) Valid() bool { return s == SlotFree || s == SlotOccupied }

// Slot is one physical parking space. Slot identity is fixed at facility
// provisioning (1..N); only the current status is kept, no history. A slot
// is never linked to a particular session.
type Slot struct {
	ID        int        `json:"slot_id"`
	Status    SlotStatus `json:"status"`
	UpdatedAt time.Time  `json:"updated_at"`
}
