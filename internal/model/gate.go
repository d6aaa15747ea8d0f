package model

import "time"

// Direction tells which gate produced an event.
type Direction string

const (
	DirectionEntry Direction = "entry"
	DirectionExit  Direction = "exit"
)

// Valid reports whether d is entry or exit.
func (d Direction) Valid() bool { return d == DirectionEntry || d == DirectionExit }

// Source names the ingestion channel an event came through.
type Source string

const (
	SourceHTTP Source = "http"
	SourceBus  Source = "bus"
)

// GateEvent is the canonical form of an entry/exit trigger. Both ingestion
// adapters build one and hand it to the gate engine.
type GateEvent struct {
	ID           string    // correlation id, a UUID
	CredentialID string    // RFID presented at the gate
	Direction    Direction // entry or exit
	OccurredAt   time.Time // when the card was read
	Source       Source    // http or bus
}

// Gate commands sent to the actuator or display.
const (
	CommandOpen         = "open"
	CommandFull         = "full"
	CommandUnauthorized = "unauthorized"
)

// Decision is the engine's answer to a GateEvent. Duration and Amount are
// only set on an accepted exit; SlotID only when entry occupied a slot.
type Decision struct {
	EventID         string    `json:"event_id"`
	CredentialID    string    `json:"credential_id"`
	Direction       Direction `json:"direction"`
	Allowed         bool      `json:"allowed"`
	Command         string    `json:"command"`
	Reason          string    `json:"reason"`
	Message         string    `json:"message,omitempty"`
	SessionID       int64     `json:"session_id,omitempty"`
	SlotID          int       `json:"slot_id,omitempty"`
	DurationSeconds int64     `json:"duration_seconds,omitempty"`
	Duration        string    `json:"duration,omitempty"`
	Amount          int64     `json:"amount,omitempty"`
	DecidedAt       time.Time `json:"decided_at"`
}

// Wire renders the decision the way gates expect it on the bus, e.g.
// "entry:open" or "exit:unauthorized".
func (d Decision) Wire() string { return string(d.Direction) + ":" + d.Command }
