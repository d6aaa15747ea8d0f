package model

import "time"

// Role distinguishes the facility operator from parking users.
type Role string

const (
	RoleOwner Role = "owner"
	RoleUser  Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool { return r == RoleOwner || r == RoleUser }

// Credential represents an RFID credential as stored in the `credentials`
// table. Owner credentials administer the facility and never open parking
// sessions. Balance accumulates every paid session amount.
//
// Fields:
//  ID        – RFID identifier printed on the card (primary key).
//  Name      – display name of the person or vehicle.
//  Role      – owner or user.
//  Balance   – running total of paid charges, in currency units.
//  CreatedAt – timestamp of creation.
type Credential struct {
	ID        string    `json:"id"`         // credentials.id
	Name      string    `json:"name"`       // credentials.name
	Role      Role      `json:"role"`       // credentials.role
	Balance   int64     `json:"balance"`    // credentials.balance
	CreatedAt time.Time `json:"created_at"` // credentials.created_at
}
