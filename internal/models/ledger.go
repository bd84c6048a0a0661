package models

import (
	"time"
)

// Account holds a user's spendable balance in minor units.
type Account struct {
	ID        string    `json:"id" db:"id"`
	Balance   int64     `json:"balance" db:"balance"` // in cents
	Version   int       `json:"version" db:"version"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Asset is a tradable tab and its current owner.
type Asset struct {
	ID        string    `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
