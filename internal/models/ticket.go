package models

import (
	"time"

	"github.com/uptrace/bun"
)

type FareClass string

const (
	FareRegular FareClass = "regular"
	FareGold    FareClass = "gold"
)

func (c FareClass) Valid() bool {
	return c == FareRegular || c == FareGold
}

// Ticket is one fare sale. Only IsNull ever changes after insert.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	ReportID    int64     `bun:"report_id,notnull" json:"report_id"`
	Username    string    `bun:"username,notnull" json:"username"`
	Departure   string    `bun:"departure,notnull" json:"departure"`
	Destination string    `bun:"destination,notnull" json:"destination"`
	Stop        string    `bun:"stop,notnull" json:"stop"`
	Time        string    `bun:"time,notnull" json:"time"`
	Fare        int64     `bun:"fare,notnull" json:"fare"`
	FareClass   FareClass `bun:"fare_class,notnull" json:"fare_class"`
	IDNumber    string    `bun:"id_number" json:"id_number,omitempty"`
	IsNull      bool      `bun:"is_null,notnull" json:"is_null"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// TicketDraft is what a seller submits for one ticket of a purchase.
type TicketDraft struct {
	Departure   string    `json:"departure"`
	Destination string    `json:"destination"`
	Stop        string    `json:"stop"`
	Hour        int       `json:"hour"`
	Minute      int       `json:"minute"`
	Fare        int64     `json:"fare"`
	FareClass   FareClass `json:"fare_class"`
	IDNumber    string    `json:"id_number,omitempty"`
}
