package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Count is the live passenger tally of one counter key for one service day.
type Count struct {
	bun.BaseModel `bun:"table:counters"`

	Key        string    `bun:"counter_key,pk" json:"key"`
	ServiceDay string    `bun:"service_day,pk" json:"last_reset"`
	Value      int64     `bun:"value,notnull" json:"value"`
	UpdatedAt  time.Time `bun:"updated_at,notnull" json:"updated_at"`
}
