package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TraderPosition caches a trader's token holdings as observed when their
// last alert was delivered. It is a lagging snapshot, not a ledger:
// consumers must not read it as a real-time balance.
type TraderPosition struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	TokenAddress  string `gorm:"type:varchar(42);not null;uniqueIndex:ux_token_trader,priority:1"`
	TraderAddress string `gorm:"type:varchar(42);not null;uniqueIndex:ux_token_trader,priority:2"`

	Holdings decimal.Decimal `gorm:"type:numeric(78,18);not null;default:0"`

	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (TraderPosition) TableName() string {
	return "trader_positions"
}
