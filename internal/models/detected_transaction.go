package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// DetectedTransaction records one successfully delivered swap. The tx hash
// is globally unique and is the system's idempotence boundary: the insert is
// a dedup claim (ON CONFLICT DO NOTHING), so a transaction hash can appear
// at most once no matter how often a catch-up range re-covers its block.
// Rows are write-once; the monitor never updates or deletes them.
type DetectedTransaction struct {
	TxHash string `gorm:"primaryKey;type:varchar(66)"`

	TokenAddress  string `gorm:"type:varchar(42);not null;index"`
	TxType        string `gorm:"type:varchar(10);not null"`
	TraderAddress string `gorm:"type:varchar(42);not null;index"`

	TokenAmount   decimal.Decimal `gorm:"type:numeric(78,0);not null;default:0"`
	CounterAmount decimal.Decimal `gorm:"type:numeric(78,0);not null;default:0"`
	USDValue      decimal.Decimal `gorm:"column:usd_value;type:numeric(30,10);not null;default:0"`

	// Detail carries the venue, counter symbol and block coordinates of the
	// originating event for offline inspection.
	Detail datatypes.JSON `gorm:"type:jsonb"`

	DetectedAt time.Time `gorm:"type:timestamptz;not null"`
}

func (DetectedTransaction) TableName() string {
	return "detected_transactions"
}
