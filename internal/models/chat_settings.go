package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChatSettings holds per-chat alert configuration. The monitor reads it;
// ownership (writes) belongs to the chat-command settings UI.
type ChatSettings struct {
	ChatID int64 `gorm:"primaryKey"`

	MinBuyUSD decimal.Decimal `gorm:"column:min_buy_usd;type:numeric(20,2);not null;default:0"`

	IconEmoji   string          `gorm:"type:varchar(16)"`
	IconStepUSD decimal.Decimal `gorm:"column:icon_step_usd;type:numeric(20,2);not null;default:50"`

	DefaultMediaFileID string `gorm:"type:text"`
	DefaultMediaKind   string `gorm:"type:varchar(16)"`

	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (ChatSettings) TableName() string {
	return "chat_settings"
}
