package models

import "time"

// WatchedToken subscribes one chat to buy alerts for one token contract.
// Many chats may watch the same token; the pair is the fan-out key.
type WatchedToken struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	ChatID       int64  `gorm:"not null;uniqueIndex:ux_chat_token,priority:1"`
	TokenAddress string `gorm:"type:varchar(42);not null;uniqueIndex:ux_chat_token,priority:2;index"`

	Symbol string `gorm:"type:varchar(32);not null"`
	Name   string `gorm:"type:varchar(120)"`

	// Optional per-token alert media, overriding the chat default.
	MediaFileID string `gorm:"type:text"`
	MediaKind   string `gorm:"type:varchar(16)"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (WatchedToken) TableName() string {
	return "watched_tokens"
}
