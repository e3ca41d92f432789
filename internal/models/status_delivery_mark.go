package models

import "time"

// StatusDeliveryMark claims an at-most-once hourly status broadcast for a
// (time bucket, token, chat) triple. Same claim pattern as
// DetectedTransaction: insert with ON CONFLICT DO NOTHING, the winner sends.
type StatusDeliveryMark struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Bucket       string `gorm:"type:varchar(16);not null;uniqueIndex:ux_bucket_token_chat,priority:1"`
	TokenAddress string `gorm:"type:varchar(42);not null;uniqueIndex:ux_bucket_token_chat,priority:2"`
	ChatID       int64  `gorm:"not null;uniqueIndex:ux_bucket_token_chat,priority:3"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (StatusDeliveryMark) TableName() string {
	return "status_delivery_marks"
}
