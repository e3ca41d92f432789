package repository

import (
	"context"

	"buywatch/internal/models"
)

// Repository is the persistence surface of the monitor. All mutation
// methods rely on atomic upsert/insert semantics in the store; no caller
// side locking is required around them.
type Repository interface {
	// Watched tokens (fan-out key: chat x token).
	UpsertWatchedToken(ctx context.Context, item *models.WatchedToken) error
	DeleteWatchedToken(ctx context.Context, chatID int64, tokenAddress string) error
	DeleteChatWatches(ctx context.Context, chatID int64) (int64, error)
	IsWatched(ctx context.Context, chatID int64, tokenAddress string) (bool, error)
	ListWatchedTokens(ctx context.Context) ([]models.WatchedToken, error)
	ListWatchersByToken(ctx context.Context, tokenAddress string) ([]models.WatchedToken, error)
	ListWatchedTokenAddresses(ctx context.Context) ([]string, error)

	// Detection dedup. ClaimDetection inserts with ON CONFLICT DO NOTHING
	// and reports whether this call won the claim.
	HasDetection(ctx context.Context, txHash string) (bool, error)
	ClaimDetection(ctx context.Context, item *models.DetectedTransaction) (bool, error)

	// Trader position snapshots.
	GetTraderPosition(ctx context.Context, tokenAddress, traderAddress string) (*models.TraderPosition, error)
	UpsertTraderPosition(ctx context.Context, item *models.TraderPosition) error

	// Chat settings; a missing row yields defaults, never an error.
	GetChatSettings(ctx context.Context, chatID int64) (*models.ChatSettings, error)

	// Hourly status broadcast claim; same all-or-nothing semantics as
	// ClaimDetection.
	ClaimStatusDelivery(ctx context.Context, item *models.StatusDeliveryMark) (bool, error)
}
