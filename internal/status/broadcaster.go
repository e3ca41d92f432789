package status

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"buywatch/internal/alert"
	"buywatch/internal/models"
	"buywatch/internal/price"
	"buywatch/internal/repository"
)

// MetricsSource provides the per-token market snapshot.
type MetricsSource interface {
	GetStatusMetrics(ctx context.Context, token common.Address) price.StatusMetrics
}

// TextSender is the one send shape the broadcast needs.
type TextSender interface {
	SendText(chatID int64, text string) error
}

// Broadcaster sends the hourly per-token status message to every watching
// chat. Each (bucket, token, chat) is claimed through the dedup store first,
// so concurrent or restarted processes never double-send an hour.
type Broadcaster struct {
	Repo    repository.Repository
	Metrics MetricsSource
	Sender  TextSender
	Logger  *zap.Logger
}

// Broadcast runs one hourly pass. Metrics are resolved once per token and
// reused across its chats; every failure is per-chat.
func (b *Broadcaster) Broadcast(ctx context.Context) {
	if b == nil || b.Repo == nil || b.Metrics == nil || b.Sender == nil {
		return
	}
	watchers, err := b.Repo.ListWatchedTokens(ctx)
	if err != nil {
		b.logWarn("watched token listing failed", err)
		return
	}
	if len(watchers) == 0 {
		return
	}

	bucket := time.Now().UTC().Format("2006-01-02T15")

	type rendered struct {
		message string
	}
	byToken := map[string]*rendered{}

	for _, w := range watchers {
		won, err := b.Repo.ClaimStatusDelivery(ctx, &models.StatusDeliveryMark{
			Bucket:       bucket,
			TokenAddress: w.TokenAddress,
			ChatID:       w.ChatID,
		})
		if err != nil {
			b.logWarn("status claim failed", err,
				zap.String("token", w.TokenAddress), zap.Int64("chat_id", w.ChatID))
			continue
		}
		if !won {
			continue
		}

		r, ok := byToken[w.TokenAddress]
		if !ok {
			m := b.Metrics.GetStatusMetrics(ctx, common.HexToAddress(w.TokenAddress))
			r = &rendered{message: alert.RenderStatus(w.Symbol, m)}
			byToken[w.TokenAddress] = r
		}

		if err := b.Sender.SendText(w.ChatID, r.message); err != nil {
			b.logWarn("status send failed", err,
				zap.String("token", w.TokenAddress), zap.Int64("chat_id", w.ChatID))
		}
	}
}

func (b *Broadcaster) logWarn(msg string, err error, fields ...zap.Field) {
	if b.Logger == nil {
		return
	}
	b.Logger.Warn(msg, append(fields, zap.Error(err))...)
}
