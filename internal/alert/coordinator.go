package alert

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"buywatch/internal/classifier"
	"buywatch/internal/models"
	"buywatch/internal/repository"
)

// Sender delivers rendered alerts to a chat.
type Sender interface {
	SendText(chatID int64, text string) error
	SendPhoto(chatID int64, fileID, caption string) error
	SendAnimation(chatID int64, fileID, caption string) error
}

// Coordinator fans a resolved swap out to every subscribed chat and commits
// detection + position state only when at least one delivery succeeded. A
// swap that fails every delivery is persisted nowhere and will only be
// reconsidered if its block is ever re-scanned (accepted gap: the poller
// advances past it regardless).
type Coordinator struct {
	Repo   repository.Repository
	Sender Sender
	Logger *zap.Logger
}

// Deliver returns the number of chats that received the alert. The error is
// non-nil only for the post-delivery persistence failure, which the caller
// logs without stopping the scan.
func (c *Coordinator) Deliver(ctx context.Context, swap Swap) (int, error) {
	if c == nil || c.Repo == nil || c.Sender == nil {
		return 0, nil
	}
	watchers, err := c.Repo.ListWatchersByToken(ctx, swap.TokenAddress)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, w := range watchers {
		if c.deliverToChat(ctx, swap, w) {
			delivered++
		}
	}
	if delivered == 0 {
		return 0, nil
	}

	if err := c.commit(ctx, swap); err != nil {
		return delivered, err
	}
	return delivered, nil
}

func (c *Coordinator) deliverToChat(ctx context.Context, swap Swap, w models.WatchedToken) bool {
	settings, err := c.Repo.GetChatSettings(ctx, w.ChatID)
	if err != nil {
		c.warn("chat settings load failed", w.ChatID, err)
		return false
	}
	if settings != nil && swap.USDValue.LessThan(settings.MinBuyUSD) {
		return false
	}

	mediaID, mediaKind := w.MediaFileID, w.MediaKind
	if mediaID == "" && settings != nil {
		mediaID, mediaKind = settings.DefaultMediaFileID, settings.DefaultMediaKind
	}
	text := RenderBuyAlert(swap, settings)

	if err := c.send(w.ChatID, mediaID, mediaKind, text); err != nil {
		if IsChatGone(err) {
			// The bot can never deliver here again: drop every watch
			// this chat holds so the fan-out self-heals.
			if n, derr := c.Repo.DeleteChatWatches(ctx, w.ChatID); derr != nil {
				c.warn("unsubscribe of gone chat failed", w.ChatID, derr)
			} else if c.Logger != nil {
				c.Logger.Info("chat gone, unsubscribed all watches",
					zap.Int64("chat_id", w.ChatID),
					zap.Int64("removed", n),
				)
			}
		} else {
			c.warn("alert delivery failed", w.ChatID, err)
		}
		return false
	}
	return true
}

func (c *Coordinator) send(chatID int64, mediaID, mediaKind, text string) error {
	if mediaID != "" {
		var err error
		if strings.EqualFold(mediaKind, "animation") {
			err = c.Sender.SendAnimation(chatID, mediaID, text)
		} else {
			err = c.Sender.SendPhoto(chatID, mediaID, text)
		}
		if err == nil {
			return nil
		}
		if IsChatGone(err) {
			return err
		}
		c.warn("media send failed, falling back to text", chatID, err)
	}
	return c.Sender.SendText(chatID, text)
}

func (c *Coordinator) commit(ctx context.Context, swap Swap) error {
	detail, _ := json.Marshal(map[string]any{
		"venue":          swap.Venue,
		"counter_symbol": swap.CounterSymbol,
		"block_number":   swap.BlockNumber,
		"tx_index":       swap.TxIndex,
	})
	claimed, err := c.Repo.ClaimDetection(ctx, &models.DetectedTransaction{
		TxHash:        swap.TxHash,
		TokenAddress:  swap.TokenAddress,
		TxType:        classifier.TxTypeBuy,
		TraderAddress: swap.Trader,
		TokenAmount:   swap.RawTokenAmount,
		CounterAmount: swap.RawCounterAmount,
		USDValue:      swap.USDValue,
		Detail:        datatypes.JSON(detail),
		DetectedAt:    time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if !claimed && c.Logger != nil {
		c.Logger.Warn("detection claim lost after delivery",
			zap.String("tx", swap.TxHash),
		)
	}
	return c.Repo.UpsertTraderPosition(ctx, &models.TraderPosition{
		TokenAddress:  swap.TokenAddress,
		TraderAddress: swap.Trader,
		Holdings:      swap.Holdings,
	})
}

func (c *Coordinator) warn(msg string, chatID int64, err error) {
	if c.Logger != nil {
		c.Logger.Warn(msg, zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// IsChatGone matches the delivery-error signatures that mean the bot has
// permanently lost access to a chat.
func IsChatGone(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"bot was kicked",
		"bot was blocked",
		"chat not found",
		"group chat was upgraded",
		"user is deactivated",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
