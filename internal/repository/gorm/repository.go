package gormrepository

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"buywatch/internal/models"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// --- Watched tokens ---------------------------------------------------------

func (s *Store) UpsertWatchedToken(ctx context.Context, item *models.WatchedToken) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.TokenAddress = normalizeAddress(item.TokenAddress)
	if item.TokenAddress == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chat_id"}, {Name: "token_address"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"symbol",
			"name",
			"media_file_id",
			"media_kind",
		}),
	}).Create(item).Error
}

func (s *Store) DeleteWatchedToken(ctx context.Context, chatID int64, tokenAddress string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Where("token_address = ?", normalizeAddress(tokenAddress)).
		Delete(&models.WatchedToken{}).Error
}

func (s *Store) DeleteChatWatches(ctx context.Context, chatID int64) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Delete(&models.WatchedToken{})
	return res.RowsAffected, res.Error
}

func (s *Store) IsWatched(ctx context.Context, chatID int64, tokenAddress string) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.WatchedToken{}).
		Where("chat_id = ?", chatID).
		Where("token_address = ?", normalizeAddress(tokenAddress)).
		Count(&count).Error
	return count > 0, err
}

func (s *Store) ListWatchedTokens(ctx context.Context) ([]models.WatchedToken, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.WatchedToken
	if err := s.db.WithContext(ctx).
		Model(&models.WatchedToken{}).
		Order("created_at asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListWatchersByToken(ctx context.Context, tokenAddress string) ([]models.WatchedToken, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.WatchedToken
	if err := s.db.WithContext(ctx).
		Model(&models.WatchedToken{}).
		Where("token_address = ?", normalizeAddress(tokenAddress)).
		Order("chat_id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListWatchedTokenAddresses(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var addrs []string
	if err := s.db.WithContext(ctx).
		Model(&models.WatchedToken{}).
		Distinct("token_address").
		Order("token_address asc").
		Pluck("token_address", &addrs).Error; err != nil {
		return nil, err
	}
	return addrs, nil
}

// --- Detection dedup --------------------------------------------------------

func (s *Store) HasDetection(ctx context.Context, txHash string) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.DetectedTransaction{}).
		Where("tx_hash = ?", normalizeAddress(txHash)).
		Count(&count).Error
	return count > 0, err
}

func (s *Store) ClaimDetection(ctx context.Context, item *models.DetectedTransaction) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	item.TxHash = normalizeAddress(item.TxHash)
	item.TokenAddress = normalizeAddress(item.TokenAddress)
	item.TraderAddress = normalizeAddress(item.TraderAddress)
	if item.TxHash == "" {
		return false, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tx_hash"}},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// --- Trader positions -------------------------------------------------------

func (s *Store) GetTraderPosition(ctx context.Context, tokenAddress, traderAddress string) (*models.TraderPosition, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.TraderPosition
	err := s.db.WithContext(ctx).
		Where("token_address = ?", normalizeAddress(tokenAddress)).
		Where("trader_address = ?", normalizeAddress(traderAddress)).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertTraderPosition(ctx context.Context, item *models.TraderPosition) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.TokenAddress = normalizeAddress(item.TokenAddress)
	item.TraderAddress = normalizeAddress(item.TraderAddress)
	if item.TokenAddress == "" || item.TraderAddress == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "token_address"}, {Name: "trader_address"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"holdings",
			"updated_at",
		}),
	}).Create(item).Error
}

// --- Chat settings ----------------------------------------------------------

func (s *Store) GetChatSettings(ctx context.Context, chatID int64) (*models.ChatSettings, error) {
	if s == nil || s.db == nil {
		return defaultChatSettings(chatID), nil
	}
	var item models.ChatSettings
	err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return defaultChatSettings(chatID), nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func defaultChatSettings(chatID int64) *models.ChatSettings {
	return &models.ChatSettings{
		ChatID:      chatID,
		MinBuyUSD:   decimal.Zero,
		IconEmoji:   "🟢",
		IconStepUSD: decimal.NewFromInt(50),
	}
}

// --- Status delivery marks --------------------------------------------------

func (s *Store) ClaimStatusDelivery(ctx context.Context, item *models.StatusDeliveryMark) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	item.TokenAddress = normalizeAddress(item.TokenAddress)
	if item.Bucket == "" || item.TokenAddress == "" {
		return false, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bucket"}, {Name: "token_address"}, {Name: "chat_id"}},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
