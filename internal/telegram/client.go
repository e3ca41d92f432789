package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Client wraps the bot API with the three send shapes the alert path uses.
type Client struct {
	bot    *tgbotapi.BotAPI
	logger *zap.Logger
}

func New(token string, logger *zap.Logger) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("telegram bot authorized", zap.String("username", bot.Self.UserName))
	}
	return &Client{bot: bot, logger: logger}, nil
}

func (c *Client) SendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := c.bot.Send(msg)
	return err
}

func (c *Client) SendPhoto(chatID int64, fileID, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(fileID))
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	_, err := c.bot.Send(photo)
	return err
}

func (c *Client) SendAnimation(chatID int64, fileID, caption string) error {
	anim := tgbotapi.NewAnimation(chatID, tgbotapi.FileID(fileID))
	anim.Caption = caption
	anim.ParseMode = tgbotapi.ModeHTML
	_, err := c.bot.Send(anim)
	return err
}
