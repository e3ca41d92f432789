package status

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"buywatch/internal/models"
	"buywatch/internal/price"
)

type fakeStatusRepo struct {
	watchers []models.WatchedToken
	claims   []models.StatusDeliveryMark
	lost     map[int64]bool // chats whose claim was already taken
}

func (f *fakeStatusRepo) UpsertWatchedToken(context.Context, *models.WatchedToken) error { return nil }
func (f *fakeStatusRepo) DeleteWatchedToken(context.Context, int64, string) error        { return nil }
func (f *fakeStatusRepo) DeleteChatWatches(context.Context, int64) (int64, error)        { return 0, nil }
func (f *fakeStatusRepo) IsWatched(context.Context, int64, string) (bool, error) {
	return false, nil
}

func (f *fakeStatusRepo) ListWatchedTokens(context.Context) ([]models.WatchedToken, error) {
	return f.watchers, nil
}

func (f *fakeStatusRepo) ListWatchersByToken(context.Context, string) ([]models.WatchedToken, error) {
	return nil, nil
}

func (f *fakeStatusRepo) ListWatchedTokenAddresses(context.Context) ([]string, error) {
	return nil, nil
}

func (f *fakeStatusRepo) HasDetection(context.Context, string) (bool, error) { return false, nil }

func (f *fakeStatusRepo) ClaimDetection(context.Context, *models.DetectedTransaction) (bool, error) {
	return true, nil
}

func (f *fakeStatusRepo) GetTraderPosition(context.Context, string, string) (*models.TraderPosition, error) {
	return nil, nil
}

func (f *fakeStatusRepo) UpsertTraderPosition(context.Context, *models.TraderPosition) error {
	return nil
}

func (f *fakeStatusRepo) GetChatSettings(context.Context, int64) (*models.ChatSettings, error) {
	return &models.ChatSettings{}, nil
}

func (f *fakeStatusRepo) ClaimStatusDelivery(_ context.Context, item *models.StatusDeliveryMark) (bool, error) {
	f.claims = append(f.claims, *item)
	return !f.lost[item.ChatID], nil
}

type fakeMetrics struct {
	calls int
}

func (f *fakeMetrics) GetStatusMetrics(context.Context, common.Address) price.StatusMetrics {
	f.calls++
	return price.StatusMetrics{}
}

type fakeTextSender struct {
	sent []int64
}

func (f *fakeTextSender) SendText(chatID int64, _ string) error {
	f.sent = append(f.sent, chatID)
	return nil
}

func TestBroadcast_ClaimGatesSends(t *testing.T) {
	tokenAddr := "0x2222222222222222222222222222222222222222"
	repo := &fakeStatusRepo{
		watchers: []models.WatchedToken{
			{ChatID: 1, TokenAddress: tokenAddr, Symbol: "TKN"},
			{ChatID: 2, TokenAddress: tokenAddr, Symbol: "TKN"},
		},
		lost: map[int64]bool{2: true},
	}
	metrics := &fakeMetrics{}
	sender := &fakeTextSender{}
	b := &Broadcaster{Repo: repo, Metrics: metrics, Sender: sender}

	b.Broadcast(context.Background())

	if len(repo.claims) != 2 {
		t.Fatalf("claims=%d want 2", len(repo.claims))
	}
	if len(sender.sent) != 1 || sender.sent[0] != 1 {
		t.Fatalf("sent=%v, only the won claim may send", sender.sent)
	}
	if metrics.calls != 1 {
		t.Fatalf("metrics resolved %d times, want once per token", metrics.calls)
	}
}

func TestBroadcast_NoWatchersIsNoOp(t *testing.T) {
	repo := &fakeStatusRepo{}
	sender := &fakeTextSender{}
	b := &Broadcaster{Repo: repo, Metrics: &fakeMetrics{}, Sender: sender}

	b.Broadcast(context.Background())
	if len(repo.claims) != 0 || len(sender.sent) != 0 {
		t.Fatalf("empty watch set must not claim or send")
	}
}
