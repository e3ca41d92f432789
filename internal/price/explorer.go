package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ExplorerClient is the etherscan-style block-explorer API, used only as a
// per-field fallback when the portfolio API is missing data.
type ExplorerClient struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// ExplorerTransfer is one row of the account-transfer listing.
type ExplorerTransfer struct {
	From      string
	To        string
	Value     *big.Int
	Timestamp time.Time
}

type explorerEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type explorerTransferRow struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Value     string `json:"value"`
	TimeStamp string `json:"timeStamp"`
}

// TokenTransfers lists recent token transfers, newest first.
func (c *ExplorerClient) TokenTransfers(ctx context.Context, token string, limit int) ([]ExplorerTransfer, error) {
	if limit <= 0 {
		limit = 500
	}
	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", "tokentx")
	params.Set("contractaddress", token)
	params.Set("page", "1")
	params.Set("offset", strconv.Itoa(limit))
	params.Set("sort", "desc")
	raw, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}
	var rows []explorerTransferRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("explorer transfers decode: %w", err)
	}
	transfers := make([]ExplorerTransfer, 0, len(rows))
	for _, row := range rows {
		value, ok := new(big.Int).SetString(row.Value, 10)
		if !ok {
			continue
		}
		ts, err := strconv.ParseInt(row.TimeStamp, 10, 64)
		if err != nil {
			continue
		}
		transfers = append(transfers, ExplorerTransfer{
			From:      row.From,
			To:        row.To,
			Value:     value,
			Timestamp: time.Unix(ts, 0).UTC(),
		})
	}
	return transfers, nil
}

// HolderCount returns the token's holder count.
func (c *ExplorerClient) HolderCount(ctx context.Context, token string) (int64, error) {
	params := url.Values{}
	params.Set("module", "token")
	params.Set("action", "tokenholdercount")
	params.Set("contractaddress", token)
	raw, err := c.get(ctx, params)
	if err != nil {
		return 0, err
	}
	var count string
	if err := json.Unmarshal(raw, &count); err != nil {
		return 0, fmt.Errorf("explorer holder count decode: %w", err)
	}
	n, err := strconv.ParseInt(count, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("explorer holder count parse: %w", err)
	}
	return n, nil
}

func (c *ExplorerClient) get(ctx context.Context, params url.Values) (json.RawMessage, error) {
	if c == nil || c.BaseURL == "" {
		return nil, fmt.Errorf("explorer api not configured")
	}
	if c.APIKey != "" {
		params.Set("apikey", c.APIKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	httpc := c.HTTP
	if httpc == nil {
		httpc = http.DefaultClient
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer api status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	var env explorerEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("explorer envelope decode: %w", err)
	}
	if env.Status != "1" {
		return nil, fmt.Errorf("explorer api error: %s", env.Message)
	}
	return env.Result, nil
}
