package price

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPortfolioGetToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/tokens/0xabc" {
			t.Fatalf("path=%s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"token":{
			"priceUsd":"0.05",
			"marketCap":123456.78,
			"holders":"42",
			"volume24h":"-1"
		}}}`))
	}))
	defer srv.Close()

	c := &PortfolioClient{BaseURL: srv.URL, HTTP: srv.Client()}
	info, err := c.GetToken(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if info.PriceUSD == nil || !info.PriceUSD.Equal(dec("0.05")) {
		t.Fatalf("priceUsd=%v", info.PriceUSD)
	}
	if info.MarketCapUSD == nil || !info.MarketCapUSD.Equal(dec("123456.78")) {
		t.Fatalf("marketCap=%v", info.MarketCapUSD)
	}
	if info.Holders == nil || *info.Holders != 42 {
		t.Fatalf("holders=%v", info.Holders)
	}
	if info.Volume24hUSD != nil {
		t.Fatalf("negative volume accepted: %v", info.Volume24hUSD)
	}
}

func TestPortfolioGetToken_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := &PortfolioClient{BaseURL: srv.URL, HTTP: srv.Client()}
	if _, err := c.GetToken(context.Background(), "0xabc"); err == nil {
		t.Fatalf("expected error on 404")
	}
}
