package polymarket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/calweaver/whalebot/internal/domain"
)

func TestDataClient_RecentTrades(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/trades" {
			t.Errorf("path = %q, want /trades", r.URL.Path)
		}
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"transactionHash":"0xaaa","proxyWallet":"0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B","side":"buy","size":100,"price":0.42,"conditionId":"0xc1","outcome":"Yes","timestamp":1700000100},
			{"transactionHash":"0xbbb","proxyWallet":"whale.eth","side":"SELL","size":"250","price":"0.10","conditionId":"0xc2","outcome":"No","timestamp":1700000300},
			{"transactionHash":"","proxyWallet":"0xdead","side":"BUY","size":10,"price":0.5,"timestamp":1700000200},
			{"transactionHash":"0xccc","proxyWallet":"0xdead","side":"MERGE","size":10,"price":0.5,"timestamp":1700000200},
			{"transactionHash":"0xddd","proxyWallet":"0xdead","side":"BUY","size":0,"price":0.5,"timestamp":1700000200}
		]`)
	}))
	defer srv.Close()

	client := NewDataClient(srv.URL, nil)
	fills, err := client.RecentTrades(context.Background(), 500, 2500)
	if err != nil {
		t.Fatalf("RecentTrades: %v", err)
	}

	if got := gotQuery.Get("takerOnly"); got != "true" {
		t.Errorf("takerOnly = %q, want %q", got, "true")
	}
	if got := gotQuery.Get("filterType"); got != "CASH" {
		t.Errorf("filterType = %q, want %q", got, "CASH")
	}
	if got := gotQuery.Get("limit"); got != "500" {
		t.Errorf("limit = %q, want %q", got, "500")
	}
	if got := gotQuery.Get("filterAmount"); got != "2500" {
		t.Errorf("filterAmount = %q, want %q", got, "2500")
	}

	if len(fills) != 2 {
		t.Fatalf("len(fills) = %d, want 2 (invalid entries dropped)", len(fills))
	}
	if fills[0].TxHash != "0xbbb" || fills[1].TxHash != "0xaaa" {
		t.Errorf("order = [%s %s], want newest first [0xbbb 0xaaa]", fills[0].TxHash, fills[1].TxHash)
	}

	buy := fills[1]
	if buy.Wallet != "0xab5801a7d398351b8be11c439e05c5b3259aec9b" {
		t.Errorf("Wallet = %q, want lowercased hex address", buy.Wallet)
	}
	if buy.Side != domain.SideBuy {
		t.Errorf("Side = %q, want %q", buy.Side, domain.SideBuy)
	}
	if buy.Size != 100 || buy.Price != 0.42 {
		t.Errorf("Size/Price = %v/%v, want 100/0.42", buy.Size, buy.Price)
	}
	if buy.ConditionID != "0xc1" || buy.Outcome != "Yes" {
		t.Errorf("ConditionID/Outcome = %q/%q, want 0xc1/Yes", buy.ConditionID, buy.Outcome)
	}

	sell := fills[0]
	if sell.Size != 250 || sell.Price != 0.10 {
		t.Errorf("string-encoded Size/Price = %v/%v, want 250/0.1", sell.Size, sell.Price)
	}
	if sell.Wallet != "whale.eth" {
		t.Errorf("Wallet = %q, want %q", sell.Wallet, "whale.eth")
	}
}

func TestDataClient_RecentTrades_NoMinNotional(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	client := NewDataClient(srv.URL, nil)
	if _, err := client.RecentTrades(context.Background(), 100, 0); err != nil {
		t.Fatalf("RecentTrades: %v", err)
	}
	if gotQuery.Has("filterAmount") {
		t.Errorf("filterAmount sent as %q, want omitted when min notional is zero", gotQuery.Get("filterAmount"))
	}
}

func TestDataClient_RecentTrades_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":"slow down"}`)
	}))
	defer srv.Close()

	client := NewDataClient(srv.URL, nil)
	_, err := client.RecentTrades(context.Background(), 100, 0)
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("err = %v, want ErrRateLimited", err)
	}
}
