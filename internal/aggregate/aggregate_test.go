package aggregate

import (
	"math"
	"testing"

	"github.com/calweaver/whalebot/internal/domain"
)

func TestGroupFills_SameTransaction(t *testing.T) {
	fills := []domain.Fill{
		{TxHash: "0xabc", Wallet: "0x1", ConditionID: "cond1", Side: domain.SideBuy, Size: 20000, Price: 0.30, Timestamp: 1000},
		{TxHash: "0xabc", Wallet: "0x1", ConditionID: "cond1", Side: domain.SideBuy, Size: 5000, Price: 0.32, Timestamp: 1001},
	}

	trades, err := GroupFills(fills)
	if err != nil {
		t.Fatalf("GroupFills error = %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("len(trades) = %d, want 1", len(trades))
	}

	trade := trades[0]
	if trade.TotalSize != 25000 {
		t.Errorf("TotalSize = %v, want 25000", trade.TotalSize)
	}
	if trade.TotalNotional != 7600 {
		t.Errorf("TotalNotional = %v, want 7600", trade.TotalNotional)
	}
	if math.Abs(trade.VWAP-0.304) > 1e-12 {
		t.Errorf("VWAP = %v, want 0.304", trade.VWAP)
	}
	if trade.FillCount != 2 {
		t.Errorf("FillCount = %d, want 2", trade.FillCount)
	}
	if trade.Timestamp != 1001 {
		t.Errorf("Timestamp = %d, want 1001", trade.Timestamp)
	}
}

func TestGroupFills_DistinctKeys(t *testing.T) {
	fills := []domain.Fill{
		{TxHash: "0xabc", Wallet: "0x1", Side: domain.SideBuy, Size: 10, Price: 0.4, Timestamp: 1},
		{TxHash: "0xabc", Wallet: "0x1", Side: domain.SideSell, Size: 10, Price: 0.4, Timestamp: 2},
		{TxHash: "0xdef", Wallet: "0x1", Side: domain.SideBuy, Size: 10, Price: 0.4, Timestamp: 3},
		{TxHash: "0xabc", Wallet: "0x2", Side: domain.SideBuy, Size: 10, Price: 0.4, Timestamp: 4},
	}

	trades, err := GroupFills(fills)
	if err != nil {
		t.Fatalf("GroupFills error = %v", err)
	}
	if len(trades) != 4 {
		t.Fatalf("len(trades) = %d, want 4 distinct groups", len(trades))
	}

	for _, trade := range trades {
		if trade.FillCount != 1 {
			t.Errorf("FillCount = %d, want 1 for key %s/%s/%s", trade.FillCount, trade.TxHash, trade.Wallet, trade.Side)
		}
	}
}

func TestGroupFills_OutputFollowsInputOrder(t *testing.T) {
	fills := []domain.Fill{
		{TxHash: "0x1", Wallet: "w", Side: domain.SideBuy, Size: 1, Price: 0.5, Timestamp: 1},
		{TxHash: "0x2", Wallet: "w", Side: domain.SideBuy, Size: 1, Price: 0.5, Timestamp: 2},
		{TxHash: "0x1", Wallet: "w", Side: domain.SideBuy, Size: 2, Price: 0.6, Timestamp: 3},
		{TxHash: "0x3", Wallet: "w", Side: domain.SideBuy, Size: 1, Price: 0.5, Timestamp: 4},
	}

	trades, err := GroupFills(fills)
	if err != nil {
		t.Fatalf("GroupFills error = %v", err)
	}

	wantOrder := []string{"0x1", "0x2", "0x3"}
	if len(trades) != len(wantOrder) {
		t.Fatalf("len(trades) = %d, want %d", len(trades), len(wantOrder))
	}
	for i, tx := range wantOrder {
		if trades[i].TxHash != tx {
			t.Errorf("trades[%d].TxHash = %s, want %s", i, trades[i].TxHash, tx)
		}
	}
	if trades[0].FillCount != 2 {
		t.Errorf("trades[0].FillCount = %d, want 2", trades[0].FillCount)
	}
}

func TestGroupFills_Empty(t *testing.T) {
	trades, err := GroupFills(nil)
	if err != nil {
		t.Fatalf("GroupFills(nil) error = %v", err)
	}
	if len(trades) != 0 {
		t.Errorf("len(trades) = %d, want 0", len(trades))
	}
}
