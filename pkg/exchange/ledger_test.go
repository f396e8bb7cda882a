package exchange

import (
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func openTestLedger(t *testing.T) (*OrderLedger, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "ledger")
	l, err := OpenOrderLedger(dir)
	if err != nil {
		t.Fatalf("OpenOrderLedger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l, dir
}

func TestLedger_UnsetOrdersAreOpen(t *testing.T) {
	l, _ := openTestLedger(t)

	st, err := l.Status(common.HexToHash("0x01"))
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st != Open {
		t.Errorf("status = %s, want open", st)
	}
}

func TestLedger_Transitions(t *testing.T) {
	l, _ := openTestLedger(t)
	hash := common.HexToHash("0x02")

	if err := l.TryTransition(hash, Open, Filled, 100); err != nil {
		t.Fatalf("Open->Filled: %v", err)
	}

	st, _ := l.Status(hash)
	if st != Filled {
		t.Errorf("status = %s, want filled", st)
	}

	// Terminal states never reset.
	if err := l.TryTransition(hash, Open, Filled, 101); !errors.Is(err, ErrWrongState) {
		t.Errorf("refill: err = %v, want ErrWrongState", err)
	}
	if err := l.TryTransition(hash, Open, Cancelled, 102); !errors.Is(err, ErrWrongState) {
		t.Errorf("cancel after fill: err = %v, want ErrWrongState", err)
	}
	if err := l.TryTransition(hash, Filled, Open, 103); !errors.Is(err, ErrWrongState) {
		t.Errorf("Filled->Open: err = %v, want ErrWrongState", err)
	}
}

func TestLedger_CancelBlocksFill(t *testing.T) {
	l, _ := openTestLedger(t)
	hash := common.HexToHash("0x03")

	if err := l.TryTransition(hash, Open, Cancelled, 100); err != nil {
		t.Fatalf("Open->Cancelled: %v", err)
	}
	if err := l.TryTransition(hash, Open, Filled, 101); !errors.Is(err, ErrWrongState) {
		t.Errorf("fill after cancel: err = %v, want ErrWrongState", err)
	}
}

func TestLedger_SurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ledger")

	l, err := OpenOrderLedger(dir)
	if err != nil {
		t.Fatalf("OpenOrderLedger: %v", err)
	}
	filled := common.HexToHash("0x04")
	cancelled := common.HexToHash("0x05")
	if err := l.TryTransition(filled, Open, Filled, 100); err != nil {
		t.Fatalf("TryTransition: %v", err)
	}
	if err := l.TryTransition(cancelled, Open, Cancelled, 100); err != nil {
		t.Fatalf("TryTransition: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Replay protection must survive a restart.
	l, err = OpenOrderLedger(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l.Close()

	if st, _ := l.Status(filled); st != Filled {
		t.Errorf("filled order reopened as %s", st)
	}
	if st, _ := l.Status(cancelled); st != Cancelled {
		t.Errorf("cancelled order reopened as %s", st)
	}
	if err := l.TryTransition(filled, Open, Filled, 200); !errors.Is(err, ErrWrongState) {
		t.Errorf("refill after reopen: err = %v, want ErrWrongState", err)
	}
}

func TestLedger_SettlementArchive(t *testing.T) {
	l, _ := openTestLedger(t)

	for i := int64(1); i <= 5; i++ {
		rec := &SettlementRecord{
			OrderHash: common.BigToHash(big.NewInt(i)),
			Side:      "sell",
			Price:     big.NewInt(i * 100),
			Fee:       big.NewInt(0),
			Royalty:   big.NewInt(0),
			Timestamp: 1000 + i,
		}
		if err := l.SaveSettlement(rec); err != nil {
			t.Fatalf("SaveSettlement: %v", err)
		}
	}

	recs, err := l.Settlements(0)
	if err != nil {
		t.Fatalf("Settlements: %v", err)
	}
	if len(recs) != 5 {
		t.Fatalf("got %d records, want 5", len(recs))
	}
	for i, rec := range recs {
		if rec.Timestamp != 1001+int64(i) {
			t.Errorf("record %d timestamp = %d, archive not in admission order", i, rec.Timestamp)
		}
	}

	limited, err := l.Settlements(2)
	if err != nil {
		t.Fatalf("Settlements limit: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("got %d records, want 2", len(limited))
	}
	if limited[0].Timestamp != 1001 {
		t.Errorf("limited scan starts at %d, want oldest first", limited[0].Timestamp)
	}
}
