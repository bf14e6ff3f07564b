package ledgerpath

import "testing"

func TestPathForLedgerSingleLedgerBatch(t *testing.T) {
	cfg := Default()

	cases := map[uint32]string{
		0:     "FFFFFFFF--0-63999/FFFFFFFF--0.xdr.zst",
		1:     "FFFFFFFF--0-63999/FFFFFFFE--1.xdr.zst",
		64000: "FFFF05FF--64000-127999/FFFF05FF--64000.xdr.zst",
	}
	for ledger, want := range cases {
		if got := cfg.PathForLedger(ledger); got != want {
			t.Errorf("PathForLedger(%d) = %q, want %q", ledger, got, want)
		}
	}
}

func TestPathForLedgerMultiLedgerBatch(t *testing.T) {
	cfg := StoreConfig{LedgersPerBatch: 2, BatchesPerPartition: 8}

	cases := map[uint32]string{
		0:  "FFFFFFFF--0-15/FFFFFFFF--0-1.xdr.zst",
		3:  "FFFFFFFF--0-15/FFFFFFFD--2-3.xdr.zst",
		16: "FFFFFFEF--16-31/FFFFFFEF--16-17.xdr.zst",
	}
	for ledger, want := range cases {
		if got := cfg.PathForLedger(ledger); got != want {
			t.Errorf("PathForLedger(%d) = %q, want %q", ledger, got, want)
		}
	}
}
