// Package ledgerpath computes remote object store paths for a ledger
// sequence, mirroring the SEP-54 style layout used by the pubnet ledger
// metadata bucket: ledgers are grouped into batches, batches into
// partitions, and both are named by a descending hex prefix so a plain
// lexicographic directory listing sorts newest-first.
package ledgerpath

import "fmt"

// StoreConfig describes the bucket layout fetched once at startup from
// "{meta_url}/.config.json". Zero value is not usable; use Default.
type StoreConfig struct {
	NetworkPassphrase   string `json:"networkPassphrase" toml:"network_passphrase"`
	LedgersPerBatch     uint32 `json:"ledgersPerBatch" toml:"ledgers_per_batch"`
	BatchesPerPartition uint32 `json:"batchesPerPartition" toml:"batches_per_partition"`
	Compression         string `json:"compression" toml:"compression"`
	Version             string `json:"version" toml:"version"`
}

// Default matches the pubnet S3 bucket layout, used when the remote
// .config.json cannot be fetched at startup.
func Default() StoreConfig {
	return StoreConfig{
		NetworkPassphrase:   "Public Global Stellar Network ; September 2015",
		LedgersPerBatch:     1,
		BatchesPerPartition: 64000,
		Compression:         "zstd",
		Version:             "0.1.0",
	}
}

// PathForLedger computes the object path for ledgerSequence under this
// config, e.g. "FFFFFFFF--0-63999/FFFFFFFF--0.xdr.zst".
func (c StoreConfig) PathForLedger(ledgerSequence uint32) string {
	batchStart := ledgerSequence - (ledgerSequence % c.LedgersPerBatch)
	batchEnd := batchStart + c.LedgersPerBatch - 1

	partitionSize := c.LedgersPerBatch * c.BatchesPerPartition
	partitionStart := ledgerSequence - (ledgerSequence % partitionSize)
	partitionEnd := partitionStart + partitionSize - 1

	partitionPrefix := ^uint32(0) - partitionStart
	batchPrefix := ^uint32(0) - batchStart

	partitionDir := fmt.Sprintf("%08X--%d-%d", partitionPrefix, partitionStart, partitionEnd)

	var batchFile string
	if c.LedgersPerBatch == 1 {
		batchFile = fmt.Sprintf("%08X--%d.xdr.zst", batchPrefix, batchStart)
	} else {
		batchFile = fmt.Sprintf("%08X--%d-%d.xdr.zst", batchPrefix, batchStart, batchEnd)
	}

	if c.BatchesPerPartition == 1 && c.LedgersPerBatch == 1 {
		return batchFile
	}
	return partitionDir + "/" + batchFile
}
