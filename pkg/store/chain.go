// Package store mirrors audit records into append-only, hash-chained
// secondary stores. Each mirrored entry links to its predecessor so that a
// deleted or edited row breaks the chain.
package store

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/pnku766-alt/fusionintel-core/pkg/canonicalize"
)

// GenesisHash is the previous hash of the first entry in every chain.
const GenesisHash = "genesis"

var (
	ErrChainBroken  = errors.New("hash chain is broken")
	ErrNotConnected = errors.New("store: not connected")
)

// Entry is one mirrored audit record.
type Entry struct {
	Sequence   uint64
	ArtifactID string
	TSUTC      string
	Line       string
	RecordHash string
	PrevHash   string
	EntryHash  string
}

// computeEntryHash binds an entry to its position and predecessor.
func computeEntryHash(seq uint64, recordHash, prevHash string) (string, error) {
	hashable := map[string]string{
		"sequence":    strconv.FormatUint(seq, 10),
		"record_hash": recordHash,
		"prev_hash":   prevHash,
	}
	b, err := canonicalize.JCS(hashable)
	if err != nil {
		return "", fmt.Errorf("failed to marshal entry for hashing: %w", err)
	}
	return canonicalize.Address(b), nil
}

// VerifyEntries checks a sequence-ordered slice of entries.
func VerifyEntries(entries []Entry) error {
	expectedPrev := GenesisHash
	for i, e := range entries {
		if e.Sequence != uint64(i+1) {
			return fmt.Errorf("%w: entry %d has sequence %d", ErrChainBroken, i, e.Sequence)
		}
		if e.PrevHash != expectedPrev {
			return fmt.Errorf("%w: entry %d has prev_hash %s but expected %s",
				ErrChainBroken, i, e.PrevHash, expectedPrev)
		}
		if got := canonicalize.Address([]byte(e.Line)); got != e.RecordHash {
			return fmt.Errorf("%w: entry %d record hash mismatch (computed %s, stored %s)",
				ErrChainBroken, i, got, e.RecordHash)
		}
		computed, err := computeEntryHash(e.Sequence, e.RecordHash, e.PrevHash)
		if err != nil {
			return fmt.Errorf("%w: entry %d: %w", ErrChainBroken, i, err)
		}
		if computed != e.EntryHash {
			return fmt.Errorf("%w: entry %d hash mismatch (computed %s, stored %s)",
				ErrChainBroken, i, computed, e.EntryHash)
		}
		expectedPrev = e.EntryHash
	}
	return nil
}
