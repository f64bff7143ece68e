// Package archive stores closed audit logs in content-addressed storage.
// An archived blob is addressed by "sha256:<hex>" of its bytes; storing the
// same bytes twice is a no-op and blobs are never overwritten or deleted.
package archive

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/pnku766-alt/fusionintel-core/pkg/canonicalize"
)

const addressPrefix = "sha256:"

var (
	ErrNotFound       = errors.New("archive: blob not found")
	ErrInvalidAddress = errors.New("archive: invalid address")
)

// Store is a content-addressed blob store.
type Store interface {
	// Put persists data and returns its address.
	Put(ctx context.Context, data []byte) (string, error)
	// Get returns the bytes stored at addr or ErrNotFound.
	Get(ctx context.Context, addr string) ([]byte, error)
	// Exists reports whether addr is stored.
	Exists(ctx context.Context, addr string) (bool, error)
}

// objectName maps an address to the blob's key under a backend prefix.
func objectName(prefix, addr string) (string, error) {
	raw, ok := strings.CutPrefix(addr, addressPrefix)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	if b, err := hex.DecodeString(raw); err != nil || len(b) != 32 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return prefix + raw + ".jsonl", nil
}

// address returns the address of data and its object key.
func address(prefix string, data []byte) (addr, key string) {
	addr = canonicalize.Address(data)
	key, _ = objectName(prefix, addr)
	return addr, key
}
