package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pnku766-alt/fusionintel-core/pkg/canonicalize"
)

// pathLocks serializes appenders per destination file. O_APPEND already
// positions each write at EOF; the lock keeps one record per write call even
// where the filesystem does not guarantee atomic appends.
var pathLocks sync.Map

func lockFor(path string) *sync.Mutex {
	key := path
	if abs, err := filepath.Abs(path); err == nil {
		key = abs
	}
	mu, _ := pathLocks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Record is an encoded event ready to be appended or mirrored.
type Record struct {
	Event Event
	Line  []byte // sorted-key JSON, no trailing newline
	Hash  string // sha256:<hex> of Line
}

// Encode renders the event as a single sorted-key JSON line. Payload numbers
// are written as decoded, never reformatted.
func Encode(event Event) (Record, error) {
	line, err := canonicalize.SortedJSON(event)
	if err != nil {
		return Record{}, fmt.Errorf("audit: encode event: %w", err)
	}
	return Record{Event: event, Line: line, Hash: canonicalize.Address(line)}, nil
}

// Append writes line plus a newline to path in a single write, creating the
// file if absent, and syncs before returning. Failures are not retried.
func Append(path string, line []byte) error {
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')

	mu := lockFor(path)
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &WriteFailure{Path: path, Err: err}
	}
	if _, err := f.Write(buf); err != nil {
		_ = f.Close()
		return &WriteFailure{Path: path, Err: err}
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return &WriteFailure{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &WriteFailure{Path: path, Err: err}
	}
	return nil
}

// WriteEvent encodes the event and appends it to path.
func WriteEvent(path string, event Event) error {
	rec, err := Encode(event)
	if err != nil {
		return &WriteFailure{Path: path, Err: err}
	}
	return Append(path, rec.Line)
}

// Sink mirrors appended records to a secondary store.
type Sink interface {
	// Name identifies the sink in audit reasons ("audit_mirrored:<name>").
	Name() string
	Mirror(ctx context.Context, rec Record) error
}
