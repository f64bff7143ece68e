package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/pnku766-alt/fusionintel-core/pkg/audit"
)

// DefaultStream is the stream key used when none is configured.
const DefaultStream = "fusionintel:audit"

const maxWatchAttempts = 5

// RedisStreamMirror appends audit records to a Redis stream. The chain head
// lives in a hash next to the stream and is advanced in the same MULTI as
// the XADD, guarded by WATCH.
type RedisStreamMirror struct {
	client  *redis.Client
	stream  string
	headKey string
}

// NewRedisStreamMirror connects to addr and mirrors into stream.
func NewRedisStreamMirror(addr, password string, db int, stream string) *RedisStreamMirror {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisStreamMirrorFromClient(rdb, stream)
}

// NewRedisStreamMirrorFromClient wraps an existing client.
func NewRedisStreamMirrorFromClient(client *redis.Client, stream string) *RedisStreamMirror {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStreamMirror{client: client, stream: stream, headKey: stream + ":head"}
}

// Name implements audit.Sink.
func (m *RedisStreamMirror) Name() string { return "redis" }

// Close releases the client.
func (m *RedisStreamMirror) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}

// Mirror implements audit.Sink.
func (m *RedisStreamMirror) Mirror(ctx context.Context, rec audit.Record) error {
	if m.client == nil {
		return &audit.WriteFailure{Path: m.stream, Err: ErrNotConnected}
	}

	txf := func(tx *redis.Tx) error {
		seq, prevHash, err := m.head(ctx, tx)
		if err != nil {
			return err
		}
		seq++
		entryHash, err := computeEntryHash(seq, rec.Hash, prevHash)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: m.stream,
				Values: map[string]any{
					"sequence":    seq,
					"artifact_id": rec.Event.ArtifactID,
					"ts_utc":      rec.Event.TSUTC,
					"line":        string(rec.Line),
					"record_hash": rec.Hash,
					"prev_hash":   prevHash,
					"entry_hash":  entryHash,
				},
			})
			pipe.HSet(ctx, m.headKey, "sequence", seq, "entry_hash", entryHash)
			return nil
		})
		return err
	}

	var err error
	for attempt := 0; attempt < maxWatchAttempts; attempt++ {
		err = m.client.Watch(ctx, txf, m.headKey)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return &audit.WriteFailure{Path: m.stream, Err: fmt.Errorf("redis mirror: %w", err)}
	}
	return nil
}

func (m *RedisStreamMirror) head(ctx context.Context, tx *redis.Tx) (uint64, string, error) {
	vals, err := tx.HMGet(ctx, m.headKey, "sequence", "entry_hash").Result()
	if err != nil {
		return 0, "", err
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return 0, GenesisHash, nil
	}
	seqStr, _ := vals[0].(string)
	hash, _ := vals[1].(string)
	seq, err := strconv.ParseUint(seqStr, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("corrupt chain head %q: %w", seqStr, err)
	}
	return seq, hash, nil
}

// Entries reads the whole stream in order.
func (m *RedisStreamMirror) Entries(ctx context.Context) ([]Entry, error) {
	if m.client == nil {
		return nil, ErrNotConnected
	}
	msgs, err := m.client.XRange(ctx, m.stream, "-", "+").Result()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		seq, err := strconv.ParseUint(fmt.Sprint(msg.Values["sequence"]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: stream id %s: bad sequence", ErrChainBroken, msg.ID)
		}
		entries = append(entries, Entry{
			Sequence:   seq,
			ArtifactID: fmt.Sprint(msg.Values["artifact_id"]),
			TSUTC:      fmt.Sprint(msg.Values["ts_utc"]),
			Line:       fmt.Sprint(msg.Values["line"]),
			RecordHash: fmt.Sprint(msg.Values["record_hash"]),
			PrevHash:   fmt.Sprint(msg.Values["prev_hash"]),
			EntryHash:  fmt.Sprint(msg.Values["entry_hash"]),
		})
	}
	return entries, nil
}

// VerifyChain re-reads the stream and checks every link.
func (m *RedisStreamMirror) VerifyChain(ctx context.Context) error {
	entries, err := m.Entries(ctx)
	if err != nil {
		return err
	}
	return VerifyEntries(entries)
}
