// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

// Package obslog is the append-only observation log backed by BadgerDB.
//
// The log is the single source of truth for what the pipeline saw. It
// stores three ordered keyspaces: observations, alert events and delivery
// attempts. Keys sort by timestamp then arrival, so range scans return
// records in ascending time order without a separate index.
//
// Writes are serialized through one writer lock. When BadgerDB rejects a
// write the observation moves to a bounded in-memory buffer, stays visible
// to readers, and the caller receives a *WriteError so the failure is never
// silent. The buffer drains on the next successful write or FlushBuffer.
//
// Readers use BadgerDB snapshot transactions and never wait on the writer
// lock.
package obslog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tidewatch/internal/config"
	"github.com/tomtom215/tidewatch/internal/logging"
	"github.com/tomtom215/tidewatch/internal/models"
)

// flushChunk bounds the number of records in one transaction.
const flushChunk = 256

type record struct {
	key []byte
	val []byte
	obs models.Observation
}

// Stats summarizes log health for the status endpoint.
type Stats struct {
	Observations int64     `json:"observations"`
	Buffered     int       `json:"buffered"`
	LastWriteAt  time.Time `json:"last_write_at,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

// Log is the BadgerDB observation log.
type Log struct {
	db  *badger.DB
	cfg config.ObsLogConfig

	// Clock anchors Recent windows. Replaced in tests.
	Clock func() time.Time

	// persist writes one transaction. Replaced in tests to inject failures.
	persist func(recs []record) error

	writeMu sync.Mutex
	// alertMu serializes read-modify-write of alert records.
	alertMu sync.Mutex

	mu        sync.RWMutex
	buffer    []record
	latest    *models.Observation
	closed    bool
	lastErr   error
	lastWrite time.Time

	count atomic.Int64
	seq   atomic.Uint64
}

// Open opens or creates the log at cfg.Path.
func Open(cfg config.ObsLogConfig) (*Log, error) {
	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	if cfg.MemTableSize > 0 {
		opts.MemTableSize = cfg.MemTableSize
	}
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}
	if cfg.Compression {
		opts.Compression = options.Snappy
	}
	opts.Logger = nil
	return open(opts, cfg)
}

// OpenInMemory opens a log that lives only in memory.
func OpenInMemory(cfg config.ObsLogConfig) (*Log, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts, cfg)
}

func open(opts badger.Options, cfg config.ObsLogConfig) (*Log, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 4096
	}
	if cfg.GCRatio <= 0 || cfg.GCRatio >= 1 {
		cfg.GCRatio = 0.5
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	l := &Log{
		db:    db,
		cfg:   cfg,
		Clock: time.Now,
	}
	l.persist = l.put
	l.seq.Store(uint64(time.Now().UnixNano()))

	if err := l.loadState(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", opts.InMemory).
		Int64("observations", l.count.Load()).
		Msg("Observation log opened")
	return l, nil
}

// loadState restores the observation count and latest observation.
func (l *Log) loadState() error {
	return l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixObservation)
		it := txn.NewIterator(opts)
		var n int64
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		it.Close()
		l.count.Store(n)
		if n == 0 {
			return nil
		}

		ropts := badger.DefaultIteratorOptions
		ropts.Reverse = true
		ropts.Prefix = []byte(prefixObservation)
		rit := txn.NewIterator(ropts)
		defer rit.Close()
		rit.Seek(endKey(prefixObservation))
		if !rit.Valid() {
			return nil
		}
		var obs models.Observation
		if err := rit.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &obs)
		}); err != nil {
			return fmt.Errorf("load latest observation: %w", err)
		}
		l.latest = &obs
		return nil
	})
}

// Append durably writes obs. A *WriteError means the store failed; check
// Buffered to learn whether the observation was retained in memory.
func (l *Log) Append(obs *models.Observation) error {
	if obs == nil {
		return ErrNilObservation
	}

	val, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("marshal observation: %w", err)
	}
	rec := record{
		key: makeKey(prefixObservation, obs.Timestamp, l.seq.Add(1)),
		val: val,
		obs: *obs,
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.mu.RLock()
	closed, pending := l.closed, len(l.buffer)
	l.mu.RUnlock()
	if closed {
		return ErrLogClosed
	}

	if pending > 0 {
		if err := l.flushLocked(); err != nil {
			return l.bufferLocked(rec, err)
		}
	}

	start := time.Now()
	if err := l.persist([]record{rec}); err != nil {
		return l.bufferLocked(rec, err)
	}
	writeLatency.Observe(time.Since(start).Seconds())
	appendsTotal.Inc()
	l.count.Add(1)

	l.mu.Lock()
	l.latest = &rec.obs
	l.lastWrite = start
	l.lastErr = nil
	l.mu.Unlock()
	return nil
}

// bufferLocked keeps rec in memory after a failed write. Caller holds writeMu.
func (l *Log) bufferLocked(rec record, cause error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastErr = cause
	if len(l.buffer) >= l.cfg.BufferSize {
		appendFailures.WithLabelValues("lost").Inc()
		logging.Error().Err(cause).
			Str("observation_id", rec.obs.ID).
			Int("buffered", len(l.buffer)).
			Msg("Observation log write failed and buffer is full, observation lost")
		return &WriteError{Err: errors.Join(ErrBufferFull, cause), Pending: len(l.buffer)}
	}

	l.buffer = append(l.buffer, rec)
	l.latest = &l.buffer[len(l.buffer)-1].obs
	l.count.Add(1)
	bufferedObservations.Set(float64(len(l.buffer)))
	appendFailures.WithLabelValues("buffered").Inc()
	logging.Error().Err(cause).
		Str("observation_id", rec.obs.ID).
		Int("buffered", len(l.buffer)).
		Msg("Observation log write failed, buffering in memory")
	return &WriteError{Err: cause, Buffered: true, Pending: len(l.buffer)}
}

// FlushBuffer retries every buffered observation in arrival order.
func (l *Log) FlushBuffer() error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.flushLocked()
}

func (l *Log) flushLocked() error {
	l.mu.RLock()
	pending := make([]record, len(l.buffer))
	copy(pending, l.buffer)
	l.mu.RUnlock()

	for len(pending) > 0 {
		n := len(pending)
		if n > flushChunk {
			n = flushChunk
		}
		if err := l.persist(pending[:n]); err != nil {
			l.mu.Lock()
			l.lastErr = err
			l.mu.Unlock()
			return fmt.Errorf("flush buffered observations: %w", err)
		}
		appendsTotal.Add(float64(n))

		l.mu.Lock()
		l.buffer = l.buffer[n:]
		if len(l.buffer) == 0 {
			l.buffer = nil
			l.lastErr = nil
		}
		l.lastWrite = time.Now()
		bufferedObservations.Set(float64(len(l.buffer)))
		l.mu.Unlock()

		pending = pending[n:]
		logging.Info().Int("flushed", n).Msg("Buffered observations written")
	}
	return nil
}

// put is the production persist function.
func (l *Log) put(recs []record) error {
	return l.db.Update(func(txn *badger.Txn) error {
		for _, r := range recs {
			if err := txn.SetEntry(l.entry(r.key, r.val)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Recent returns observations from the last window, ascending by time.
func (l *Log) Recent(ctx context.Context, window time.Duration) ([]models.Observation, error) {
	return l.Since(ctx, l.Clock().Add(-window))
}

// Since returns observations at or after t, ascending by time.
func (l *Log) Since(ctx context.Context, t time.Time) ([]models.Observation, error) {
	return l.SinceN(ctx, t, 0)
}

// SinceN returns the oldest limit observations at or after t, ascending by
// time. The scan stops once limit records are read; limit <= 0 means no
// limit.
func (l *Log) SinceN(ctx context.Context, t time.Time, limit int) ([]models.Observation, error) {
	// Buffer first: a concurrent flush can only move records into the
	// store, so reading the store second never misses one.
	buffered := l.bufferedSince(t)

	var out []models.Observation
	err := l.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixObservation)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seekKey(prefixObservation, t)); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var obs models.Observation
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &obs)
			}); err != nil {
				logging.Warn().Err(err).Msg("Skipping unreadable observation")
				continue
			}
			out = append(out, obs)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	merged := mergeObservations(out, buffered)
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// RecentN returns the newest n observations, ascending by time.
func (l *Log) RecentN(ctx context.Context, n int) ([]models.Observation, error) {
	if n <= 0 {
		return nil, nil
	}
	buffered := l.bufferedSince(time.Time{})

	out, err := scanTail[models.Observation](ctx, l, prefixObservation, time.Time{}, n)
	if err != nil {
		return nil, err
	}
	merged := mergeObservations(out, buffered)
	if len(merged) > n {
		merged = merged[len(merged)-n:]
	}
	return merged, nil
}

// Latest returns the most recently appended observation.
func (l *Log) Latest() (models.Observation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.latest == nil {
		return models.Observation{}, false
	}
	return *l.latest, true
}

// Count returns the number of observations appended, buffered included.
// With a Retention TTL it does not drop expired records.
func (l *Log) Count() int64 {
	return l.count.Load()
}

// BufferLen returns the number of observations awaiting a durable write.
func (l *Log) BufferLen() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buffer)
}

// Degraded reports whether observations are waiting in memory.
func (l *Log) Degraded() bool {
	return l.BufferLen() > 0
}

// Stats returns a health snapshot.
func (l *Log) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := Stats{
		Observations: l.count.Load(),
		Buffered:     len(l.buffer),
		LastWriteAt:  l.lastWrite,
	}
	if l.lastErr != nil {
		s.LastError = l.lastErr.Error()
	}
	return s
}

// RecordAlert stores a dispatched alert event.
func (l *Log) RecordAlert(ev *models.AlertEvent) error {
	return l.putJSON(prefixAlert, ev.TriggeredAt, ev)
}

// Alerts returns up to limit alert events at or after since, ascending.
func (l *Log) Alerts(ctx context.Context, since time.Time, limit int) ([]models.AlertEvent, error) {
	return scanTail[models.AlertEvent](ctx, l, prefixAlert, since, limit)
}

// RecordOutcome stores the final delivery result for one recipient on the
// alert event ev, rewriting the event under its original key.
func (l *Log) RecordOutcome(ev *models.AlertEvent, o models.DeliveryOutcome) error {
	l.alertMu.Lock()
	defer l.alertMu.Unlock()

	l.mu.RLock()
	closed := l.closed
	l.mu.RUnlock()
	if closed {
		return ErrLogClosed
	}

	return l.db.Update(func(txn *badger.Txn) error {
		key, stored, err := findAlert(txn, ev)
		if err != nil {
			return err
		}
		stored.SetOutcome(o)
		val, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("marshal %s record: %w", prefixAlert, err)
		}
		return txn.SetEntry(l.entry(key, val))
	})
}

// findAlert locates ev among the alert records sharing its trigger time.
func findAlert(txn *badger.Txn, ev *models.AlertEvent) ([]byte, *models.AlertEvent, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefixAlert)
	it := txn.NewIterator(opts)
	defer it.Close()

	start := seekKey(prefixAlert, ev.TriggeredAt)
	stamp := start[:len(prefixAlert)+8]
	for it.Seek(start); it.ValidForPrefix(stamp); it.Next() {
		var stored models.AlertEvent
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &stored)
		}); err != nil {
			continue
		}
		if stored.ID == ev.ID {
			return it.Item().KeyCopy(nil), &stored, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrAlertNotFound, ev.ID)
}

// RecordDelivery stores one delivery attempt for audit.
func (l *Log) RecordDelivery(a *models.DeliveryAttempt) error {
	return l.putJSON(prefixDelivery, a.At, a)
}

// Deliveries returns up to limit delivery attempts at or after since,
// ascending.
func (l *Log) Deliveries(ctx context.Context, since time.Time, limit int) ([]models.DeliveryAttempt, error) {
	return scanTail[models.DeliveryAttempt](ctx, l, prefixDelivery, since, limit)
}

func (l *Log) putJSON(prefix string, ts time.Time, v interface{}) error {
	val, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", prefix, err)
	}
	key := makeKey(prefix, ts, l.seq.Add(1))

	l.mu.RLock()
	closed := l.closed
	l.mu.RUnlock()
	if closed {
		return ErrLogClosed
	}
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(l.entry(key, val))
	})
}

// entry applies the optional retention TTL.
func (l *Log) entry(key, val []byte) *badger.Entry {
	e := badger.NewEntry(key, val)
	if l.cfg.Retention > 0 {
		e = e.WithTTL(l.cfg.Retention)
	}
	return e
}

// Close flushes the buffer and closes the store. Observations still
// buffered after a failed final flush are reported in the error.
func (l *Log) Close() error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	flushErr := l.flushLocked()
	if flushErr != nil {
		logging.Error().Err(flushErr).Int("lost", l.BufferLen()).Msg("Observation log closed with unflushed observations")
	}

	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	if err := l.db.Close(); err != nil {
		return errors.Join(flushErr, fmt.Errorf("close BadgerDB: %w", err))
	}
	logging.Info().Int64("observations", l.count.Load()).Msg("Observation log closed")
	return flushErr
}

func (l *Log) view(fn func(txn *badger.Txn) error) error {
	l.mu.RLock()
	closed := l.closed
	l.mu.RUnlock()
	if closed {
		return ErrLogClosed
	}
	return l.db.View(fn)
}

func (l *Log) bufferedSince(t time.Time) []models.Observation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []models.Observation
	for i := range l.buffer {
		if !l.buffer[i].obs.Timestamp.Before(t) {
			out = append(out, l.buffer[i].obs)
		}
	}
	return out
}

// scanTail returns the newest limit records of a keyspace at or after
// since, in ascending order. limit <= 0 means no limit.
func scanTail[T any](ctx context.Context, l *Log, prefix string, since time.Time, limit int) ([]T, error) {
	var out []T
	err := l.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		floor := seekKey(prefix, since)
		for it.Seek(endKey(prefix)); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			if string(item.Key()) < string(floor) {
				break
			}
			var v T
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &v)
			}); err != nil {
				logging.Warn().Err(err).Str("prefix", prefix).Msg("Skipping unreadable record")
				continue
			}
			out = append(out, v)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// mergeObservations combines stored and buffered observations, dropping
// duplicates a concurrent flush may have produced.
func mergeObservations(stored, buffered []models.Observation) []models.Observation {
	if len(buffered) == 0 {
		return stored
	}
	seen := make(map[string]bool, len(stored))
	for i := range stored {
		seen[stored[i].ID] = true
	}
	out := stored
	for i := range buffered {
		if !seen[buffered[i].ID] {
			out = append(out, buffered[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
