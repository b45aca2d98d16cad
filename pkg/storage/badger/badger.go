// Package badger persists schedule records in an embedded BadgerDB.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/ganttforge/ganttforge/pkg/storage"
)

// Key layout:
//
//	schedule:<id>                              record body (JSON)
//	schedule:index:fingerprint:<fp>:<id>       empty; lookup by plan instance
const (
	recordPrefix = "schedule:"
	fpIndexV     = "schedule:index:fingerprint:"
)

// Config holds BadgerDB tuning options.
type Config struct {
	Path              string
	SyncWrites        bool
	ValueLogFileSize  int64
	NumVersionsToKeep int
}

// BadgerStorage implements storage.Storage on an embedded BadgerDB.
type BadgerStorage struct {
	db *badger.DB
}

// NewBadgerStorage opens (or creates) the database at config.Path.
func NewBadgerStorage(config *Config) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(config.Path)
	opts.SyncWrites = config.SyncWrites
	opts.ValueLogFileSize = config.ValueLogFileSize
	opts.NumVersionsToKeep = config.NumVersionsToKeep

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}
	return &BadgerStorage{db: db}, nil
}

func recordKey(id string) []byte { return []byte(recordPrefix + id) }

func fpIndexKey(fp, id string) []byte { return []byte(fpIndexV + fp + ":" + id) }

func encodeRecord(rec *storage.ScheduleRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, &storage.SerializationError{Operation: "marshal", Cause: err}
	}
	return data, nil
}

func decodeRecord(data []byte) (*storage.ScheduleRecord, error) {
	var rec storage.ScheduleRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &storage.SerializationError{Operation: "unmarshal", Cause: err}
	}
	return &rec, nil
}

// SaveSchedule writes the record and its fingerprint index entry in one
// transaction.
func (b *BadgerStorage) SaveSchedule(ctx context.Context, rec *storage.ScheduleRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(recordKey(rec.ID), data); err != nil {
			return err
		}
		if rec.Fingerprint != "" {
			return txn.Set(fpIndexKey(rec.Fingerprint, rec.ID), nil)
		}
		return nil
	})
}

// GetSchedule looks up one record by id.
func (b *BadgerStorage) GetSchedule(ctx context.Context, id string) (*storage.ScheduleRecord, error) {
	var rec *storage.ScheduleRecord
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = fetchRecord(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func fetchRecord(txn *badger.Txn, id string) (*storage.ScheduleRecord, error) {
	item, err := txn.Get(recordKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, &storage.NotFoundError{EntityType: "schedule", ID: id}
	}
	if err != nil {
		return nil, err
	}
	var rec *storage.ScheduleRecord
	if verr := item.Value(func(val []byte) error {
		decoded, derr := decodeRecord(val)
		if derr != nil {
			return derr
		}
		rec = decoded
		return nil
	}); verr != nil {
		return nil, verr
	}
	return rec, nil
}

// ListSchedules returns records newest first, with the pre-pagination
// total. A fingerprint filter walks the index instead of scanning every
// record.
func (b *BadgerStorage) ListSchedules(ctx context.Context, filter *storage.ScheduleFilter) ([]*storage.ScheduleRecord, int, error) {
	var records []*storage.ScheduleRecord

	err := b.db.View(func(txn *badger.Txn) error {
		if filter != nil && filter.Fingerprint != "" {
			records = collectByFingerprint(txn, filter.Fingerprint)
			return nil
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			if strings.HasPrefix(string(item.Key()), "schedule:index:") {
				continue
			}
			_ = item.Value(func(val []byte) error {
				if rec, err := decodeRecord(val); err == nil {
					records = append(records, rec)
				}
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	total := len(records)
	if filter != nil && filter.Limit > 0 {
		records = page(records, filter.Offset, filter.Limit)
	}
	return records, total, nil
}

func collectByFingerprint(txn *badger.Txn, fp string) []*storage.ScheduleRecord {
	prefix := fpIndexV + fp + ":"
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	opts.PrefetchValues = false

	it := txn.NewIterator(opts)
	defer it.Close()

	var out []*storage.ScheduleRecord
	for it.Rewind(); it.Valid(); it.Next() {
		id := strings.TrimPrefix(string(it.Item().Key()), prefix)
		rec, err := fetchRecord(txn, id)
		if err != nil {
			// Orphaned index entry; the record itself is gone.
			continue
		}
		out = append(out, rec)
	}
	return out
}

func page(records []*storage.ScheduleRecord, offset, limit int) []*storage.ScheduleRecord {
	if offset > len(records) {
		offset = len(records)
	}
	end := offset + limit
	if end > len(records) {
		end = len(records)
	}
	return records[offset:end]
}

// DeleteSchedule removes a record and its index entry; deleting a
// missing id reports NotFoundError.
func (b *BadgerStorage) DeleteSchedule(ctx context.Context, id string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		rec, err := fetchRecord(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(recordKey(id)); err != nil {
			return err
		}
		if rec.Fingerprint != "" {
			return txn.Delete(fpIndexKey(rec.Fingerprint, id))
		}
		return nil
	})
}

// Close runs a best-effort value-log GC pass and closes the database.
// A GC error (usually ErrNoRewrite) never blocks the close.
func (b *BadgerStorage) Close() error {
	_ = b.db.RunValueLogGC(0.5)
	return b.db.Close()
}
