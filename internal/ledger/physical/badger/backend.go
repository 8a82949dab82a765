// Package badger provides a BadgerDB-backed ledger backend.
//
// Records are stored as JSON values under typed key prefixes. Numeric ids are
// big-endian so prefix iteration yields id order.
package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/MasterChonk/SkillToken-V2/internal/ledger/physical"
	"github.com/MasterChonk/SkillToken-V2/internal/storage"
	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
)

const (
	prefixRole   = "role/"
	prefixCourse = "course/"
	prefixCert   = "cert/"
	prefixGrant  = "grant/"
	prefixEvent  = "event/"
	keyLastSeq   = "meta/last_seq"
)

const (
	KeyPath             = "path"
	KeySyncWrites       = "sync_writes"
	KeyValueLogFileSize = "value_log_file_size"
	KeyMemTableSize     = "mem_table_size"
	KeyInMemory         = "in_memory"
)

func init() {
	physical.Register("badger", NewFactory, Defaults)
}

// Defaults returns the default configuration for the BadgerDB backend.
func Defaults() map[string]string {
	return map[string]string{
		KeyPath:             "ledger",
		KeySyncWrites:       "true",
		KeyValueLogFileSize: strconv.FormatInt(256<<20, 10),
		KeyMemTableSize:     strconv.FormatInt(64<<20, 10),
		KeyInMemory:         "false",
	}
}

// NewFactory creates a new BadgerDB backend from a configuration map.
func NewFactory(ctx context.Context, config map[string]string) (physical.Backend, error) {
	inMemory, err := storage.GetBool(config, KeyInMemory, false)
	if err != nil {
		return nil, storage.NewConfigErrorWithValue("badger", KeyInMemory, config[KeyInMemory], err.Error())
	}

	if inMemory {
		return newInMemory(ctx)
	}

	path := storage.GetString(config, KeyPath, "")
	if path == "" {
		return nil, storage.NewConfigError("badger", KeyPath, "cannot be empty")
	}
	path = storage.ResolvePath(path, storage.GetString(config, storage.KeyDataDir, ""))

	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, storage.NewConfigErrorWithCause("badger", KeyPath, "failed to create directory", err)
	}

	syncWrites, err := storage.GetBool(config, KeySyncWrites, true)
	if err != nil {
		return nil, storage.NewConfigErrorWithValue("badger", KeySyncWrites, config[KeySyncWrites], err.Error())
	}

	valueLogFileSize, err := storage.GetInt64(config, KeyValueLogFileSize, 256<<20)
	if err != nil {
		return nil, storage.NewConfigErrorWithValue("badger", KeyValueLogFileSize, config[KeyValueLogFileSize], err.Error())
	}

	memTableSize, err := storage.GetInt64(config, KeyMemTableSize, 64<<20)
	if err != nil {
		return nil, storage.NewConfigErrorWithValue("badger", KeyMemTableSize, config[KeyMemTableSize], err.Error())
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = syncWrites
	if valueLogFileSize > 0 {
		opts.ValueLogFileSize = valueLogFileSize
	}
	if memTableSize > 0 {
		opts.MemTableSize = memTableSize
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, storage.NewConfigErrorWithCause("badger", KeyPath, "failed to open database", err)
	}

	slog.InfoContext(ctx, "badger ledger initialized", "path", path, "sync_writes", syncWrites)
	return NewWithDB(db), nil
}

func newInMemory(ctx context.Context) (*Backend, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, storage.NewConfigErrorWithCause("badger", KeyInMemory, "failed to open in-memory database", err)
	}

	slog.InfoContext(ctx, "badger ledger initialized (in-memory)")
	return NewWithDB(db), nil
}

// Backend is a BadgerDB implementation of physical.Backend.
type Backend struct {
	db     *badger.DB
	closed atomic.Bool
}

// NewWithDB creates a new backend with an existing BadgerDB instance.
func NewWithDB(db *badger.DB) *Backend {
	return &Backend{db: db}
}

func idKey(prefix string, id uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], id)
	return key
}

func roleKey(r credential.RoleAssignment) []byte {
	return []byte(prefixRole + string(r.Account) + "/" + string(r.Role))
}

// Load scans every record prefix into a snapshot.
func (b *Backend) Load(_ context.Context) (*physical.Snapshot, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	snap := &physical.Snapshot{}
	err := b.db.View(func(txn *badger.Txn) error {
		if err := scan(txn, prefixRole, func(r credential.RoleAssignment) { snap.Roles = append(snap.Roles, r) }); err != nil {
			return err
		}
		if err := scan(txn, prefixCourse, func(c credential.Course) { snap.Courses = append(snap.Courses, c) }); err != nil {
			return err
		}
		if err := scan(txn, prefixCert, func(c credential.Certificate) { snap.Certificates = append(snap.Certificates, c) }); err != nil {
			return err
		}
		if err := scan(txn, prefixGrant, func(g credential.Grant) { snap.Grants = append(snap.Grants, g) }); err != nil {
			return err
		}
		last, err := readLastSeq(txn)
		snap.LastSeq = last
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("badger load: %w", err)
	}
	snap.Sort()
	return snap, nil
}

func scan[T any](txn *badger.Txn, prefix string, fn func(T)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		var v T
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		}); err != nil {
			return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
		}
		fn(v)
	}
	return nil
}

func readLastSeq(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get([]byte(keyLastSeq))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var last uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt %s: %d bytes", keyLastSeq, len(val))
		}
		last = binary.BigEndian.Uint64(val)
		return nil
	})
	return last, err
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return txn.Set(key, data)
}

// Apply writes the commit in a single read-write transaction.
func (b *Backend) Apply(_ context.Context, c *physical.Commit) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		if len(c.Events) > 0 {
			last, err := readLastSeq(txn)
			if err != nil {
				return err
			}
			if err := physical.CheckSequence(last, c.Events); err != nil {
				return err
			}
		}

		for _, r := range c.Roles {
			if err := setJSON(txn, roleKey(r), r); err != nil {
				return err
			}
		}
		for _, course := range c.Courses {
			if err := setJSON(txn, idKey(prefixCourse, course.ID), course); err != nil {
				return err
			}
		}
		for _, cert := range c.Certificates {
			if err := setJSON(txn, idKey(prefixCert, cert.TokenID), cert); err != nil {
				return err
			}
		}
		for _, g := range c.Grants {
			if err := setJSON(txn, idKey(prefixGrant, g.ID), g); err != nil {
				return err
			}
		}
		for _, e := range c.Events {
			if err := setJSON(txn, idKey(prefixEvent, e.Seq), e); err != nil {
				return err
			}
		}
		if n := len(c.Events); n > 0 {
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], c.Events[n-1].Seq)
			return txn.Set([]byte(keyLastSeq), buf[:])
		}
		return nil
	})
	if errors.Is(err, physical.ErrSequenceConflict) {
		return err
	}
	if err != nil {
		return fmt.Errorf("badger apply: %w", err)
	}
	return nil
}

// Events returns up to limit events after the given sequence.
func (b *Backend) Events(_ context.Context, after uint64, limit int) ([]credential.Event, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	var events []credential.Event
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixEvent)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(idKey(prefixEvent, after+1)); it.Valid(); it.Next() {
			if limit > 0 && len(events) >= limit {
				break
			}
			var e credential.Event
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			events = append(events, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger events: %w", err)
	}
	return events, nil
}

func (b *Backend) Ping(_ context.Context) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	if b.db.IsClosed() {
		return errors.New("badger: database closed")
	}
	return nil
}

// Stats returns storage statistics.
func (b *Backend) Stats(_ context.Context) (*physical.Stats, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	var last uint64
	if err := b.db.View(func(txn *badger.Txn) error {
		var err error
		last, err = readLastSeq(txn)
		return err
	}); err != nil {
		return nil, fmt.Errorf("badger stats: %w", err)
	}

	lsm, vlog := b.db.Size()
	return &physical.Stats{
		SizeBytes:   lsm + vlog,
		Events:      int64(last),
		BackendType: "badger",
	}, nil
}

// Close closes the BadgerDB instance.
func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.db.Close()
}
