package boltdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/chartsync/internal/clock"
	"github.com/iudanet/chartsync/internal/client/storage"
	"github.com/iudanet/chartsync/internal/crypto"
	"github.com/iudanet/chartsync/internal/models"
)

var (
	// BoltDB bucket names
	bucketQueue    = []byte("queue")       // seq (big-endian) -> QueueItem
	bucketIndex    = []byte("queue_index") // item id -> seq
	bucketCache    = []byte("cache")       // table -> record id -> record
	bucketKeyMap   = []byte("keymap")      // table/temp id -> server id
	bucketMetadata = []byte("metadata")
)

const (
	keySalt     = "salt"
	keyVerifier = "verifier"

	defaultOpenTimeout = time.Second
)

var _ storage.Store = (*Storage)(nil)

// Storage represents BoltDB storage implementation for client
type Storage struct {
	db     *bbolt.DB
	sealer *crypto.Sealer
	clock  *clock.Monotonic
	logger *slog.Logger
}

// Option configures Storage
type Option func(*options)

type options struct {
	clock       *clock.Monotonic
	logger      *slog.Logger
	passphrase  string
	openTimeout time.Duration
}

// WithPassphrase enables at-rest encryption of queue items and cached records
func WithPassphrase(passphrase string) Option {
	return func(o *options) { o.passphrase = passphrase }
}

// WithClock sets the enqueue clock. Используется в тестах.
func WithClock(c *clock.Monotonic) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithOpenTimeout bounds how long New waits for the file lock held by
// another process
func WithOpenTimeout(d time.Duration) Option {
	return func(o *options) { o.openTimeout = d }
}

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string, opts ...Option) (*Storage, error) {
	o := options{openTimeout: defaultOpenTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clock.New()
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	// Открываем BoltDB
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: o.openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	s := &Storage{db: db, clock: o.clock, logger: o.logger}

	// Инициализируем buckets
	if err := s.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	if err := s.initEncryption(o.passphrase); err != nil {
		db.Close()
		return nil, err
	}

	if err := s.seedClock(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Encrypted reports whether values are sealed at rest
func (s *Storage) Encrypted() bool {
	return s.sealer != nil
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketQueue, bucketIndex, bucketCache, bucketKeyMap, bucketMetadata} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		cache := tx.Bucket(bucketCache)
		for _, table := range models.Tables() {
			if _, err := cache.CreateBucketIfNotExists([]byte(table)); err != nil {
				return fmt.Errorf("failed to create cache bucket %s: %w", table, err)
			}
		}
		return nil
	})
}

// initEncryption проверяет или инициализирует ключ шифрования.
// Соль и verifier хранятся в metadata в открытом виде.
func (s *Storage) initEncryption(passphrase string) error {
	var salt, verifier []byte
	var hasData bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMetadata)
		salt = bytes.Clone(meta.Get([]byte(keySalt)))
		verifier = bytes.Clone(meta.Get([]byte(keyVerifier)))
		hasData = !bucketEmpty(tx.Bucket(bucketQueue)) || !cacheEmpty(tx)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to read encryption metadata: %w", err)
	}

	switch {
	case salt != nil && passphrase == "":
		return storage.ErrPassphraseRequired
	case salt != nil:
		key, err := crypto.DeriveStoreKey(passphrase, salt)
		if err != nil {
			return fmt.Errorf("failed to derive store key: %w", err)
		}
		if !crypto.CheckKeyVerifier(key, verifier) {
			return storage.ErrWrongPassphrase
		}
		return s.setKey(key)
	case passphrase == "":
		return nil
	case hasData:
		return fmt.Errorf("store contains unencrypted data, clear it before enabling a passphrase")
	}

	// Первый запуск с паролем: генерируем соль и verifier
	salt, err = crypto.GenerateSalt()
	if err != nil {
		return err
	}
	key, err := crypto.DeriveStoreKey(passphrase, salt)
	if err != nil {
		return fmt.Errorf("failed to derive store key: %w", err)
	}
	verifier, err = crypto.KeyVerifier(key)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMetadata)
		if err := meta.Put([]byte(keySalt), salt); err != nil {
			return err
		}
		return meta.Put([]byte(keyVerifier), verifier)
	})
	if err != nil {
		return fmt.Errorf("failed to save encryption metadata: %w", err)
	}
	s.logger.Info("Local store encryption initialized")
	return s.setKey(key)
}

func (s *Storage) setKey(key []byte) error {
	sealer, err := crypto.NewSealer(key)
	if err != nil {
		return err
	}
	s.sealer = sealer
	return nil
}

// seedClock продвигает часы за максимальный сохраненный enqueued_at,
// чтобы порядок сохранялся после перезапуска.
func (s *Storage) seedClock() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketQueue).ForEach(func(k, v []byte) error {
			item, err := s.decodeItem(k, v)
			if err != nil {
				return err
			}
			s.clock.Observe(item.EnqueuedAt)
			return nil
		})
	})
}

// encode сериализует значение в JSON и шифрует его, если задан ключ.
// aad привязывает шифротекст к месту хранения.
func (s *Storage) encode(v any, aad []byte) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal: %w", err)
	}
	if s.sealer == nil {
		return data, nil
	}
	return s.sealer.Seal(data, aad)
}

func (s *Storage) decode(data, aad []byte, v any) error {
	if s.sealer != nil {
		plain, err := s.sealer.Open(data, aad)
		if err != nil {
			return fmt.Errorf("failed to decrypt: %w", err)
		}
		data = plain
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal: %w", err)
	}
	return nil
}

// view and update map a closed database to ErrStorageClosed.
func (s *Storage) view(ctx context.Context, fn func(tx *bbolt.Tx) error) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return closedErr(s.db.View(fn))
}

func (s *Storage) update(ctx context.Context, fn func(tx *bbolt.Tx) error) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return closedErr(s.db.Update(fn))
}

func closedErr(err error) error {
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return storage.ErrStorageClosed
	}
	return err
}

func bucketEmpty(b *bbolt.Bucket) bool {
	k, _ := b.Cursor().First()
	return k == nil
}

func cacheEmpty(tx *bbolt.Tx) bool {
	cache := tx.Bucket(bucketCache)
	for _, table := range models.Tables() {
		if b := cache.Bucket([]byte(table)); b != nil && !bucketEmpty(b) {
			return false
		}
	}
	return true
}
