// Package storage хранит историю снимков симуляции в BadgerDB для отладки и разбора тиков.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/klauspost/compress/zstd"

	"github.com/annel0/voxel-creatures/internal/creature"
)

// ErrSnapshotNotFound - снимок с таким тиком не сохранялся или уже вытеснен
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ErrArchiveClosed - архив закрыт
var ErrArchiveClosed = errors.New("хранилище не готово")

var snapshotPrefix = []byte("snap:")

// Record - сохранённый снимок одного тика
type Record struct {
	Tick     uint64             `json:"tick"`
	Time     time.Time          `json:"time"`
	Entities []creature.Pose    `json:"entities"`
	Stats    creature.StepStats `json:"stats"`
}

// ArchiveOptions - параметры архива
type ArchiveOptions struct {
	Path string // каталог данных; пусто - архив в памяти
	Keep int    // сколько последних снимков хранить; 0 - без ограничения
}

// SnapshotArchive - архив снимков. Значения хранятся как JSON, сжатый zstd.
type SnapshotArchive struct {
	db      *badger.DB
	enc     *zstd.Encoder
	dec     *zstd.Decoder
	keep    int
	mutex   sync.RWMutex
	isReady bool
}

// OpenSnapshotArchive открывает (или создаёт) архив снимков
func OpenSnapshotArchive(opts ArchiveOptions) (*SnapshotArchive, error) {
	var dbOpts badger.Options
	if opts.Path == "" {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		dbOpts = badger.DefaultOptions(filepath.Join(opts.Path, "snapshots"))
	}
	dbOpts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	return &SnapshotArchive{
		db:      db,
		enc:     enc,
		dec:     dec,
		keep:    opts.Keep,
		isReady: true,
	}, nil
}

func snapshotKey(tick uint64) []byte {
	key := make([]byte, len(snapshotPrefix)+8)
	copy(key, snapshotPrefix)
	// Big-endian сохраняет порядок тиков при обходе ключей
	binary.BigEndian.PutUint64(key[len(snapshotPrefix):], tick)
	return key
}

func tickFromKey(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(snapshotPrefix):])
}

// Save сохраняет снимок и вытесняет самые старые сверх лимита Keep
func (a *SnapshotArchive) Save(rec Record) error {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	if !a.isReady {
		return ErrArchiveClosed
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ошибка сериализации снимка: %w", err)
	}
	packed := a.enc.EncodeAll(data, make([]byte, 0, len(data)/4))

	err = a.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(rec.Tick), packed)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}

	if a.keep > 0 {
		if _, err := a.prune(a.keep); err != nil {
			return err
		}
	}
	return nil
}

// Load возвращает снимок тика
func (a *SnapshotArchive) Load(tick uint64) (Record, error) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	if !a.isReady {
		return Record{}, ErrArchiveClosed
	}

	var packed []byte
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(tick))
		if err != nil {
			return err
		}
		packed, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, fmt.Errorf("%w: tick %d", ErrSnapshotNotFound, tick)
	}
	if err != nil {
		return Record{}, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	data, err := a.dec.DecodeAll(packed, nil)
	if err != nil {
		return Record{}, fmt.Errorf("ошибка распаковки снимка: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("ошибка десериализации снимка: %w", err)
	}
	return rec, nil
}

// Ticks возвращает номера сохранённых тиков по возрастанию
func (a *SnapshotArchive) Ticks() ([]uint64, error) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	if !a.isReady {
		return nil, ErrArchiveClosed
	}
	return a.ticks()
}

func (a *SnapshotArchive) ticks() ([]uint64, error) {
	var ticks []uint64
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = snapshotPrefix

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			ticks = append(ticks, tickFromKey(it.Item().Key()))
		}
		return nil
	})
	return ticks, err
}

// Prune удаляет самые старые снимки, оставляя keep последних. Возвращает число удалённых.
func (a *SnapshotArchive) Prune(keep int) (int, error) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	if !a.isReady {
		return 0, ErrArchiveClosed
	}
	return a.prune(keep)
}

func (a *SnapshotArchive) prune(keep int) (int, error) {
	ticks, err := a.ticks()
	if err != nil {
		return 0, err
	}
	excess := len(ticks) - keep
	if excess <= 0 {
		return 0, nil
	}

	wb := a.db.NewWriteBatch()
	defer wb.Cancel()
	for _, tick := range ticks[:excess] {
		if err := wb.Delete(snapshotKey(tick)); err != nil {
			return 0, fmt.Errorf("ошибка удаления снимка %d: %w", tick, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("ошибка удаления снимков: %w", err)
	}
	return excess, nil
}

// Close закрывает хранилище данных
func (a *SnapshotArchive) Close() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if !a.isReady {
		return nil
	}

	a.isReady = false
	a.enc.Close()
	a.dec.Close()
	return a.db.Close()
}
