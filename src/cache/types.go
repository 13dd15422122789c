package cache

import (
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tilecache/src/clock"
)

const (
	DefaultUmask     = 0o002
	DefaultStaleLock = 5 * time.Minute
	DefaultLockRetry = 250 * time.Millisecond
	DefaultDriver    = "sqlite3"

	// UmaskNone requests an empty file-creation mask, since a zero Umask
	// selects DefaultUmask.
	UmaskNone = -1

	dbFileName   = "cache.db"
	lockSuffix   = ".lck"
	tmpExtension = ".tmp"
)

// Tile is the identity of a cached artifact plus the slot a fetch
// populates. Implementations are supplied by the caller.
type Tile interface {
	LayerName() string
	Extension() string
	Coords() (z, x, y int)
	SetData(data []byte)
}

// TileRef is a plain Tile.
type TileRef struct {
	Layer string
	Ext   string
	Z     int
	X     int
	Y     int
	Data  []byte
}

func (t *TileRef) LayerName() string { return t.Layer }
func (t *TileRef) Extension() string { return t.Ext }
func (t *TileRef) Coords() (z, x, y int) { return t.Z, t.X, t.Y }
func (t *TileRef) SetData(data []byte) { t.Data = data }

type CacheConfig struct {
	BaseDir   string
	Umask     int           // applied around mkdir and temp file creation; 0 selects DefaultUmask
	Limit     int64         // bytes; 0 disables eviction
	ReadOnly  bool          // mutating operations become pass-throughs
	SendFile  bool          // Get returns the path instead of the bytes
	StaleLock time.Duration // lock directories older than this are reclaimed
	LockRetry time.Duration // WaitLock poll interval
	Driver    string        // "sqlite3" (mattn) or "sqlite" (modernc)

	Logger *slog.Logger
	Clock  clock.Clock
	Access Access
}

type CacheManager struct {
	config CacheConfig
	mutex  sync.RWMutex
	db     *sql.DB
	dbPath string
	logger *slog.Logger
	clock  clock.Clock
	access Access

	hits      atomic.Uint64
	misses    atomic.Uint64
	stores    atomic.Uint64
	evictions atomic.Uint64
}

// Entry is one row of the tiles table.
type Entry struct {
	Path     string
	Size     int64
	LastUsed int64 // unix seconds
}

// Hit is the result of a successful Get. Data is nil in SendFile mode.
type Hit struct {
	Path string
	Data []byte
}

type Stats struct {
	Hits      uint64
	Misses    uint64
	Stores    uint64
	Evictions uint64
	Entries   int64
	TotalSize int64
	Limit     int64
}
