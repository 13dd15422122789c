package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"tilecache/src/clock"
)

func NewCacheManager(config CacheConfig) *CacheManager {
	switch config.Umask {
	case 0:
		config.Umask = DefaultUmask
	case UmaskNone:
		config.Umask = 0
	}
	if config.StaleLock <= 0 {
		config.StaleLock = DefaultStaleLock
	}
	if config.LockRetry <= 0 {
		config.LockRetry = DefaultLockRetry
	}
	if config.Driver == "" {
		config.Driver = DefaultDriver
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Access == nil {
		config.Access = UnixAccess{}
	}

	return &CacheManager{
		config: config,
		dbPath: filepath.Join(config.BaseDir, dbFileName),
		logger: config.Logger,
		clock:  config.Clock,
		access: config.Access,
	}
}

// Init creates the base directory and the metadata index. It must be
// called once before any other method.
func (cm *CacheManager) Init() error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cm.config.BaseDir == "" {
		return errors.New("base directory is required")
	}
	if cm.config.Limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", cm.config.Limit)
	}
	if cm.config.Driver != "sqlite3" && cm.config.Driver != "sqlite" {
		return fmt.Errorf("unsupported driver %q", cm.config.Driver)
	}
	if cm.db != nil {
		return nil
	}

	if !cm.access.CanRead(cm.config.BaseDir) {
		if err := cm.makedirs(cm.config.BaseDir); err != nil {
			return fmt.Errorf("failed to create base directory: %w", err)
		}
	}

	db, err := cm.openDB()
	if err != nil {
		return err
	}
	cm.db = db

	cm.logger.Info("tile cache opened",
		"base", cm.config.BaseDir,
		"driver", cm.config.Driver,
		"limit", cm.config.Limit,
		"readonly", cm.config.ReadOnly,
	)
	return nil
}

func (cm *CacheManager) openDB() (*sql.DB, error) {
	db, err := sql.Open(cm.config.Driver, cm.dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection per process keeps pragmas and commit visibility
	// uniform; other processes share the file through SQLite's own locking.
	db.SetMaxOpenConns(1)

	if err := cm.configurePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}

	if err := cm.createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

func (cm *CacheManager) configurePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma '%s': %w", pragma, err)
		}
	}

	return nil
}

// createTables installs the persisted schema. The locks table is part of
// the on-disk format but nothing reads or writes it: locking is done with
// lock directories (see lock.go).
func (cm *CacheManager) createTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS locks (
		row     INTEGER,
		column  INTEGER,
		zoom    INTEGER,
		format  TEXT,
		PRIMARY KEY (row, column, zoom, format)
	);
	CREATE TABLE IF NOT EXISTS tiles (
		path    TEXT PRIMARY KEY,
		used    INTEGER,
		size    INTEGER
	);
	CREATE INDEX IF NOT EXISTS tiles_used ON tiles (used);
	`
	_, err := db.Exec(query)
	return err
}

// Config returns the effective configuration after defaults.
func (cm *CacheManager) Config() CacheConfig {
	return cm.config
}

func (cm *CacheManager) Close() error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cm.db == nil {
		return nil
	}
	err := cm.db.Close()
	cm.db = nil
	if err != nil {
		cm.logger.Error("tile cache close error", "path", cm.dbPath, "error", err)
		return fmt.Errorf("failed to close database: %w", err)
	}
	cm.logger.Info("tile cache closed", "base", cm.config.BaseDir)
	return nil
}

// handle returns the open index or an error if Init has not run. Callers
// hold cm.mutex for reading.
func (cm *CacheManager) handle() (*sql.DB, error) {
	if cm.db == nil {
		return nil, errors.New("cache manager is not initialized")
	}
	return cm.db, nil
}
