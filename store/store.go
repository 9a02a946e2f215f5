// Package store caches compiled trashdsl programs in SQLite.
//
// A program is keyed by a digest of its name, its source text and the
// fingerprint of the environment it was compiled against, so a cached entry
// is only reused where recompiling would produce the same code.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/trashdsl/compiler"
	"github.com/chazu/trashdsl/pkg/bytecode"
	"github.com/chazu/trashdsl/vm"
)

var log = commonlog.GetLogger("trashdsl.store")

// ErrNotFound indicates no cached program exists for a key.
var ErrNotFound = errors.New("program not found")

// Program is one cached compilation.
type Program struct {
	ID        string
	Key       string
	Name      string
	Blocks    []*bytecode.CodeBlock
	CreatedAt time.Time
}

// Store is a SQLite-backed program cache. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open opens or creates the cache database at dbPath, creating its
// directory when needed.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS programs (
		id TEXT PRIMARY KEY,
		key TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		code BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("opened program cache %s", dbPath)
	return &Store{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Key derives the cache key of a program.
func Key(name, source, fingerprint string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s", name, fingerprint, source)
	return hex.EncodeToString(h.Sum(nil))
}

// Put stores the code blocks of a compiled program under key, replacing any
// previous entry, and returns the new row id.
func (s *Store) Put(key, name string, blocks []*bytecode.CodeBlock) (string, error) {
	data, err := bytecode.MarshalProgram(blocks)
	if err != nil {
		return "", fmt.Errorf("encoding program %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO programs (id, key, name, code, created_at) VALUES (?, ?, ?, ?, ?)",
		id, key, name, data, time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("saving program %s: %w", name, err)
	}
	log.Debugf("cached %s as %s (%d blocks, %d bytes)", name, id, len(blocks), len(data))
	return id, nil
}

// Get loads the program cached under key.
func (s *Store) Get(key string) (*Program, error) {
	var (
		p       Program
		data    []byte
		created int64
	)
	err := s.db.QueryRow(
		"SELECT id, key, name, code, created_at FROM programs WHERE key = ?", key,
	).Scan(&p.ID, &p.Key, &p.Name, &data, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying program: %w", err)
	}

	p.Blocks, err = bytecode.UnmarshalProgram(data)
	if err != nil {
		return nil, fmt.Errorf("decoding program %s: %w", p.Name, err)
	}
	p.CreatedAt = time.Unix(created, 0)
	return &p, nil
}

// Delete removes the program cached under key. Deleting a missing key is
// not an error.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM programs WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting program: %w", err)
	}
	return nil
}

// Count returns the number of cached programs.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM programs").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting programs: %w", err)
	}
	return n, nil
}

// Compile returns the top-level code block of src, registering it and the
// functions it declares in env. A cached compilation is reused when one
// exists for the same name, source and environment fingerprint; otherwise
// src is compiled and the result cached. hit reports a cache hit. Hints are
// only produced on a miss, through c.
func (s *Store) Compile(c *compiler.Compiler, env *vm.Environment, name, src string) (cb *bytecode.CodeBlock, hit bool, err error) {
	key := Key(name, src, env.Fingerprint())

	p, err := s.Get(key)
	switch {
	case err == nil:
		main, ok := register(env, name, p.Blocks)
		if ok {
			log.Debugf("cache hit for %s (%s)", name, p.ID)
			return main, true, nil
		}
		log.Warningf("cached program %s has no block %q, recompiling", p.ID, name)
	case !errors.Is(err, ErrNotFound):
		log.Warningf("program cache read failed, recompiling: %s", err)
	}

	cb, err = c.Compile(name, src)
	if err != nil {
		return nil, false, err
	}
	if _, err := s.Put(key, name, env.CodeBlocks()); err != nil {
		log.Warningf("program cache write failed: %s", err)
	}
	return cb, false, nil
}

func register(env *vm.Environment, name string, blocks []*bytecode.CodeBlock) (*bytecode.CodeBlock, bool) {
	for _, b := range blocks {
		env.AddCodeBlock(b)
	}
	return env.CodeBlock(name)
}
