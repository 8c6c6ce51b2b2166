package internal

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	tt "github.com/gnolang/closelint/internal/types"
)

const cacheFileName = "issues.gob.zst"

// CacheEntry is the stored result of one package.
type CacheEntry struct {
	Hash         string
	Issues       []tt.Issue
	CreatedAt    time.Time
	LastAccessed time.Time
}

// Cache keeps lint results of packages across runs, keyed by import path
// and validated by a hash of the package files.
type Cache struct {
	CacheDir string
	entries  map[string]CacheEntry
	mutex    sync.Mutex
	maxAge   time.Duration
}

func NewCache(cacheDir string) (*Cache, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	cache := &Cache{
		CacheDir: cacheDir,
		entries:  make(map[string]CacheEntry),
		maxAge:   7 * 24 * time.Hour,
	}

	if err := cache.load(); err != nil {
		return nil, fmt.Errorf("failed to load cache: %w", err)
	}

	return cache, nil
}

func (c *Cache) path() string {
	return filepath.Join(c.CacheDir, cacheFileName)
}

func (c *Cache) load() error {
	file, err := os.Open(c.path())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer file.Close()

	decoder, err := zstd.NewReader(file)
	if err != nil {
		return fmt.Errorf("failed to read cache file: %w", err)
	}
	defer decoder.Close()

	if err := gob.NewDecoder(decoder).Decode(&c.entries); err != nil {
		// a corrupt cache is rebuilt, not fatal
		c.entries = make(map[string]CacheEntry)
	}
	return nil
}

func (c *Cache) save() error {
	tmp, err := os.CreateTemp(c.CacheDir, cacheFileName+".*")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := encodeEntries(tmp, c.entries); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return os.Rename(tmp.Name(), c.path())
}

func encodeEntries(w io.Writer, entries map[string]CacheEntry) error {
	encoder, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to compress cache file: %w", err)
	}
	if err := gob.NewEncoder(encoder).Encode(entries); err != nil {
		encoder.Close()
		return fmt.Errorf("failed to encode cache file: %w", err)
	}
	return encoder.Close()
}

// Set stores the issues of a package and persists the cache.
func (c *Cache) Set(key, hash string, issues []tt.Issue) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now()
	c.entries[key] = CacheEntry{
		Hash:         hash,
		Issues:       issues,
		CreatedAt:    now,
		LastAccessed: now,
	}

	return c.save()
}

// Get returns the stored issues when the entry matches hash and is not too old.
func (c *Cache) Get(key, hash string) ([]tt.Issue, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		return nil, false
	}

	if entry.Hash != hash || time.Since(entry.CreatedAt) > c.maxAge {
		delete(c.entries, key)
		return nil, false
	}

	entry.LastAccessed = time.Now()
	c.entries[key] = entry

	return entry.Issues, true
}

func (c *Cache) SetMaxAge(duration time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.maxAge = duration
}

func (c *Cache) InvalidateAll() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries = make(map[string]CacheEntry)
	return c.save()
}

// HashFiles hashes salt and the contents of files, in order.
func HashFiles(salt string, files ...string) (string, error) {
	hash := sha256.New()
	io.WriteString(hash, salt)
	for _, name := range files {
		file, err := os.Open(name)
		if err != nil {
			return "", fmt.Errorf("failed to open file: %w", err)
		}
		fmt.Fprintf(hash, "\x00%s\x00", name)
		_, err = io.Copy(hash, file)
		file.Close()
		if err != nil {
			return "", fmt.Errorf("failed to calculate hash: %w", err)
		}
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
