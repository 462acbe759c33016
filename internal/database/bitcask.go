package database

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go-librarian/internal/models"

	"git.mills.io/prologic/bitcask"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a key is not found in the database.
var ErrNotFound = errors.New("key not found")

// gzipMagicBytes are the first two bytes of a gzip file.
var gzipMagicBytes = []byte{0x1f, 0x8b}

// Resolution journal keys are "res_<group_id>".
const resolutionPrefix = "res_"

// DB wraps the bitcask database instance and provides helper methods. It
// holds the local resolution journal: one entry per group merged or ignored
// through this client.
type DB struct {
	db           *bitcask.Bitcask
	sync.RWMutex // Embed mutex for concurrent access control
}

// Open initializes and returns a DB instance.
func Open(path string) (*DB, error) {
	// Ensure the directory exists
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	dbInstance, err := bitcask.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bitcask database at %s: %w", path, err)
	}
	log.Infof("Database opened successfully at %s", path)
	return &DB{db: dbInstance}, nil
}

// Close safely closes the database connection.
func (d *DB) Close() error {
	log.Info("Closing database...")
	// Acquire write lock to ensure no operations are in progress during close
	d.Lock()
	defer d.Unlock()
	return d.db.Close()
}

// Has checks if a key exists in the database.
func (d *DB) Has(key []byte) bool {
	d.RLock()
	defer d.RUnlock()
	return d.db.Has(key)
}

// Get retrieves the value associated with a key and decompresses it if necessary.
func (d *DB) Get(key []byte) ([]byte, error) {
	d.RLock()
	value, err := d.db.Get(key)
	d.RUnlock()

	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error getting key %s: %w", string(key), err)
	}

	return decompressIfGzipped(value)
}

// Put compresses and stores a key-value pair in the database.
func (d *DB) Put(key []byte, value []byte) error {
	compressedValue, err := compressGzip(value, gzip.BestCompression)
	if err != nil {
		return fmt.Errorf("error compressing value for key %s: %w", string(key), err)
	}

	d.Lock()
	err = d.db.Put(key, compressedValue)
	d.Unlock()
	if err != nil {
		return fmt.Errorf("error putting compressed key %s: %w", string(key), err)
	}
	return nil
}

// Delete removes a key from the database.
func (d *DB) Delete(key []byte) error {
	d.Lock()
	err := d.db.Delete(key)
	d.Unlock()
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("error deleting key %s: %w", string(key), err)
	}
	return nil
}

// Fold iterates over all key-value pairs, decompresses the value,
// and calls the provided function.
func (d *DB) Fold(fn func(key []byte, value []byte) error) error {
	d.RLock()
	defer d.RUnlock()

	return d.db.Fold(func(key []byte) error {
		rawValue, err := d.db.Get(key)
		if err != nil {
			log.WithError(err).Warnf("Fold: Error getting value for key %s", string(key))
			return nil
		}

		value, err := decompressIfGzipped(rawValue)
		if err != nil {
			log.WithError(err).Warnf("Fold: Error decompressing value for key %s", string(key))
			return nil
		}

		return fn(key, value)
	})
}

// --- Resolution Journal ---

func resolutionKey(groupID int64) []byte {
	return []byte(fmt.Sprintf("%s%d", resolutionPrefix, groupID))
}

// RecordResolution journals a merge or ignore that succeeded server-side.
// Failures here are the caller's to log; the server-side resolution already
// happened and must not be rolled back over a local write error.
func (d *DB) RecordResolution(entry models.ResolutionEntry) error {
	dataBytes, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("error marshalling resolution entry for group %d: %w", entry.GroupID, err)
	}
	log.WithField("groupID", entry.GroupID).Debugf("Journaling %s resolution", entry.Action)
	return d.Put(resolutionKey(entry.GroupID), dataBytes)
}

// GetResolution retrieves the journaled resolution for a group, if any.
func (d *DB) GetResolution(groupID int64) (models.ResolutionEntry, error) {
	var entry models.ResolutionEntry
	dataBytes, err := d.Get(resolutionKey(groupID))
	if err != nil {
		return entry, err
	}
	if err := json.Unmarshal(dataBytes, &entry); err != nil {
		return entry, fmt.Errorf("error unmarshalling resolution entry for group %d: %w", groupID, err)
	}
	return entry, nil
}

// ListResolutions returns every journaled resolution, newest first.
func (d *DB) ListResolutions() ([]models.ResolutionEntry, error) {
	var entries []models.ResolutionEntry
	err := d.Fold(func(key []byte, value []byte) error {
		if !strings.HasPrefix(string(key), resolutionPrefix) {
			return nil
		}
		var entry models.ResolutionEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			log.WithError(err).Warnf("Skipping malformed resolution entry at key %s", string(key))
			return nil
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error listing resolutions: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Timestamp != entries[j].Timestamp {
			return entries[i].Timestamp > entries[j].Timestamp
		}
		return entries[i].GroupID > entries[j].GroupID
	})
	return entries, nil
}

// ClearResolutions deletes every journal entry and returns how many were
// removed.
func (d *DB) ClearResolutions() (int, error) {
	var keys [][]byte
	err := d.Fold(func(key []byte, _ []byte) error {
		if strings.HasPrefix(string(key), resolutionPrefix) {
			k := make([]byte, len(key))
			copy(k, key)
			keys = append(keys, k)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("error collecting resolution keys: %w", err)
	}

	deleted := 0
	for _, key := range keys {
		if err := d.Delete(key); err != nil && !errors.Is(err, ErrNotFound) {
			return deleted, err
		}
		deleted++
	}
	log.Infof("Cleared %d resolution journal entries", deleted)
	return deleted, nil
}

// --- Compression Helpers ---

// decompressIfGzipped decompresses the value if it is gzipped.
func decompressIfGzipped(value []byte) ([]byte, error) {
	if bytes.HasPrefix(value, gzipMagicBytes) {
		bReader := bytes.NewReader(value)
		gReader, err := gzip.NewReader(bReader)
		if err != nil {
			log.WithError(err).Warnf("Error creating gzip reader for value, returning raw data.")
			return value, nil
		}
		defer gReader.Close()

		decompressedValue, err := io.ReadAll(gReader)
		if err != nil {
			log.WithError(err).Warnf("Error decompressing value, returning raw data.")
			return value, nil
		}
		return decompressedValue, nil
	}

	return value, nil
}

// compressGzip compresses the value using gzip with the specified compression level.
func compressGzip(value []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	gWriter, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("error creating gzip writer for value: %w", err)
	}
	_, err = gWriter.Write(value)
	if err != nil {
		_ = gWriter.Close()
		return nil, fmt.Errorf("error writing compressed data for value: %w", err)
	}
	err = gWriter.Close() // Close *must* be called to flush buffers
	if err != nil {
		return nil, fmt.Errorf("error closing gzip writer for value: %w", err)
	}

	return buf.Bytes(), nil
}
