package regions

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/OneOfOne/xxhash"
	"github.com/dgraph-io/badger/v3"

	"github.com/wavebatch/wavebatch/logging"
)

// ErrNotFound is returned when a file has no stored region.
var ErrNotFound = errors.New("region not found")

// Region is a temporal slice of one file, in seconds from the start of
// the clip. Label is optional annotation text.
type Region struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Label string  `json:"label,omitempty"`
}

// Validate checks the region bounds.
func (r Region) Validate() error {
	if r.Start < 0 {
		return fmt.Errorf("region start must be >= 0, got %.3f", r.Start)
	}
	if r.End <= r.Start {
		return fmt.Errorf("region end %.3f must be after start %.3f", r.End, r.Start)
	}
	return nil
}

const (
	trimPrefix  = "trim/"
	labelPrefix = "labels/"
)

// Store persists per-file trim regions and label annotations in a local
// badger database. Keys are file identifiers; ContentKey derives a stable
// identifier from the decoded samples so regions survive file renames.
type Store struct {
	db     *badger.DB
	logger logging.Logger
}

// Open opens (or creates) a store at the given directory.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open region store: %w", err)
	}
	return &Store{
		db: db,
		logger: logging.WithFields(logging.Fields{
			"component": "region_store",
			"path":      path,
		}),
	}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetTrim stores the trim region for a file, replacing any existing one.
func (s *Store) SetTrim(fileID string, r Region) error {
	if err := r.Validate(); err != nil {
		return err
	}
	val, err := json.Marshal(r)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(trimPrefix+fileID), val)
	})
	if err != nil {
		return fmt.Errorf("store trim region for %s: %w", fileID, err)
	}
	s.logger.Debug("trim region stored", logging.Fields{
		"file_id": fileID,
		"start":   r.Start,
		"end":     r.End,
	})
	return nil
}

// Trim returns the stored trim region for a file, or ErrNotFound.
func (s *Store) Trim(fileID string) (Region, error) {
	var r Region
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(trimPrefix + fileID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &r)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Region{}, ErrNotFound
	}
	if err != nil {
		return Region{}, fmt.Errorf("load trim region for %s: %w", fileID, err)
	}
	return r, nil
}

// DeleteTrim removes the stored trim region for a file. Deleting a
// missing region is not an error.
func (s *Store) DeleteTrim(fileID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(trimPrefix + fileID))
	})
}

// SetLabels stores the full label annotation list for a file.
func (s *Store) SetLabels(fileID string, labels []Region) error {
	for _, l := range labels {
		if err := l.Validate(); err != nil {
			return err
		}
	}
	val, err := json.Marshal(labels)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(labelPrefix+fileID), val)
	})
}

// Labels returns the stored label annotations for a file. A file without
// labels yields an empty slice.
func (s *Store) Labels(fileID string) ([]Region, error) {
	var labels []Region
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(labelPrefix + fileID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &labels)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return []Region{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load labels for %s: %w", fileID, err)
	}
	return labels, nil
}

// ListTrims returns every stored trim region keyed by file identifier.
func (s *Store) ListTrims() (map[string]Region, error) {
	out := make(map[string]Region)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(trimPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			id := strings.TrimPrefix(string(item.Key()), trimPrefix)
			err := item.Value(func(val []byte) error {
				var r Region
				if err := json.Unmarshal(val, &r); err != nil {
					return err
				}
				out[id] = r
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list trim regions: %w", err)
	}
	return out, nil
}

// FileKey derives a stable file identifier from the raw bytes on disk,
// so annotations survive renames and moves.
func FileKey(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New64()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// ContentKey derives a stable file identifier from decoded audio content,
// so annotations follow the audio rather than the file path.
func ContentKey(samples []float64, sampleRate int) string {
	h := xxhash.New64()

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(sampleRate))
	h.Write(buf[:])

	for _, v := range samples {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}

	return fmt.Sprintf("%016x", h.Sum64())
}
