// Package cache provides the content-addressed analysis result cache.
// Callers follow cache-aside: check before calling the analyzer, store after.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sentinel/internal/interfaces"
	"github.com/ternarybob/sentinel/internal/models"
)

const keyPrefix = "cache:analysis:"

// Service implements AnalysisCache on Badger. Entries carry an ExpiresAt and
// are lazily dropped on read; Badger's native entry TTL reclaims storage for
// entries that are never read again.
type Service struct {
	db         *badger.DB
	logger     arbor.ILogger
	defaultTTL time.Duration
}

// NewService creates a new analysis cache
func NewService(db *badger.DB, logger arbor.ILogger, defaultTTL time.Duration) *Service {
	if defaultTTL <= 0 {
		defaultTTL = 300 * time.Second
	}
	return &Service{
		db:         db,
		logger:     logger,
		defaultTTL: defaultTTL,
	}
}

// CacheKey derives the deterministic key for a content/room pair.
// Pure function of its inputs: no time or random component.
func CacheKey(content, chatRoomLabel string) string {
	h := sha256.New()
	h.Write([]byte(content))
	h.Write([]byte{0}) // Separator so ("ab","c") and ("a","bc") differ
	h.Write([]byte(chatRoomLabel))
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached result for the pair, or (nil, false) on miss.
// An entry past its expiry is treated as a miss and removed.
func (s *Service) Get(ctx context.Context, content, chatRoomLabel string) (*models.AnalysisResult, bool) {
	key := []byte(CacheKey(content, chatRoomLabel))

	var entry models.CacheEntry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, false
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("Cache read failed, treating as miss")
		return nil, false
	}

	if entry.Expired(time.Now()) {
		// Lazy expiry: drop the stale entry and report a miss
		if err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		}); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to drop expired cache entry")
		}
		return nil, false
	}

	result := entry.Result
	return &result, true
}

// Put stores a result under the pair's content hash. Last write wins.
func (s *Service) Put(ctx context.Context, content, chatRoomLabel string, result *models.AnalysisResult, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	now := time.Now()
	key := CacheKey(content, chatRoomLabel)
	entry := models.CacheEntry{
		Key:       key,
		Result:    *result,
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	data, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	// Badger tracks TTL expiry at whole-second granularity, so a sub-second
	// TTL would hide the entry immediately. ExpiresAt drives correctness;
	// the badger TTL only bounds on-disk lifetime, so clamp it up.
	storeTTL := ttl
	if storeTTL < time.Second {
		storeTTL = time.Second
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), data).WithTTL(storeTTL)
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}

	s.logger.Debug().
		Str("detected_type", string(result.DetectedType)).
		Dur("ttl", ttl).
		Msg("Analysis result cached")

	return nil
}

// Invalidate removes the entry for the pair, reporting whether one existed
func (s *Service) Invalidate(ctx context.Context, content, chatRoomLabel string) (bool, error) {
	key := []byte(CacheKey(content, chatRoomLabel))

	existed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		existed = true
		return txn.Delete(key)
	})
	if err != nil {
		return false, fmt.Errorf("failed to invalidate cache entry: %w", err)
	}
	return existed, nil
}

// Sweep removes entries past their expiry. Optional optimization; lazy
// expiry on read is the correctness mechanism.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	var expired [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var entry models.CacheEntry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				continue
			}
			if entry.Expired(now) {
				expired = append(expired, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan cache for sweep: %w", err)
	}

	removed := 0
	for _, key := range expired {
		if err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		}); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to sweep cache entry")
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Debug().Int("removed", removed).Msg("Swept expired cache entries")
	}

	return removed, nil
}

// Ensure Service implements AnalysisCache
var _ interfaces.AnalysisCache = (*Service)(nil)
