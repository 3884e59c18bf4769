package service

import (
	"context"
	"fmt"

	"ai-voice-chat/backend/internal/models"
	"ai-voice-chat/backend/internal/repository"
	"ai-voice-chat/backend/pkg/cache"
	"ai-voice-chat/backend/pkg/errors"
)

// PersonalityChecker reports whether a personality name is selectable
type PersonalityChecker interface {
	Has(name string) bool
}

// ContextStore keeps each session's profile record
type ContextStore struct {
	kv            repository.KV
	cache         *cache.Cache[models.ContextRecord]
	personalities PersonalityChecker
	locks         *sessionLocks
	now           func() int64
}

// NewContextStore creates a context store. Both recordCache and personalities may be nil.
func NewContextStore(kv repository.KV, recordCache *cache.Cache[models.ContextRecord], personalities PersonalityChecker) *ContextStore {
	return &ContextStore{
		kv:            kv,
		cache:         recordCache,
		personalities: personalities,
		locks:         newSessionLocks(),
		now:           models.NowMillis,
	}
}

// Get returns the session's record, or the default record if none was stored
func (s *ContextStore) Get(ctx context.Context, sessionID string) (models.ContextRecord, error) {
	if err := validateSessionID(sessionID); err != nil {
		return models.ContextRecord{}, err
	}

	if s.cache != nil {
		if record, ok := s.cache.Get(sessionID); ok {
			return record.Clone(), nil
		}
	}

	record, err := s.load(ctx, sessionID)
	if err != nil {
		return models.ContextRecord{}, err
	}
	if s.cache != nil {
		// An Update that finished during the load already cached a newer record
		s.cache.Add(sessionID, record.Clone())
	}
	return record, nil
}

// Update merges patch onto the stored record and persists the result
func (s *ContextStore) Update(ctx context.Context, sessionID string, patch models.ContextPatch) (models.ContextRecord, error) {
	if err := validateSessionID(sessionID); err != nil {
		return models.ContextRecord{}, err
	}
	if patch.Personality != nil && s.personalities != nil && !s.personalities.Has(*patch.Personality) {
		return models.ContextRecord{}, errors.InvalidInput(fmt.Sprintf("unknown personality %q", *patch.Personality))
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	current, err := s.load(ctx, sessionID)
	if err != nil {
		return models.ContextRecord{}, err
	}

	merged := patch.Apply(current)
	merged.LastUpdated = s.now()

	key := repository.SessionKey(sessionID, repository.KindContext)
	if err := repository.PutJSON(ctx, s.kv, key, merged); err != nil {
		if s.cache != nil {
			s.cache.Delete(sessionID)
		}
		return models.ContextRecord{}, errors.StorageFailure(err, "Failed to save context")
	}

	if s.cache != nil {
		s.cache.Set(sessionID, merged.Clone())
	}
	return merged, nil
}

func (s *ContextStore) load(ctx context.Context, sessionID string) (models.ContextRecord, error) {
	record := models.DefaultContext()
	key := repository.SessionKey(sessionID, repository.KindContext)
	if _, err := repository.GetJSON(ctx, s.kv, key, &record); err != nil {
		return models.ContextRecord{}, errors.StorageFailure(err, "Failed to load context")
	}
	return record.Normalize(), nil
}
