package service

import (
	"context"
	"strings"

	"ai-voice-chat/backend/internal/models"
	"ai-voice-chat/backend/internal/repository"
	"ai-voice-chat/backend/pkg/errors"
)

// MessageStore keeps each session's bounded message log
type MessageStore struct {
	kv    repository.KV
	locks *sessionLocks
	now   func() int64
}

// NewMessageStore creates a message store on top of kv
func NewMessageStore(kv repository.KV) *MessageStore {
	return &MessageStore{
		kv:    kv,
		locks: newSessionLocks(),
		now:   models.NowMillis,
	}
}

// Append validates and stores msg, trimming the log to the newest MaxMessages entries
func (s *MessageStore) Append(ctx context.Context, sessionID string, msg models.Message) (models.Message, error) {
	if err := validateSessionID(sessionID); err != nil {
		return models.Message{}, err
	}
	if !msg.Role.IsConversational() {
		return models.Message{}, errors.InvalidInput("role must be user or assistant")
	}
	if strings.TrimSpace(msg.Content) == "" {
		return models.Message{}, errors.InvalidInput("message content cannot be empty")
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	// Stamped under the lock so timestamps follow insertion order
	if msg.Timestamp == 0 {
		msg.Timestamp = s.now()
	}

	log, err := s.load(ctx, sessionID)
	if err != nil {
		return models.Message{}, err
	}

	log = append(log, msg)
	if len(log) > models.MaxMessages {
		log = log[len(log)-models.MaxMessages:]
	}

	key := repository.SessionKey(sessionID, repository.KindMessages)
	if err := repository.PutJSON(ctx, s.kv, key, log); err != nil {
		return models.Message{}, errors.StorageFailure(err, "Failed to save message")
	}
	return msg, nil
}

// List returns the session's log, oldest first. Unknown sessions have an empty log.
func (s *MessageStore) List(ctx context.Context, sessionID string) ([]models.Message, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	return s.load(ctx, sessionID)
}

func (s *MessageStore) load(ctx context.Context, sessionID string) ([]models.Message, error) {
	var log []models.Message
	key := repository.SessionKey(sessionID, repository.KindMessages)
	if _, err := repository.GetJSON(ctx, s.kv, key, &log); err != nil {
		return nil, errors.StorageFailure(err, "Failed to load messages")
	}
	if log == nil {
		log = []models.Message{}
	}
	return log, nil
}

func validateSessionID(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.InvalidInput("session id is required")
	}
	return nil
}
