// Package draft implements the per-annotator scratch store: unsubmitted
// annotation rows, the active session snapshot, completed-exam markers and
// the session closing latch. Everything lives in Redis, keyed by
// (annotator, exam, image) so concurrent sessions never collide.
//
// Draft persistence is a degraded-mode feature by contract: save and load
// failures are logged and reported as "no draft", never escalated — losing
// a draft is acceptable, losing submitted rows is not.
package draft

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/liftlabs/liftapp-backend/internal/config"
	"github.com/liftlabs/liftapp-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Commands is the narrow slice of the Redis client the store depends on.
// *redis.Client satisfies it; tests inject a map-backed fake.
type Commands interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

// Store is the draft/session scratch store.
type Store struct {
	kv  Commands
	log zerolog.Logger
}

// NewStore creates a Store on top of the given Redis commands.
func NewStore(kv Commands, log zerolog.Logger) *Store {
	return &Store{
		kv:  kv,
		log: log.With().Str("component", "draft_store").Logger(),
	}
}

// ─── Drafts ──────────────────────────────────────────────────────────

// SaveDraft overwrites the draft rows for one (annotator, exam, image).
// Storage failures are logged and swallowed.
func (s *Store) SaveDraft(ctx context.Context, annotatorID int, examCode string, imageID int, rows []model.AnnotationRow) {
	raw, err := json.Marshal(rows)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal draft")
		return
	}
	key := config.CacheKey.DraftKey(annotatorID, examCode, imageID)
	if err := s.kv.Set(ctx, key, raw, 0).Err(); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("draft save failed, continuing without draft")
	}
}

// LoadDraft returns the draft rows, or (nil, false) when no usable draft
// exists. Corrupt entries are treated as absent.
func (s *Store) LoadDraft(ctx context.Context, annotatorID int, examCode string, imageID int) ([]model.AnnotationRow, bool) {
	key := config.CacheKey.DraftKey(annotatorID, examCode, imageID)
	raw, err := s.kv.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Str("key", key).Msg("draft load failed, treating as absent")
		}
		return nil, false
	}

	var rows []model.AnnotationRow
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("corrupt draft entry, treating as absent")
		return nil, false
	}
	if len(rows) == 0 {
		return nil, false
	}
	return rows, true
}

// RemoveDraft deletes the draft entry. Best-effort, idempotent.
func (s *Store) RemoveDraft(ctx context.Context, annotatorID int, examCode string, imageID int) {
	key := config.CacheKey.DraftKey(annotatorID, examCode, imageID)
	if err := s.kv.Del(ctx, key).Err(); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("draft remove failed")
	}
}

// ─── Completed-exam markers ──────────────────────────────────────────

// MarkCompleted flags the exam as finished for the annotator, blocking
// re-entry.
func (s *Store) MarkCompleted(ctx context.Context, annotatorID int, examCode string) {
	key := config.CacheKey.CompletedKey(annotatorID, examCode)
	if err := s.kv.Set(ctx, key, "1", 0).Err(); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("completed marker write failed")
	}
}

// Completed reports whether the completed marker is set. Lookup failures
// read as "not completed"; the durable completion record is the backstop.
func (s *Store) Completed(ctx context.Context, annotatorID int, examCode string) bool {
	key := config.CacheKey.CompletedKey(annotatorID, examCode)
	val, err := s.kv.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Str("key", key).Msg("completed marker read failed")
		}
		return false
	}
	return val == "1"
}

// ─── Session snapshots ───────────────────────────────────────────────

// SaveSession stores the active session snapshot and registers the
// annotator in the sweep index. Unlike drafts, snapshot writes are load
// bearing: a failure here fails session creation.
func (s *Store) SaveSession(ctx context.Context, snap *model.SessionSnapshot, ttl time.Duration) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, config.CacheKey.SessionKey(snap.AnnotatorID), raw, ttl).Err(); err != nil {
		return err
	}
	if err := s.kv.SAdd(ctx, config.CacheKey.ActiveSessionIndexKey(), snap.AnnotatorID).Err(); err != nil {
		s.log.Warn().Err(err).Int("annotator_id", snap.AnnotatorID).Msg("sweep index add failed")
	}
	return nil
}

// LoadSession returns the snapshot for the annotator, or nil when none
// exists. Corrupt snapshots are dropped and read as absent.
func (s *Store) LoadSession(ctx context.Context, annotatorID int) (*model.SessionSnapshot, error) {
	key := config.CacheKey.SessionKey(annotatorID)
	raw, err := s.kv.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snap := &model.SessionSnapshot{}
	if err := json.Unmarshal([]byte(raw), snap); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("corrupt session snapshot, discarding")
		s.kv.Del(ctx, key)
		return nil, nil
	}
	return snap, nil
}

// ClearSession removes the snapshot and deregisters the annotator from
// the sweep index. Idempotent.
func (s *Store) ClearSession(ctx context.Context, annotatorID int) {
	if err := s.kv.Del(ctx, config.CacheKey.SessionKey(annotatorID)).Err(); err != nil {
		s.log.Warn().Err(err).Int("annotator_id", annotatorID).Msg("session clear failed")
	}
	if err := s.kv.SRem(ctx, config.CacheKey.ActiveSessionIndexKey(), annotatorID).Err(); err != nil {
		s.log.Warn().Err(err).Int("annotator_id", annotatorID).Msg("sweep index remove failed")
	}
}

// ActiveAnnotators lists annotator IDs currently in the sweep index.
func (s *Store) ActiveAnnotators(ctx context.Context) ([]int, error) {
	members, err := s.kv.SMembers(ctx, config.CacheKey.ActiveSessionIndexKey()).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(members))
	for _, m := range members {
		id, err := strconv.Atoi(m)
		if err != nil {
			s.log.Warn().Str("member", m).Msg("non-numeric sweep index member, skipping")
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ─── Closing latch & submitted flag ──────────────────────────────────

// AcquireClosing atomically latches the session into its closing phase.
// Returns false when another closure already holds the latch.
func (s *Store) AcquireClosing(ctx context.Context, annotatorID int, ttl time.Duration) (bool, error) {
	return s.kv.SetNX(ctx, config.CacheKey.SessionClosingKey(annotatorID), "1", ttl).Result()
}

// ReleaseClosing frees the latch so a failed closure can be retried.
func (s *Store) ReleaseClosing(ctx context.Context, annotatorID int) {
	if err := s.kv.Del(ctx, config.CacheKey.SessionClosingKey(annotatorID)).Err(); err != nil {
		s.log.Warn().Err(err).Int("annotator_id", annotatorID).Msg("closing latch release failed")
	}
}

// MarkSubmitted latches that a successful submission happened for the
// active session; a 'submitted' close requires it.
func (s *Store) MarkSubmitted(ctx context.Context, annotatorID int, ttl time.Duration) {
	key := config.CacheKey.SessionSubmittedKey(annotatorID)
	if err := s.kv.Set(ctx, key, "1", ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("submitted latch write failed")
	}
}

// WasSubmitted reports whether the submitted latch is set.
func (s *Store) WasSubmitted(ctx context.Context, annotatorID int) bool {
	val, err := s.kv.Get(ctx, config.CacheKey.SessionSubmittedKey(annotatorID)).Result()
	if err != nil {
		return false
	}
	return val == "1"
}

// ClearSubmitted removes the submitted latch when the session ends.
func (s *Store) ClearSubmitted(ctx context.Context, annotatorID int) {
	s.kv.Del(ctx, config.CacheKey.SessionSubmittedKey(annotatorID))
}
