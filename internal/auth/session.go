package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore persists the opaque session identifiers behind refresh
// tokens in a TTL-keyed KV store, per spec.md section 3's "Session...
// stored in a fast TTL-keyed KV store" and section 4.5's session
// lifecycle. Keys are of the form "session:<id>" -> owning user id,
// mirroring original_source's _store_session/_get_session/_delete_session.
type SessionStore struct {
	rdb    *redis.Client
	prefix string
}

// NewSessionStore wraps a redis.Client for session bookkeeping.
func NewSessionStore(rdb *redis.Client) *SessionStore {
	return &SessionStore{rdb: rdb, prefix: "session:"}
}

func (s *SessionStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// Create writes a new session entry with the given TTL.
func (s *SessionStore) Create(ctx context.Context, sessionID, userID string, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.key(sessionID), userID, ttl).Err()
}

// Get returns the owning user id for sessionID, or ("", false) if the
// session does not exist (expired or never created).
func (s *SessionStore) Get(ctx context.Context, sessionID string) (string, bool) {
	userID, err := s.rdb.Get(ctx, s.key(sessionID)).Result()
	if err != nil {
		return "", false
	}
	return userID, true
}

// Extend re-writes the session's TTL alongside the (unchanged) owning
// user id, used on refresh per spec.md section 4.5.
func (s *SessionStore) Extend(ctx context.Context, sessionID, userID string, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.key(sessionID), userID, ttl).Err()
}

// Delete removes a session entry; subsequent Get calls report not-found
// even if the refresh token's signature remains valid.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, s.key(sessionID)).Err()
}
