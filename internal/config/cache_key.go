package config

import (
	"fmt"

	"github.com/google/uuid"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserSessionKey returns the cache key for a user's login session.
func (r *CacheKeyStruct) UserSessionKey(userID int) string {
	return fmt.Sprintf("login:%d", userID)
}

// QuizSnapshotKey returns the cache key for a quiz's frozen snapshot
// (settings + questions + options) served to the attempt flow.
func (r *CacheKeyStruct) QuizSnapshotKey(quizID uuid.UUID) string {
	return fmt.Sprintf("quiz:%s:snapshot", quizID)
}

// SweepLockKey returns the key used as a short-lived lock so only one
// replica runs the expiry sweep at a time.
func (r *CacheKeyStruct) SweepLockKey() string {
	return "attempts:sweep_lock"
}

var CacheKey = NewCacheKeyStruct()
