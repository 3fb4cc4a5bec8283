package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// DraftKey returns the cache key holding the unsubmitted annotation rows
// for one (annotator, exam, image) combination.
func (r *CacheKeyStruct) DraftKey(annotatorID int, examCode string, imageID int) string {
	return fmt.Sprintf("annotator:%d:exam:%s:image:%d:draft", annotatorID, examCode, imageID)
}

// SessionKey returns the cache key for an annotator's active exam session snapshot.
func (r *CacheKeyStruct) SessionKey(annotatorID int) string {
	return fmt.Sprintf("annotator:%d:active_session", annotatorID)
}

// SessionClosingKey returns the key used as the reentrancy latch while a
// session is closing.
func (r *CacheKeyStruct) SessionClosingKey(annotatorID int) string {
	return fmt.Sprintf("annotator:%d:session_closing", annotatorID)
}

// SessionSubmittedKey returns the key latched after a successful submission,
// consumed by a 'submitted' close.
func (r *CacheKeyStruct) SessionSubmittedKey(annotatorID int) string {
	return fmt.Sprintf("annotator:%d:session_submitted", annotatorID)
}

// CompletedKey returns the key marking an exam as finished for an annotator.
func (r *CacheKeyStruct) CompletedKey(annotatorID int, examCode string) string {
	return fmt.Sprintf("annotator:%d:exam:%s:completed", annotatorID, examCode)
}

// ActiveSessionIndexKey returns the set holding annotator IDs with an
// active session, scanned by the timeout sweeper.
func (r *CacheKeyStruct) ActiveSessionIndexKey() string {
	return "active_sessions"
}

// MonitorChannel returns the Redis PubSub channel carrying live session
// events for the admin monitor.
func (r *CacheKeyStruct) MonitorChannel() string {
	return "liftapp:monitor"
}

var CacheKey = NewCacheKeyStruct()
