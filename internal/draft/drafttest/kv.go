// Package drafttest provides an in-memory fake of the Redis command
// subset the draft store uses, for unit tests that must not touch a real
// Redis instance.
package drafttest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// FakeKV is a map-backed stand-in for draft.Commands. TTLs are recorded
// but not enforced; tests drive expiry explicitly through session
// deadlines, not key eviction.
type FakeKV struct {
	mu sync.Mutex

	Values map[string]string
	Sets   map[string]map[string]bool
	TTLs   map[string]time.Duration

	// FailNext makes the next mutating call fail with the given error,
	// simulating an unavailable store.
	FailNext error
}

// NewFakeKV returns an empty fake.
func NewFakeKV() *FakeKV {
	return &FakeKV{
		Values: make(map[string]string),
		Sets:   make(map[string]map[string]bool),
		TTLs:   make(map[string]time.Duration),
	}
}

func (f *FakeKV) takeFailure() error {
	err := f.FailNext
	f.FailNext = nil
	return err
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func (f *FakeKV) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := f.Values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (f *FakeKV) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return redis.NewStatusResult("", err)
	}
	f.Values[key] = asString(value)
	f.TTLs[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *FakeKV) SetNX(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return redis.NewBoolResult(false, err)
	}
	if _, exists := f.Values[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	f.Values[key] = asString(value)
	f.TTLs[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *FakeKV) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return redis.NewIntResult(0, err)
	}
	var n int64
	for _, key := range keys {
		if _, ok := f.Values[key]; ok {
			delete(f.Values, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *FakeKV) SAdd(_ context.Context, key string, members ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return redis.NewIntResult(0, err)
	}
	set, ok := f.Sets[key]
	if !ok {
		set = make(map[string]bool)
		f.Sets[key] = set
	}
	var n int64
	for _, m := range members {
		s := asString(m)
		if !set[s] {
			set[s] = true
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *FakeKV) SRem(_ context.Context, key string, members ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return redis.NewIntResult(0, err)
	}
	set := f.Sets[key]
	var n int64
	for _, m := range members {
		s := asString(m)
		if set[s] {
			delete(set, s)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *FakeKV) SMembers(_ context.Context, key string) *redis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	members := make([]string, 0, len(f.Sets[key]))
	for m := range f.Sets[key] {
		members = append(members, m)
	}
	return redis.NewStringSliceResult(members, nil)
}
