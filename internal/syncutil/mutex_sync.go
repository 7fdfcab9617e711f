//go:build !deadlock

// Package syncutil holds the mutex types used by the link. Plain sync
// mutexes are used unless the build sets -tags=deadlock, in which case
// github.com/sasha-s/go-deadlock reports lock-order inversions and stuck
// locks while the link's transmit and stats paths run.
package syncutil

import "sync"

// Mutex is a sync.Mutex in normal builds.
//
//nolint:gocritic // embedded to expose Lock/Unlock directly
type Mutex struct {
	sync.Mutex
}

// RWMutex is a sync.RWMutex in normal builds.
//
//nolint:gocritic // embedded to expose Lock/RLock directly
type RWMutex struct {
	sync.RWMutex
}
