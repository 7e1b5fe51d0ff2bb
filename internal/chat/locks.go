// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package chat

import "sync"

// channelLocks hands out one mutex per channel id so membership mutations
// on the same channel serialize while distinct channels proceed in
// parallel. Entries are refcounted and dropped when the last holder
// releases.
type channelLocks struct {
	mu    sync.Mutex
	locks map[string]*channelLock
}

type channelLock struct {
	mu   sync.Mutex
	refs int
}

func newChannelLocks() channelLocks {
	return channelLocks{locks: make(map[string]*channelLock)}
}

// lock acquires the mutex for id and returns its release func.
func (l *channelLocks) lock(id string) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &channelLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
