package services

import "sync"

// ConversationLocker hands out one mutex per conversation id so that a
// conversation only ever runs one turn at a time, no matter which chat
// service the turn arrived through. The transcript and project services
// share a single instance for that reason.
type ConversationLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewConversationLocker creates an empty locker
func NewConversationLocker() *ConversationLocker {
	return &ConversationLocker{locks: make(map[string]*sync.Mutex)}
}

// lock blocks until the conversation is free and returns its unlock func
func (l *ConversationLocker) lock(conversationID string) func() {
	l.mu.Lock()
	lock, ok := l.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[conversationID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
