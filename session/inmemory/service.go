//
// Tencent is pleased to support the open source community by making trpc-botflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-botflow-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides an in-memory session service implementation.
package inmemory

import (
	"context"
	"sync"
	"time"

	"trpc.group/trpc-go/trpc-botflow-go/session"
)

// sessionWithTTL wraps a session with its expiration time.
type sessionWithTTL struct {
	session   *session.Session
	expiredAt time.Time
}

// isExpired checks if the given time has passed.
func isExpired(expiredAt time.Time) bool {
	return !expiredAt.IsZero() && time.Now().After(expiredAt)
}

var _ session.Service = (*SessionService)(nil)

// SessionService provides an in-memory implementation of session.Service.
// It is the default store for single-replica deployments and tests.
type SessionService struct {
	mu            sync.RWMutex
	bots          map[string]map[string]*sessionWithTTL
	opts          serviceOpts
	cleanupTicker *time.Ticker
	cleanupDone   chan struct{}
	closeOnce     sync.Once
}

type serviceOpts struct {
	sessionTTL      time.Duration
	cleanupInterval time.Duration
}

// ServiceOpt is the option for the in-memory session service.
type ServiceOpt func(*serviceOpts)

// WithSessionTTL sets the TTL applied to stored sessions. Zero means
// sessions never expire.
func WithSessionTTL(ttl time.Duration) ServiceOpt {
	return func(o *serviceOpts) {
		o.sessionTTL = ttl
	}
}

// WithCleanupInterval sets how often expired sessions are swept.
func WithCleanupInterval(interval time.Duration) ServiceOpt {
	return func(o *serviceOpts) {
		o.cleanupInterval = interval
	}
}

const defaultCleanupInterval = 5 * time.Minute

// NewSessionService creates a new in-memory session service.
func NewSessionService(options ...ServiceOpt) *SessionService {
	var opts serviceOpts
	for _, option := range options {
		option(&opts)
	}
	if opts.sessionTTL > 0 && opts.cleanupInterval <= 0 {
		opts.cleanupInterval = defaultCleanupInterval
	}

	s := &SessionService{
		bots:        make(map[string]map[string]*sessionWithTTL),
		opts:        opts,
		cleanupDone: make(chan struct{}),
	}
	if opts.cleanupInterval > 0 {
		s.cleanupTicker = time.NewTicker(opts.cleanupInterval)
		go s.cleanupLoop()
	}
	return s
}

// GetSession implements session.Service.
func (s *SessionService) GetSession(_ context.Context, botID, sessionID string) (*session.Session, error) {
	if botID == "" {
		return nil, session.ErrBotIDRequired
	}
	if sessionID == "" {
		return nil, session.ErrSessionIDRequired
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.bots[botID][sessionID]
	if !ok || isExpired(stored.expiredAt) {
		return nil, session.ErrSessionNotFound
	}
	return stored.session.Clone(), nil
}

// CreateSession implements session.Service.
func (s *SessionService) CreateSession(_ context.Context, sess *session.Session) error {
	if sess.BotID == "" {
		return session.ErrBotIDRequired
	}
	if sess.ID == "" {
		return session.ErrSessionIDRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store(sess)
	return nil
}

// UpdateSession implements session.Service.
func (s *SessionService) UpdateSession(_ context.Context, sess *session.Session) error {
	if sess.BotID == "" {
		return session.ErrBotIDRequired
	}
	if sess.ID == "" {
		return session.ErrSessionIDRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store(sess)
	return nil
}

// store writes a cloned session under its bot. Callers hold the write lock.
func (s *SessionService) store(sess *session.Session) {
	byID, ok := s.bots[sess.BotID]
	if !ok {
		byID = make(map[string]*sessionWithTTL)
		s.bots[sess.BotID] = byID
	}
	var expiredAt time.Time
	if s.opts.sessionTTL > 0 {
		expiredAt = time.Now().Add(s.opts.sessionTTL)
	}
	byID[sess.ID] = &sessionWithTTL{session: sess.Clone(), expiredAt: expiredAt}
}

// Close stops the cleanup loop.
func (s *SessionService) Close() error {
	s.closeOnce.Do(func() {
		if s.cleanupTicker != nil {
			s.cleanupTicker.Stop()
		}
		close(s.cleanupDone)
	})
	return nil
}

func (s *SessionService) cleanupLoop() {
	for {
		select {
		case <-s.cleanupTicker.C:
			s.sweep()
		case <-s.cleanupDone:
			return
		}
	}
}

// sweep removes expired sessions.
func (s *SessionService) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for botID, byID := range s.bots {
		for id, stored := range byID {
			if isExpired(stored.expiredAt) {
				delete(byID, id)
			}
		}
		if len(byID) == 0 {
			delete(s.bots, botID)
		}
	}
}
