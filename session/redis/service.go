//
// Tencent is pleased to support the open source community by making trpc-botflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-botflow-go is licensed under the Apache License Version 2.0.
//
//

// Package redis provides a Redis-backed session service implementation for
// multi-replica deployments.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"trpc.group/trpc-go/trpc-botflow-go/session"
)

var _ session.Service = (*SessionService)(nil)

const defaultSessionTTL = 7 * 24 * time.Hour

// SessionService stores sessions as JSON values under per-session keys.
type SessionService struct {
	client redis.UniversalClient
	opts   serviceOpts
}

type serviceOpts struct {
	url        string
	client     redis.UniversalClient
	sessionTTL time.Duration
	keyPrefix  string
}

// ServiceOpt is the option for the Redis session service.
type ServiceOpt func(*serviceOpts)

// WithRedisURL sets the Redis connection URL, e.g. redis://127.0.0.1:6379.
func WithRedisURL(url string) ServiceOpt {
	return func(o *serviceOpts) {
		o.url = url
	}
}

// WithClient supplies a pre-built client, overriding WithRedisURL.
func WithClient(client redis.UniversalClient) ServiceOpt {
	return func(o *serviceOpts) {
		o.client = client
	}
}

// WithSessionTTL sets the key TTL. Zero keeps the default of seven days.
func WithSessionTTL(ttl time.Duration) ServiceOpt {
	return func(o *serviceOpts) {
		o.sessionTTL = ttl
	}
}

// WithKeyPrefix overrides the default "botflow:sess" key prefix.
func WithKeyPrefix(prefix string) ServiceOpt {
	return func(o *serviceOpts) {
		o.keyPrefix = prefix
	}
}

// NewSessionService creates a Redis-backed session service.
func NewSessionService(options ...ServiceOpt) (*SessionService, error) {
	opts := serviceOpts{
		sessionTTL: defaultSessionTTL,
		keyPrefix:  "botflow:sess",
	}
	for _, option := range options {
		option(&opts)
	}

	client := opts.client
	if client == nil {
		if opts.url == "" {
			return nil, errors.New("redis url or client is required")
		}
		redisOpts, err := redis.ParseURL(opts.url)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		client = redis.NewClient(redisOpts)
	}
	return &SessionService{client: client, opts: opts}, nil
}

func (s *SessionService) key(botID, sessionID string) string {
	return fmt.Sprintf("%s:%s:%s", s.opts.keyPrefix, botID, sessionID)
}

// GetSession implements session.Service.
func (s *SessionService) GetSession(ctx context.Context, botID, sessionID string) (*session.Session, error) {
	if botID == "" {
		return nil, session.ErrBotIDRequired
	}
	if sessionID == "" {
		return nil, session.ErrSessionIDRequired
	}
	data, err := s.client.Get(ctx, s.key(botID, sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &sess, nil
}

// CreateSession implements session.Service.
func (s *SessionService) CreateSession(ctx context.Context, sess *session.Session) error {
	return s.put(ctx, sess)
}

// UpdateSession implements session.Service.
func (s *SessionService) UpdateSession(ctx context.Context, sess *session.Session) error {
	return s.put(ctx, sess)
}

func (s *SessionService) put(ctx context.Context, sess *session.Session) error {
	if sess.BotID == "" {
		return session.ErrBotIDRequired
	}
	if sess.ID == "" {
		return session.ErrSessionIDRequired
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sess.BotID, sess.ID), data, s.opts.sessionTTL).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *SessionService) Close() error {
	return s.client.Close()
}
