//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package session provides the persistent container of one conversation.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/spaolacci/murmur3"

	"trpc.group/trpc-go/trpc-adk-go/event"
)

// ErrSessionNotFound is returned by mutating operations on absent sessions.
var ErrSessionNotFound = errors.New("session not found")

// State scope prefixes. App- and user-scoped values are merged read-only
// into the session state view under these prefixes.
const (
	StateAppPrefix  = "app:"
	StateUserPrefix = "user:"
)

// StateMap is the opaque key to value session state.
type StateMap map[string][]byte

// Clone returns a copy of the state map.
func (m StateMap) Clone() StateMap {
	if m == nil {
		return nil
	}
	cloned := make(StateMap, len(m))
	for k, v := range m {
		cloned[k] = append([]byte(nil), v...)
	}
	return cloned
}

// Session is one user and agent conversation: an ordered event log plus
// key-value state. Instances returned by a Service are copies; mutation
// happens only through the Service.
type Session struct {
	// ID is the session id.
	ID string `json:"id"`
	// AppName is the owning application.
	AppName string `json:"appName"`
	// UserID is the owning user.
	UserID string `json:"userId"`
	// State is the merged key-value state view.
	State StateMap `json:"state"`
	// Events is the ordered event log.
	Events []event.Event `json:"events"`
	// CreatedAt is the creation time.
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt is the last append or state change time.
	UpdatedAt time.Time `json:"updatedAt"`
}

// Hash returns a murmur3 hash of the event log, usable for cheap
// dirty-checking by summarizers and caches.
func (s *Session) Hash() uint64 {
	h := murmur3.New64()
	for i := range s.Events {
		h.Write([]byte(s.Events[i].ID))
	}
	return h.Sum64()
}

// Key addresses one session.
type Key struct {
	AppName   string
	UserID    string
	SessionID string
}

// CheckSessionKey validates a fully qualified session key.
func (k Key) CheckSessionKey() error {
	if err := k.CheckUserKey(); err != nil {
		return err
	}
	if k.SessionID == "" {
		return errors.New("session id is required")
	}
	return nil
}

// CheckUserKey validates the app and user parts of the key.
func (k Key) CheckUserKey() error {
	if k.AppName == "" {
		return errors.New("app name is required")
	}
	if k.UserID == "" {
		return errors.New("user id is required")
	}
	return nil
}

// UserKey addresses all sessions of one user.
type UserKey struct {
	AppName string
	UserID  string
}

// Option configures a session read.
type Option func(*Options)

// Options are session read options.
type Options struct {
	// EventNum limits the number of most recent events returned; zero
	// means all.
	EventNum int
	// EventTime drops events older than the given time when set.
	EventTime time.Time
}

// WithEventNum limits the number of most recent events returned.
func WithEventNum(n int) Option {
	return func(o *Options) { o.EventNum = n }
}

// WithEventTime drops events older than t.
func WithEventTime(t time.Time) Option {
	return func(o *Options) { o.EventTime = t }
}

// Service is the session store interface. All operations are atomic per
// session; concurrent mutation is serialized through AppendEvent and
// ApplyStateDelta.
type Service interface {
	// CreateSession creates a session. An empty SessionID asks the service
	// to generate one.
	CreateSession(ctx context.Context, key Key, state StateMap) (*Session, error)

	// GetSession returns a copy of the session, or nil when absent.
	GetSession(ctx context.Context, key Key, opts ...Option) (*Session, error)

	// ListSessions returns copies of all sessions of a user.
	ListSessions(ctx context.Context, userKey UserKey) ([]*Session, error)

	// DeleteSession removes the session. Deleting an absent session is
	// not an error.
	DeleteSession(ctx context.Context, key Key) error

	// AppendEvent appends an event to the session log and applies the
	// event's state delta atomically.
	AppendEvent(ctx context.Context, key Key, e *event.Event) error

	// ApplyStateDelta applies state mutations without appending an event.
	ApplyStateDelta(ctx context.Context, key Key, delta StateMap) error

	// UpdateAppState merges app-scoped state visible to every session of
	// the app under the "app:" prefix.
	UpdateAppState(ctx context.Context, appName string, state StateMap) error

	// UpdateUserState merges user-scoped state visible to every session of
	// the user under the "user:" prefix.
	UpdateUserState(ctx context.Context, userKey UserKey, state StateMap) error

	// Close releases resources held by the service.
	Close() error
}
