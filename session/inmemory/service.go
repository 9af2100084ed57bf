//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides the reference in-memory session service.
package inmemory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/session"
)

// ServiceOpt configures the in-memory service.
type ServiceOpt func(*Service)

// WithSessionTTL evicts sessions idle longer than ttl. Zero disables
// eviction.
func WithSessionTTL(ttl time.Duration) ServiceOpt {
	return func(s *Service) { s.ttl = ttl }
}

// WithCleanupInterval sets how often expired sessions are collected.
func WithCleanupInterval(interval time.Duration) ServiceOpt {
	return func(s *Service) { s.cleanupInterval = interval }
}

type sessionEntry struct {
	mu      sync.Mutex
	session *session.Session
}

type appData struct {
	state    session.StateMap
	users    map[string]session.StateMap         // user id -> user state
	sessions map[string]map[string]*sessionEntry // user id -> session id -> entry
}

// Service is an in-memory session.Service.
type Service struct {
	mu              sync.RWMutex
	apps            map[string]*appData
	ttl             time.Duration
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once
}

var _ session.Service = (*Service)(nil)

// NewSessionService creates an in-memory session service.
func NewSessionService(opts ...ServiceOpt) *Service {
	s := &Service{
		apps:            make(map[string]*appData),
		cleanupInterval: time.Minute,
		stopCleanup:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ttl > 0 {
		go s.cleanupLoop()
	}
	return s
}

func (s *Service) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

// evictExpired never holds s.mu while taking an entry lock: readers take
// entry.mu before s.mu (via copyOut), so nesting the other way would
// deadlock. Candidates are collected first, checked unlocked, and removed
// under s.mu only if still the same entry.
func (s *Service) evictExpired() {
	deadline := time.Now().Add(-s.ttl)

	type candidate struct {
		sessions map[string]*sessionEntry
		id       string
		entry    *sessionEntry
	}
	var candidates []candidate
	s.mu.RLock()
	for _, app := range s.apps {
		for _, sessions := range app.sessions {
			for id, entry := range sessions {
				candidates = append(candidates, candidate{sessions, id, entry})
			}
		}
	}
	s.mu.RUnlock()

	for _, c := range candidates {
		c.entry.mu.Lock()
		expired := c.entry.session.UpdatedAt.Before(deadline)
		c.entry.mu.Unlock()
		if !expired {
			continue
		}
		s.mu.Lock()
		if c.sessions[c.id] == c.entry {
			delete(c.sessions, c.id)
		}
		s.mu.Unlock()
	}
}

// ensureApp returns the app bucket, creating it under the write lock when
// absent.
func (s *Service) ensureApp(appName string) *appData {
	s.mu.RLock()
	app, ok := s.apps[appName]
	s.mu.RUnlock()
	if ok {
		return app
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if app, ok = s.apps[appName]; ok {
		return app
	}
	app = &appData{
		state:    make(session.StateMap),
		users:    make(map[string]session.StateMap),
		sessions: make(map[string]map[string]*sessionEntry),
	}
	s.apps[appName] = app
	return app
}

func (s *Service) lookup(key session.Key) (*appData, *sessionEntry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[key.AppName]
	if !ok {
		return nil, nil
	}
	sessions, ok := app.sessions[key.UserID]
	if !ok {
		return app, nil
	}
	return app, sessions[key.SessionID]
}

// CreateSession implements session.Service.
func (s *Service) CreateSession(
	ctx context.Context, key session.Key, state session.StateMap,
) (*session.Session, error) {
	if key.SessionID == "" {
		key.SessionID = uuid.NewString()
	}
	if err := key.CheckSessionKey(); err != nil {
		return nil, err
	}
	app := s.ensureApp(key.AppName)

	now := time.Now()
	sess := &session.Session{
		ID:        key.SessionID,
		AppName:   key.AppName,
		UserID:    key.UserID,
		State:     state.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if sess.State == nil {
		sess.State = make(session.StateMap)
	}

	s.mu.Lock()
	sessions, ok := app.sessions[key.UserID]
	if !ok {
		sessions = make(map[string]*sessionEntry)
		app.sessions[key.UserID] = sessions
	}
	sessions[key.SessionID] = &sessionEntry{session: sess}
	s.mu.Unlock()

	return s.copyOut(app, key.UserID, sess, session.Options{}), nil
}

// GetSession implements session.Service.
func (s *Service) GetSession(
	ctx context.Context, key session.Key, opts ...session.Option,
) (*session.Session, error) {
	if err := key.CheckSessionKey(); err != nil {
		return nil, err
	}
	var o session.Options
	for _, opt := range opts {
		opt(&o)
	}
	app, entry := s.lookup(key)
	if entry == nil {
		return nil, nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return s.copyOut(app, key.UserID, entry.session, o), nil
}

// copyOut snapshots a session, merging app- and user-scoped state under
// their prefixes. Callers hold the entry lock when events may be mutated
// concurrently.
func (s *Service) copyOut(
	app *appData, userID string, sess *session.Session, o session.Options,
) *session.Session {
	out := &session.Session{
		ID:        sess.ID,
		AppName:   sess.AppName,
		UserID:    sess.UserID,
		State:     sess.State.Clone(),
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
	}
	if out.State == nil {
		out.State = make(session.StateMap)
	}

	s.mu.RLock()
	for k, v := range app.state {
		out.State[session.StateAppPrefix+k] = append([]byte(nil), v...)
	}
	if userState, ok := app.users[userID]; ok {
		for k, v := range userState {
			out.State[session.StateUserPrefix+k] = append([]byte(nil), v...)
		}
	}
	s.mu.RUnlock()

	events := sess.Events
	if !o.EventTime.IsZero() {
		idx := 0
		for ; idx < len(events); idx++ {
			if !events[idx].Timestamp.Before(o.EventTime) {
				break
			}
		}
		events = events[idx:]
	}
	if o.EventNum > 0 && len(events) > o.EventNum {
		events = events[len(events)-o.EventNum:]
	}
	out.Events = make([]event.Event, len(events))
	copy(out.Events, events)
	return out
}

// ListSessions implements session.Service.
func (s *Service) ListSessions(
	ctx context.Context, userKey session.UserKey,
) ([]*session.Session, error) {
	key := session.Key{AppName: userKey.AppName, UserID: userKey.UserID}
	if err := key.CheckUserKey(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	app, ok := s.apps[userKey.AppName]
	var entries []*sessionEntry
	if ok {
		for _, entry := range app.sessions[userKey.UserID] {
			entries = append(entries, entry)
		}
	}
	s.mu.RUnlock()

	result := make([]*session.Session, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		result = append(result, s.copyOut(app, userKey.UserID, entry.session, session.Options{}))
		entry.mu.Unlock()
	}
	return result, nil
}

// DeleteSession implements session.Service.
func (s *Service) DeleteSession(ctx context.Context, key session.Key) error {
	if err := key.CheckSessionKey(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if app, ok := s.apps[key.AppName]; ok {
		if sessions, ok := app.sessions[key.UserID]; ok {
			delete(sessions, key.SessionID)
		}
	}
	return nil
}

// AppendEvent implements session.Service. Appends are serialized per
// session; the event's state delta is applied atomically with the append.
func (s *Service) AppendEvent(ctx context.Context, key session.Key, e *event.Event) error {
	if err := key.CheckSessionKey(); err != nil {
		return err
	}
	if e == nil {
		return nil
	}
	_, entry := s.lookup(key)
	if entry == nil {
		return session.ErrSessionNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.session.Events = append(entry.session.Events, *e.Clone())
	s.applyDeltaLocked(entry.session, key, e.StateDelta)
	entry.session.UpdatedAt = time.Now()
	return nil
}

// ApplyStateDelta implements session.Service.
func (s *Service) ApplyStateDelta(
	ctx context.Context, key session.Key, delta session.StateMap,
) error {
	if err := key.CheckSessionKey(); err != nil {
		return err
	}
	_, entry := s.lookup(key)
	if entry == nil {
		return session.ErrSessionNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	s.applyDeltaLocked(entry.session, key, delta)
	entry.session.UpdatedAt = time.Now()
	return nil
}

// applyDeltaLocked routes prefixed keys to their scope and the rest into
// the session state.
func (s *Service) applyDeltaLocked(
	sess *session.Session, key session.Key, delta map[string][]byte,
) {
	for k, v := range delta {
		switch {
		case strings.HasPrefix(k, session.StateAppPrefix):
			s.updateAppStateLocked(key.AppName, strings.TrimPrefix(k, session.StateAppPrefix), v)
		case strings.HasPrefix(k, session.StateUserPrefix):
			s.updateUserStateLocked(key, strings.TrimPrefix(k, session.StateUserPrefix), v)
		default:
			if sess.State == nil {
				sess.State = make(session.StateMap)
			}
			sess.State[k] = append([]byte(nil), v...)
		}
	}
}

func (s *Service) updateAppStateLocked(appName, k string, v []byte) {
	app := s.ensureApp(appName)
	s.mu.Lock()
	app.state[k] = append([]byte(nil), v...)
	s.mu.Unlock()
}

func (s *Service) updateUserStateLocked(key session.Key, k string, v []byte) {
	app := s.ensureApp(key.AppName)
	s.mu.Lock()
	userState, ok := app.users[key.UserID]
	if !ok {
		userState = make(session.StateMap)
		app.users[key.UserID] = userState
	}
	userState[k] = append([]byte(nil), v...)
	s.mu.Unlock()
}

// UpdateAppState implements session.Service.
func (s *Service) UpdateAppState(
	ctx context.Context, appName string, state session.StateMap,
) error {
	app := s.ensureApp(appName)
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range state {
		app.state[k] = append([]byte(nil), v...)
	}
	return nil
}

// UpdateUserState implements session.Service.
func (s *Service) UpdateUserState(
	ctx context.Context, userKey session.UserKey, state session.StateMap,
) error {
	key := session.Key{AppName: userKey.AppName, UserID: userKey.UserID}
	if err := key.CheckUserKey(); err != nil {
		return err
	}
	app := s.ensureApp(userKey.AppName)
	s.mu.Lock()
	defer s.mu.Unlock()
	userState, ok := app.users[userKey.UserID]
	if !ok {
		userState = make(session.StateMap)
		app.users[userKey.UserID] = userState
	}
	for k, v := range state {
		userState[k] = append([]byte(nil), v...)
	}
	return nil
}

// Close implements session.Service.
func (s *Service) Close() error {
	s.closeOnce.Do(func() { close(s.stopCleanup) })
	return nil
}
