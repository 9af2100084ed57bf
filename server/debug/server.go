//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

// Package debug provides an HTTP server for debugging and testing agents:
// a REST API over sessions, an SSE run endpoint, and a WebSocket surface.
package debug

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/log"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/runner"
	"trpc.group/trpc-go/trpc-adk-go/session"
	sessioninmemory "trpc.group/trpc-go/trpc-adk-go/session/inmemory"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

const defaultUserID = "debug-user"

// Server exposes the debug HTTP endpoints. Internally it builds one runner
// per agent over a shared session service.
type Server struct {
	agents     map[string]agent.Agent
	discovered map[string]DiscoveredAgent
	router     *mux.Router

	mu       sync.RWMutex
	runners  map[string]*runner.Runner
	sessions map[string]string // session id -> agent id

	sessionSvc session.Service
	runnerOpts []runner.Option
	loader     AgentLoader
}

// Option configures the Server instance.
type Option func(*Server)

// WithSessionService provides a custom session storage backend. If omitted,
// an in-memory implementation is used.
func WithSessionService(svc session.Service) Option {
	return func(s *Server) { s.sessionSvc = svc }
}

// WithRunnerOptions appends runner options applied when the server lazily
// constructs a runner for an agent.
func WithRunnerOptions(opts ...runner.Option) Option {
	return func(s *Server) { s.runnerOpts = append(s.runnerOpts, opts...) }
}

// WithAgentLoader installs a loader resolving agents discovered from an
// agents directory; see WithAgentDir.
func WithAgentLoader(loader AgentLoader) Option {
	return func(s *Server) { s.loader = loader }
}

// New creates a debug server serving the given agents, keyed by id.
func New(agents map[string]agent.Agent, opts ...Option) *Server {
	s := &Server{
		agents:     agents,
		discovered: make(map[string]DiscoveredAgent),
		router:     mux.NewRouter(),
		runners:    make(map[string]*runner.Runner),
		sessions:   make(map[string]string),
	}
	if s.agents == nil {
		s.agents = make(map[string]agent.Agent)
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sessionSvc == nil {
		s.sessionSvc = sessioninmemory.NewSessionService()
	}
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler for the server, with CORS applied.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(s.router)
}

// ListenAndServe serves the debug API on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)

	s.router.HandleFunc("/api/agents", s.handleListAgents).Methods(http.MethodGet)
	s.router.HandleFunc("/list-apps", s.handleListApps).Methods(http.MethodGet)
	s.router.HandleFunc("/api/agents/{id}", s.handleGetAgent).Methods(http.MethodGet)

	s.router.HandleFunc("/api/sessions", s.handleCreateSession).Methods(http.MethodPost)
	s.router.HandleFunc("/api/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	s.router.HandleFunc("/api/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	s.router.HandleFunc("/api/sessions/{id}/messages", s.handleSendMessage).Methods(http.MethodPost)
	s.router.HandleFunc("/api/sessions/{id}/messages", s.handleListMessages).Methods(http.MethodGet)

	s.router.HandleFunc("/run_sse", s.handleRunSSE).Methods(http.MethodPost)

	s.router.HandleFunc("/", s.handleWebSocket)
}

// envelope is the uniform JSON response shape.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s *Server) writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(envelope{Success: true, Data: data}); err != nil {
		log.Errorf("Debug server: encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{
		Success: false,
		Error:   errType,
		Message: message,
	}); err != nil {
		log.Errorf("Debug server: encode error response: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   Version,
	})
}

// agentInfo is the wire representation of one agent.
type agentInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	infos := make([]agentInfo, 0, len(s.agents)+len(s.discovered))
	for id, a := range s.agents {
		info := a.Info()
		infos = append(infos, agentInfo{ID: id, Name: info.Name, Description: info.Description})
	}
	for id, meta := range s.discovered {
		if _, ok := s.agents[id]; ok {
			continue
		}
		infos = append(infos, agentInfo{ID: id, Name: meta.Name, Description: meta.Description})
	}
	s.mu.RUnlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	s.writeData(w, infos)
}

func (s *Server) handleListApps(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.agents)+len(s.discovered))
	for id := range s.agents {
		ids = append(ids, id)
	}
	for id := range s.discovered {
		if _, ok := s.agents[id]; !ok {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ids); err != nil {
		log.Errorf("Debug server: encode app list: %v", err)
	}
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a, err := s.lookupAgent(id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, model.ErrorTypeValidationError,
			fmt.Sprintf("agent %q not found", id))
		return
	}
	info := a.Info()
	subAgents := make([]string, 0, len(a.SubAgents()))
	for _, sub := range a.SubAgents() {
		subAgents = append(subAgents, sub.Info().Name)
	}
	tools := make([]string, 0, len(a.Tools()))
	for _, t := range a.Tools() {
		tools = append(tools, t.Declaration().Name)
	}
	s.writeData(w, map[string]any{
		"id":          id,
		"name":        info.Name,
		"description": info.Description,
		"subAgents":   subAgents,
		"tools":       tools,
	})
}

type createSessionRequest struct {
	AgentID string            `json:"agentId"`
	Config  map[string]string `json:"config,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, model.ErrorTypeValidationError, err.Error())
		return
	}
	defer r.Body.Close()
	if req.AgentID == "" {
		s.writeError(w, http.StatusBadRequest, model.ErrorTypeValidationError,
			"agentId is required")
		return
	}
	if _, err := s.lookupAgent(req.AgentID); err != nil {
		s.writeError(w, http.StatusNotFound, model.ErrorTypeValidationError,
			fmt.Sprintf("agent %q not found", req.AgentID))
		return
	}

	var state session.StateMap
	if len(req.Config) > 0 {
		state = make(session.StateMap, len(req.Config))
		for k, v := range req.Config {
			state[k] = []byte(v)
		}
	}
	key := session.Key{AppName: req.AgentID, UserID: defaultUserID, SessionID: uuid.NewString()}
	sess, err := s.sessionSvc.CreateSession(r.Context(), key, state)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, model.ErrorTypeSessionError, err.Error())
		return
	}
	s.mu.Lock()
	s.sessions[sess.ID] = req.AgentID
	s.mu.Unlock()

	s.writeData(w, map[string]any{
		"sessionId": sess.ID,
		"agentId":   req.AgentID,
		"createdAt": sess.CreatedAt.Format(time.RFC3339),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, agentID, err := s.loadSession(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, model.ErrorTypeSessionError, err.Error())
		return
	}
	s.writeData(w, map[string]any{
		"sessionId":  sess.ID,
		"agentId":    agentID,
		"eventCount": len(sess.Events),
		"createdAt":  sess.CreatedAt.Format(time.RFC3339),
		"updatedAt":  sess.UpdatedAt.Format(time.RFC3339),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	agentID, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		s.writeError(w, http.StatusNotFound, model.ErrorTypeSessionError, "session not found")
		return
	}
	key := session.Key{AppName: agentID, UserID: defaultUserID, SessionID: id}
	if err := s.sessionSvc.DeleteSession(r.Context(), key); err != nil {
		s.writeError(w, http.StatusInternalServerError, model.ErrorTypeSessionError, err.Error())
		return
	}
	s.writeData(w, map[string]any{"sessionId": id, "deleted": true})
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, model.ErrorTypeValidationError, err.Error())
		return
	}
	defer r.Body.Close()
	if req.Message == "" {
		s.writeError(w, http.StatusBadRequest, model.ErrorTypeValidationError,
			"message is required")
		return
	}

	final, err := s.runMessage(r.Context(), id, req.Message)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, model.ErrorTypeFlowError, err.Error())
		return
	}
	s.writeData(w, final)
}

// runMessage runs the session's agent with one message and returns the last
// complete event in wire form.
func (s *Server) runMessage(ctx context.Context, sessionID, message string) (map[string]any, error) {
	s.mu.RLock()
	agentID, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	rn, err := s.getRunner(agentID)
	if err != nil {
		return nil, err
	}

	// Detach from the request context so a dropped client does not abort
	// the run mid-persistence.
	runCtx := context.WithoutCancel(ctx)
	out, err := rn.Run(runCtx, defaultUserID, sessionID, model.NewUserMessage(message))
	if err != nil {
		return nil, err
	}
	var final map[string]any
	for evt := range out {
		// The completion marker carries nothing to show.
		if evt.Response != nil && evt.Response.Object == model.ObjectTypeRunnerCompletion {
			continue
		}
		if wireEvt := eventToWire(evt); wireEvt != nil {
			final = wireEvt
		}
	}
	if final == nil {
		return nil, errors.New("agent produced no response")
	}
	return final, nil
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, _, err := s.loadSession(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, model.ErrorTypeSessionError, err.Error())
		return
	}
	messages := make([]map[string]any, 0, len(sess.Events))
	for i := range sess.Events {
		evt := &sess.Events[i]
		if evt.Response == nil {
			continue
		}
		for _, choice := range evt.Response.Choices {
			if choice.Message.Content == "" {
				continue
			}
			messages = append(messages, map[string]any{
				"author":    evt.Author,
				"role":      choice.Message.Role,
				"content":   choice.Message.Content,
				"timestamp": evt.Timestamp.Format(time.RFC3339),
			})
		}
	}
	s.writeData(w, messages)
}

// runSSERequest is the /run_sse request body.
type runSSERequest struct {
	AppName    string        `json:"appName"`
	UserID     string        `json:"userId"`
	SessionID  string        `json:"sessionId"`
	NewMessage model.Message `json:"newMessage"`
}

func (s *Server) handleRunSSE(w http.ResponseWriter, r *http.Request) {
	var req runSSERequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, model.ErrorTypeValidationError, err.Error())
		return
	}
	defer r.Body.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, model.ErrorTypeFlowError,
			"streaming unsupported")
		return
	}

	if req.UserID == "" {
		req.UserID = defaultUserID
	}
	if req.NewMessage.Role == "" {
		req.NewMessage.Role = model.RoleUser
	}

	rn, err := s.getRunner(req.AppName)
	if err != nil {
		s.writeError(w, http.StatusNotFound, model.ErrorTypeValidationError, err.Error())
		return
	}

	// A missing or literal "undefined" session id asks for a fresh session.
	if req.SessionID == "" || req.SessionID == "undefined" {
		key := session.Key{AppName: req.AppName, UserID: req.UserID, SessionID: uuid.NewString()}
		sess, err := s.sessionSvc.CreateSession(r.Context(), key, nil)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, model.ErrorTypeSessionError, err.Error())
			return
		}
		req.SessionID = sess.ID
		s.mu.Lock()
		s.sessions[sess.ID] = req.AppName
		s.mu.Unlock()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	runCtx := context.WithoutCancel(r.Context())
	out, err := rn.Run(runCtx, req.UserID, req.SessionID, req.NewMessage)
	if err != nil {
		writeSSE(w, flusher, map[string]any{
			"type":    "error",
			"error":   model.ErrorTypeFlowError,
			"message": err.Error(),
		})
		writeSSE(w, flusher, map[string]any{"type": "end"})
		return
	}

	for evt := range out {
		wireEvt := eventToWire(evt)
		if wireEvt == nil {
			continue
		}
		writeSSE(w, flusher, wireEvt)
	}
	writeSSE(w, flusher, map[string]any{"type": "end"})
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("Debug server: marshal SSE event: %v", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

// eventToWire converts an event to its wire form, dropping bookkeeping
// events that carry nothing the client can show.
func eventToWire(evt *event.Event) map[string]any {
	if evt == nil || evt.Response == nil {
		return nil
	}
	rsp := evt.Response
	wireEvt := map[string]any{
		"id":           evt.ID,
		"invocationId": evt.InvocationID,
		"author":       evt.Author,
		"object":       rsp.Object,
		"timestamp":    evt.Timestamp.Format(time.RFC3339Nano),
	}
	if evt.Branch != "" {
		wireEvt["branch"] = evt.Branch
	}
	if rsp.Error != nil {
		wireEvt["type"] = "error"
		wireEvt["error"] = rsp.Error.Type
		wireEvt["message"] = rsp.Error.Message
		return wireEvt
	}
	if rsp.Object == model.ObjectTypeRunnerCompletion {
		wireEvt["done"] = true
		return wireEvt
	}
	if !rsp.IsValidContent() {
		return nil
	}
	wireEvt["partial"] = rsp.IsPartial
	choices := make([]map[string]any, 0, len(rsp.Choices))
	for _, choice := range rsp.Choices {
		wireChoice := map[string]any{}
		if rsp.IsPartial {
			wireChoice["delta"] = choice.Delta
		} else {
			wireChoice["message"] = choice.Message
		}
		choices = append(choices, wireChoice)
	}
	wireEvt["choices"] = choices
	return wireEvt
}

// getRunner lazily constructs the runner for an agent.
func (s *Server) getRunner(agentID string) (*runner.Runner, error) {
	s.mu.RLock()
	rn, ok := s.runners[agentID]
	s.mu.RUnlock()
	if ok {
		return rn, nil
	}

	a, err := s.lookupAgent(agentID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rn, ok := s.runners[agentID]; ok {
		return rn, nil
	}
	opts := append([]runner.Option{runner.WithSessionService(s.sessionSvc)}, s.runnerOpts...)
	rn = runner.NewRunner(agentID, a, opts...)
	s.runners[agentID] = rn
	return rn, nil
}

// lookupAgent resolves an agent by id, consulting the loader for agents
// discovered but not yet instantiated. The agents map is shared across
// requests, so both the read and the caching write hold s.mu.
func (s *Server) lookupAgent(id string) (agent.Agent, error) {
	s.mu.RLock()
	a, ok := s.agents[id]
	s.mu.RUnlock()
	if ok && a != nil {
		return a, nil
	}
	if s.loader == nil {
		return nil, fmt.Errorf("agent %q not found", id)
	}
	loaded, err := s.loader.Load(id)
	if err != nil {
		return nil, err
	}
	if loaded == nil {
		return nil, fmt.Errorf("agent %q not found", id)
	}
	s.mu.Lock()
	if cached, ok := s.agents[id]; ok && cached != nil {
		loaded = cached
	} else {
		s.agents[id] = loaded
	}
	s.mu.Unlock()
	return loaded, nil
}

func (s *Server) loadSession(ctx context.Context, id string) (*session.Session, string, error) {
	s.mu.RLock()
	agentID, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, "", session.ErrSessionNotFound
	}
	key := session.Key{AppName: agentID, UserID: defaultUserID, SessionID: id}
	sess, err := s.sessionSvc.GetSession(ctx, key)
	if err != nil {
		return nil, "", err
	}
	if sess == nil {
		return nil, "", session.ErrSessionNotFound
	}
	return sess, agentID, nil
}
