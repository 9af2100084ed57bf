//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package debug

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-adk-go/agent"
	"trpc.group/trpc-go/trpc-adk-go/event"
	"trpc.group/trpc-go/trpc-adk-go/model"
	"trpc.group/trpc-go/trpc-adk-go/tool"
)

// echoAgent answers every message with a fixed reply.
type echoAgent struct {
	name  string
	reply string
}

func (a *echoAgent) Info() agent.Info                { return agent.Info{Name: a.name, Description: "test agent"} }
func (a *echoAgent) Tools() []tool.Tool              { return nil }
func (a *echoAgent) SubAgents() []agent.Agent        { return nil }
func (a *echoAgent) FindSubAgent(string) agent.Agent { return nil }

func (a *echoAgent) Run(ctx context.Context, invocation *agent.Invocation) (<-chan *event.Event, error) {
	ch := make(chan *event.Event, 4)
	go func() {
		defer close(ch)
		evt := event.New(invocation.InvocationID, a.name,
			event.WithResponse(&model.Response{
				Object:  model.ObjectTypeChatCompletion,
				Done:    true,
				Choices: []model.Choice{{Message: model.NewAssistantMessage(a.reply)}},
			}))
		agent.EmitEvent(ctx, invocation, ch, evt)
	}()
	return ch, nil
}

func newTestServer() *Server {
	return New(map[string]agent.Agent{
		"echo": &echoAgent{name: "echo", reply: "you rang"},
	})
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var env envelope
	if strings.Contains(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func createTestSession(t *testing.T, s *Server) string {
	t.Helper()
	rec, env := doJSON(t, s.Handler(), http.MethodPost, "/api/sessions",
		map[string]string{"agentId": "echo"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)
	data := env.Data.(map[string]any)
	id, _ := data["sessionId"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestServer_Health(t *testing.T) {
	s := newTestServer()
	rec, env := doJSON(t, s.Handler(), http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	data := env.Data.(map[string]any)
	assert.Equal(t, "ok", data["status"])
}

func TestServer_ListAgents(t *testing.T) {
	s := newTestServer()

	rec, env := doJSON(t, s.Handler(), http.MethodGet, "/api/agents", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)
	agents := env.Data.([]any)
	require.Len(t, agents, 1)
	first := agents[0].(map[string]any)
	assert.Equal(t, "echo", first["id"])

	rec, _ = doJSON(t, s.Handler(), http.MethodGet, "/list-apps", nil)
	var ids []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ids))
	assert.Equal(t, []string{"echo"}, ids)
}

func TestServer_GetAgent(t *testing.T) {
	s := newTestServer()

	rec, env := doJSON(t, s.Handler(), http.MethodGet, "/api/agents/echo", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	data := env.Data.(map[string]any)
	assert.Equal(t, "echo", data["name"])

	rec, env = doJSON(t, s.Handler(), http.MethodGet, "/api/agents/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
}

func TestServer_SessionLifecycle(t *testing.T) {
	s := newTestServer()
	id := createTestSession(t, s)

	rec, env := doJSON(t, s.Handler(), http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	data := env.Data.(map[string]any)
	assert.Equal(t, "echo", data["agentId"])

	rec, env = doJSON(t, s.Handler(), http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	rec, _ = doJSON(t, s.Handler(), http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_CreateSessionValidation(t *testing.T) {
	s := newTestServer()

	rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/api/sessions", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, s.Handler(), http.MethodPost, "/api/sessions",
		map[string]string{"agentId": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_SendMessage(t *testing.T) {
	s := newTestServer()
	id := createTestSession(t, s)

	rec, env := doJSON(t, s.Handler(), http.MethodPost, "/api/sessions/"+id+"/messages",
		map[string]string{"message": "hello"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)

	data := env.Data.(map[string]any)
	choices := data["choices"].([]any)
	require.Len(t, choices, 1)
	msg := choices[0].(map[string]any)["message"].(map[string]any)
	assert.Equal(t, "you rang", msg["content"])

	// The conversation is listed afterwards.
	rec, env = doJSON(t, s.Handler(), http.MethodGet, "/api/sessions/"+id+"/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	messages := env.Data.([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].(map[string]any)["author"])
	assert.Equal(t, "echo", messages[1].(map[string]any)["author"])
}

func TestServer_RunSSE(t *testing.T) {
	s := newTestServer()

	body := map[string]any{
		"appName":    "echo",
		"sessionId":  "undefined",
		"newMessage": map[string]any{"role": "user", "content": "hi"},
	}
	rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/run_sse", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")

	var payloads []map[string]any
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var payload map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload))
		payloads = append(payloads, payload)
	}
	require.NotEmpty(t, payloads)

	var sawReply bool
	for _, p := range payloads {
		if choices, ok := p["choices"].([]any); ok {
			msg := choices[0].(map[string]any)["message"].(map[string]any)
			if msg["content"] == "you rang" {
				sawReply = true
			}
		}
	}
	assert.True(t, sawReply)
	assert.Equal(t, "end", payloads[len(payloads)-1]["type"])
}

func TestServer_WebSocket(t *testing.T) {
	s := newTestServer()
	id := createTestSession(t, s)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var frame wsFrame
	require.NoError(t, conn.WriteJSON(wsFrame{Type: "ping"}))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "pong", frame.Type)

	require.NoError(t, conn.WriteJSON(wsFrame{Type: "join_session", SessionID: id}))
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, "joined", frame.Type)
	assert.Equal(t, id, frame.SessionID)

	require.NoError(t, conn.WriteJSON(wsFrame{Type: "send_message", Content: "hello"}))
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, "message_response", frame.Type)
	data := frame.Data.(map[string]any)
	choices := data["choices"].([]any)
	msg := choices[0].(map[string]any)["message"].(map[string]any)
	assert.Equal(t, "you rang", msg["content"])
}
