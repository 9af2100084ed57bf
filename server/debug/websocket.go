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
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"trpc.group/trpc-go/trpc-adk-go/log"
	"trpc.group/trpc-go/trpc-adk-go/model"
)

// WebSocket frame types.
const (
	wsTypeJoinSession     = "join_session"
	wsTypeSendMessage     = "send_message"
	wsTypePing            = "ping"
	wsTypeJoined          = "joined"
	wsTypeMessageResponse = "message_response"
	wsTypePong            = "pong"
	wsTypeError           = "error"
)

var upgrader = websocket.Upgrader{
	// The debug surface accepts any origin; it is not meant for production.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsFrame is the bidirectional WebSocket message shape.
type wsFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Content   string `json:"content,omitempty"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.NotFound(w, r)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("Debug server: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	// The connection tracks one joined session at a time.
	joined := ""
	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debugf("Debug server: websocket read: %v", err)
			}
			return
		}
		switch frame.Type {
		case wsTypePing:
			s.writeFrame(conn, wsFrame{Type: wsTypePong})
		case wsTypeJoinSession:
			joined = s.handleJoinSession(r.Context(), conn, frame)
		case wsTypeSendMessage:
			s.handleWSMessage(r.Context(), conn, frame, joined)
		default:
			s.writeFrame(conn, wsFrame{
				Type:    wsTypeError,
				Error:   model.ErrorTypeValidationError,
				Message: "unknown frame type: " + frame.Type,
			})
		}
	}
}

func (s *Server) handleJoinSession(ctx context.Context, conn *websocket.Conn, frame wsFrame) string {
	if frame.SessionID == "" {
		s.writeFrame(conn, wsFrame{
			Type:    wsTypeError,
			Error:   model.ErrorTypeValidationError,
			Message: "sessionId is required",
		})
		return ""
	}
	sess, agentID, err := s.loadSession(ctx, frame.SessionID)
	if err != nil {
		s.writeFrame(conn, wsFrame{
			Type:    wsTypeError,
			Error:   model.ErrorTypeSessionError,
			Message: err.Error(),
		})
		return ""
	}
	s.writeFrame(conn, wsFrame{
		Type:      wsTypeJoined,
		SessionID: sess.ID,
		Data: map[string]any{
			"agentId":    agentID,
			"eventCount": len(sess.Events),
		},
	})
	return sess.ID
}

func (s *Server) handleWSMessage(ctx context.Context, conn *websocket.Conn, frame wsFrame, joined string) {
	sessionID := frame.SessionID
	if sessionID == "" {
		sessionID = joined
	}
	if sessionID == "" {
		s.writeFrame(conn, wsFrame{
			Type:    wsTypeError,
			Error:   model.ErrorTypeValidationError,
			Message: "sessionId is required; join a session first",
		})
		return
	}
	if frame.Content == "" {
		s.writeFrame(conn, wsFrame{
			Type:    wsTypeError,
			Error:   model.ErrorTypeValidationError,
			Message: "content is required",
		})
		return
	}

	final, err := s.runMessage(ctx, sessionID, frame.Content)
	if err != nil {
		s.writeFrame(conn, wsFrame{
			Type:    wsTypeError,
			Error:   model.ErrorTypeFlowError,
			Message: err.Error(),
		})
		return
	}
	s.writeFrame(conn, wsFrame{
		Type:      wsTypeMessageResponse,
		SessionID: sessionID,
		Data:      final,
	})
}

func (s *Server) writeFrame(conn *websocket.Conn, frame wsFrame) {
	if err := conn.WriteJSON(frame); err != nil {
		log.Debugf("Debug server: websocket write: %v", err)
	}
}
