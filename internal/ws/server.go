package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// wsConn adapts a websocket connection to the hub's Conn interface.
type wsConn struct {
	c *websocket.Conn
}

func (w wsConn) Send(ctx context.Context, msg any) error {
	return wsjson.Write(ctx, w.c, msg)
}

// Server exposes the hub over a WebSocket endpoint. Clients register by
// connecting, then send subscribe/unsubscribe messages naming channels
// such as "job:{id}" or "job:*".
type Server struct {
	hub *Hub
	log *zap.Logger
}

func NewServer(hub *Hub, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{hub: hub, log: log}
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) HandleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "goodbye")

	connID := s.hub.Register(wsConn{c: conn})
	defer s.hub.Unregister(connID)

	s.handleMessages(r.Context(), conn, connID)
}

func (s *Server) handleMessages(ctx context.Context, conn *websocket.Conn, connID string) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				s.log.Debug("websocket read ended", zap.String("connection_id", connID), zap.Error(err))
			}
			return
		}

		var base BaseMessage
		if err := json.Unmarshal(data, &base); err != nil {
			s.log.Warn("invalid message format", zap.String("connection_id", connID), zap.Error(err))
			continue
		}

		switch base.Type {
		case "subscribe":
			var msg SubscribeMessage
			if err := json.Unmarshal(data, &msg); err != nil || msg.Channel == "" {
				continue
			}
			s.hub.Subscribe(connID, msg.Channel)
			wsjson.Write(ctx, conn, SubscriptionAck{Type: "subscribed", Channel: msg.Channel})

		case "unsubscribe":
			var msg SubscribeMessage
			if err := json.Unmarshal(data, &msg); err != nil || msg.Channel == "" {
				continue
			}
			s.hub.Unsubscribe(connID, msg.Channel)
			wsjson.Write(ctx, conn, SubscriptionAck{Type: "unsubscribed", Channel: msg.Channel})

		default:
			s.log.Warn("unknown message type", zap.String("type", base.Type))
		}
	}
}
