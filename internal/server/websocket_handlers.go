package server

import (
	"encoding/json"

	"parley/internal/events"
	"parley/internal/featureflags"
	"parley/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// clientFrame is a control message sent by a connected client. Only
// subscription management flows upstream; chats are mutated over HTTP.
type clientFrame struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

type ackFrame struct {
	Type  string `json:"type"`
	Topic string `json:"topic,omitempty"`
	Error string `json:"error,omitempty"`
}

// WebsocketHandler upgrades the connection and pumps subscription events to
// the client until either side closes.
func (s *Server) WebsocketHandler() fiber.Handler {
	upgrade := websocket.New(func(conn *websocket.Conn) {
		userID, ok := conn.Locals("userID").(uint)
		if !ok {
			_ = conn.Close()
			return
		}
		ticket, _ := conn.Locals("wsTicket").(string)
		defer s.consumeWSTicket(ticket)

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			middleware.Logger.Warn("websocket registration rejected", "user_id", userID, "error", err.Error())
			_ = conn.WriteJSON(ackFrame{Type: "error", Error: err.Error()})
			_ = conn.Close()
			return
		}

		middleware.ActiveWebSockets.Inc()
		defer middleware.ActiveWebSockets.Dec()

		client.IncomingHandler = s.handleClientFrame

		go client.WritePump()
		client.ReadPump()
	})

	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if s.hub == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "realtime events unavailable")
		}
		userID, _ := c.Locals("userID").(uint)
		if !s.flags.Enabled(featureflags.FlagRealtime, userID) {
			return fiber.NewError(fiber.StatusServiceUnavailable, "realtime events disabled")
		}
		return upgrade(c)
	}
}

// handleClientFrame processes one inbound control frame. Malformed frames are
// answered with an error ack rather than dropping the connection.
func (s *Server) handleClientFrame(client *events.Client, raw []byte) {
	var frame clientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		client.TrySend(mustMarshal(ackFrame{Type: "error", Error: "invalid frame"}))
		return
	}

	switch frame.Type {
	case "subscribe", "unsubscribe":
		if !events.ValidTopic(frame.Topic) {
			client.TrySend(mustMarshal(ackFrame{Type: "error", Topic: frame.Topic, Error: "unknown topic"}))
			return
		}
		topic := events.Topic(frame.Topic)
		if frame.Type == "subscribe" {
			client.Subscribe(topic)
			client.TrySend(mustMarshal(ackFrame{Type: "subscribed", Topic: frame.Topic}))
		} else {
			client.Unsubscribe(topic)
			client.TrySend(mustMarshal(ackFrame{Type: "unsubscribed", Topic: frame.Topic}))
		}
	case "ping":
		client.TrySend(mustMarshal(ackFrame{Type: "pong"}))
	default:
		client.TrySend(mustMarshal(ackFrame{Type: "error", Error: "unknown frame type"}))
	}
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
