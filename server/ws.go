package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"mixdown/logger"
	"mixdown/model"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventsHandler upgrades GET /ws/events?v=1&topics=document,transport
// into a push stream of change events.
func (h *APIHandler) EventsHandler(w http.ResponseWriter, r *http.Request) {
	if v := r.URL.Query().Get("v"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || checkVersion(n) != nil {
			writeError(w, model.NewError(model.ErrIncompatibleVersion,
				"protocol version %q is not supported, this engine speaks %d", v, ProtocolVersion))
			return
		}
	}

	if h.jwtSecret != "" {
		token := r.URL.Query().Get("token")
		if _, err := h.validateToken(token); err != nil {
			writeError(w, err)
			return
		}
	}

	topics := parseTopics(r.URL.Query().Get("topics"))
	if len(topics) == 0 {
		writeError(w, model.NewError(model.ErrProtocol, "no valid topics requested"))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	sub := h.hub.NewSubscriber(topics)
	h.hub.Register(sub)
	logger.Info("event stream opened",
		logger.Uint64("streamId", sub.StreamID),
		logger.String("remote", r.RemoteAddr))

	go writePump(h.hub, sub, conn)
	go readPump(h.hub, sub, conn)
}

func parseTopics(raw string) []model.EventTopic {
	var topics []model.EventTopic
	for _, part := range strings.Split(raw, ",") {
		switch model.EventTopic(strings.TrimSpace(part)) {
		case model.TopicDocument:
			topics = append(topics, model.TopicDocument)
		case model.TopicTransport:
			topics = append(topics, model.TopicTransport)
		case model.TopicTelemetry:
			topics = append(topics, model.TopicTelemetry)
		}
	}
	return topics
}

// writePump pushes hub messages to the peer and keeps the connection
// alive with pings. One writer per connection, as gorilla requires.
func writePump(hub *EventHub, sub *Subscriber, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	// Opening frame tells the client which stream it is on.
	ack := wsEnvelope{ProtocolVersion: ProtocolVersion, Type: "stream_open", StreamID: sub.StreamID}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(ack); err != nil {
		return
	}

	for {
		select {
		case data, ok := <-sub.Send:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; its job is to notice the peer going
// away and release the subscription.
func readPump(hub *EventHub, sub *Subscriber, conn *websocket.Conn) {
	defer func() {
		hub.Unregister(sub)
		conn.Close()
		logger.Info("event stream closed", logger.Uint64("streamId", sub.StreamID))
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read", logger.ErrorField(err))
			}
			return
		}
	}
}
