package main

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/mastercactapus/grblwheel/machine"
)

const wsSendBuffer = 64

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

type wsProgress struct {
	Type string `json:"type"`
	machine.Progress
}

func progressMessage(p machine.Progress) wsProgress {
	return wsProgress{Type: "progress", Progress: p}
}

// wsCommand is a job control message from a client.
type wsCommand struct {
	Action    string `json:"action"`
	Filename  string `json:"filename"`
	StartLine int    `json:"start_line"`
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// hub fans progress messages out to every connected WebSocket client.
type hub struct {
	mx      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

func newHub() *hub {
	return &hub{clients: make(map[*wsClient]struct{})}
}

func (h *hub) add(c *wsClient) bool {
	h.mx.Lock()
	defer h.mx.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *hub) remove(c *wsClient) {
	h.mx.Lock()
	defer h.mx.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Broadcast queues v for every client. Slow clients miss messages
// rather than holding up the caller.
func (h *hub) Broadcast(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.WithError(err).Error("marshal websocket message")
		return
	}

	h.mx.Lock()
	defer h.mx.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			log.WithField("client", c.id).Debug("websocket client too slow, dropped message")
		}
	}
}

// Close disconnects all clients.
func (h *hub) Close() {
	h.mx.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mx.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
}

func (c *wsClient) writeLoop() {
	for data := range c.send {
		err := c.conn.WriteMessage(websocket.TextMessage, data)
		if err != nil {
			log.WithError(err).WithField("client", c.id).Debug("websocket write")
			c.conn.Close()
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.conn.Close()
}

func (a *api) jobSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade")
		return
	}
	c := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, wsSendBuffer),
	}
	l := log.WithField("client", c.id)

	data, err := json.Marshal(progressMessage(a.runner.Progress()))
	if err == nil {
		c.send <- data
	}
	if !a.ws.add(c) {
		conn.Close()
		return
	}
	go c.writeLoop()
	defer a.ws.remove(c)
	l.Debug("websocket connected")

	for {
		var cmd wsCommand
		err := conn.ReadJSON(&cmd)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.WithError(err).Debug("websocket read")
			}
			return
		}
		a.handleCommand(l, cmd)
	}
}

func (a *api) handleCommand(l *log.Entry, cmd wsCommand) {
	switch cmd.Action {
	case "start":
		err := a.startJob(cmd.Filename, cmd.StartLine)
		if err != nil {
			l.WithError(err).Info("websocket job start")
		}
	case "pause":
		a.runner.Pause()
	case "resume":
		a.runner.Resume()
	case "stop":
		a.runner.Stop()
	default:
		l.WithField("action", cmd.Action).Debug("unknown websocket action")
	}
}
