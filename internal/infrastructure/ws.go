package infra

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	HandshakeTimeout: 3 * time.Second,
}

var (
	writeWait    = 10 * time.Second
	pongWait     = 30 * time.Second
	pingInterval = pongWait * 9 / 10
	sendBuffer   = 16
)

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

// Websocket fans published messages out to the connections subscribed to a topic
type Websocket struct {
	mu     sync.RWMutex
	topics map[string]map[*wsClient]struct{}
	logger *zap.Logger
}

// NewWebsocket .
func NewWebsocket(logger *zap.Logger) *Websocket {
	return &Websocket{
		topics: make(map[string]map[*wsClient]struct{}),
		logger: logger,
	}
}

// Subscribe upgrade the request and subscribe it to the topic resolved by topicFn.
// A topicFn error is returned before upgrading.
func (ws *Websocket) Subscribe(topicFn func(c echo.Context) (string, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		topic, err := topicFn(c)
		if err != nil {
			return err
		}
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			// Upgrade has already replied to the client
			return nil
		}

		client := &wsClient{conn: conn, send: make(chan []byte, sendBuffer)}
		ws.add(topic, client)
		go ws.writeRoutine(client)
		go ws.readRoutine(topic, client)
		return nil
	}
}

// Publish json encode v and queue it to every subscriber of topic. Subscribers
// that can not keep up are dropped.
func (ws *Websocket) Publish(topic string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		ws.logger.Error("failed to encode websocket message", zap.String("ws.topic", topic), zap.Error(err))
		return
	}

	ws.mu.RLock()
	var slow []*wsClient
	for client := range ws.topics[topic] {
		select {
		case client.send <- data:
		default:
			slow = append(slow, client)
		}
	}
	ws.mu.RUnlock()

	for _, client := range slow {
		ws.logger.Warn("dropping slow websocket subscriber", zap.String("ws.topic", topic))
		ws.remove(topic, client)
	}
}

// Subscribers number of connections subscribed to topic
func (ws *Websocket) Subscribers(topic string) int {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return len(ws.topics[topic])
}

func (ws *Websocket) add(topic string, client *wsClient) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	clients, ok := ws.topics[topic]
	if !ok {
		clients = make(map[*wsClient]struct{})
		ws.topics[topic] = clients
	}
	clients[client] = struct{}{}
}

func (ws *Websocket) remove(topic string, client *wsClient) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	clients := ws.topics[topic]
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(ws.topics, topic)
	}
	client.close()
}

// readRoutine keeps the read deadline alive with pongs, incoming messages are discarded
func (ws *Websocket) readRoutine(topic string, client *wsClient) {
	conn := client.conn
	defer func() {
		ws.remove(topic, client)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeRoutine is the only writer of the connection
func (ws *Websocket) writeRoutine(client *wsClient) {
	conn := client.conn
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
