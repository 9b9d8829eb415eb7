package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/text/language"

	"github.com/hitoshi/banmen/internal/security"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

// wsMessage はWebSocketで送るメッセージ。Messageは接続ごとの言語で組み立てる。
type wsMessage struct {
	Event   Event  `json:"event"`
	Message string `json:"message"`
}

type client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	playerID string
	lang     language.Tag
}

// Hub はプレイヤーごとのWebSocket接続を管理し、参加している対局のイベントを配る。
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*client]struct{}
	renderer *Renderer
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHub はHubを生成する。allowedOriginsが空の場合は同一オリジンのみ接続を許可する。
// allowedOriginsはカンマ区切りで複数指定できる。
func NewHub(renderer *Renderer, allowedOrigins string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		clients:  make(map[string]map[*client]struct{}),
		renderer: renderer,
		logger:   logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if origins := security.ParseOrigins(allowedOrigins); len(origins) > 0 {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origins.Allows(origin)
		}
	}
	return h
}

// ServeWS は接続をWebSocketに切り替え、playerIDの購読者として登録する。
// langはこの接続に送る文面の言語。
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, playerID string, lang language.Tag) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			slog.String("player_id", playerID),
			slog.String("error", err.Error()),
		)
		return
	}
	c := &client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		playerID: playerID,
		lang:     lang,
	}
	h.register(c)

	go c.writePump()
	go c.readPump()
}

// Clients はplayerIDの接続数を返す。
func (h *Hub) Clients(playerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[playerID])
}

// Publish はイベントを全参加者の接続に送る。
// 送信待ちが溢れた接続は切断する。
func (h *Hub) Publish(_ context.Context, ev Event) error {
	var slow []*client
	h.mu.RLock()
	rendered := make(map[language.Tag][]byte)
	for _, pid := range ev.Participants {
		for c := range h.clients[pid] {
			data, ok := rendered[c.lang]
			if !ok {
				b, err := json.Marshal(wsMessage{Event: ev, Message: h.renderer.Render(c.lang, ev)})
				if err != nil {
					h.mu.RUnlock()
					return err
				}
				data = b
				rendered[c.lang] = b
			}
			select {
			case c.send <- data:
			default:
				slow = append(slow, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow websocket client", slog.String("player_id", c.playerID))
		h.unregister(c)
	}
	return nil
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.playerID] == nil {
		h.clients[c.playerID] = make(map[*client]struct{})
	}
	h.clients[c.playerID][c] = struct{}{}
}

// unregister は登録済みの場合のみ送信チャネルを閉じる。
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.playerID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.playerID)
	}
}

// readPump はクライアントからの切断とpongを検知する。受信したメッセージは捨てる。
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket closed", slog.String("player_id", c.playerID), slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
