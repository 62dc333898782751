package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/gabe/botpool/internal/logger"
	"github.com/gabe/botpool/internal/models"
)

const (
	wsWriteTimeout   = 10 * time.Second
	wsMaxMessageSize = 4096
)

// IssueToken signs an HS256 token whose subject is channelID. A zero ttl
// never expires.
func IssueToken(secret string, channelID int64, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  strconv.FormatInt(channelID, 10),
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates a token and returns its channel id
func ParseToken(secret, token string) (int64, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if !parsed.Valid {
		return 0, ErrUnauthorized
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: subject %q is not a channel id", ErrUnauthorized, claims.Subject)
	}
	return id, nil
}

// wsMessage is the frame format in both directions
type wsMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) write(msg wsMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(msg)
}

// WebSocket is a push transport served over HTTP. Clients authenticate with
// a bearer token from IssueToken, sent in the Authorization header or the
// token query parameter.
type WebSocket struct {
	secret   string
	upgrader websocket.Upgrader
	log      logger.Logger
	updates  chan models.Command

	mu    sync.RWMutex
	conns map[int64]map[*wsConn]bool
}

// NewWebSocket creates the transport
func NewWebSocket(secret string, log logger.Logger) *WebSocket {
	if log == nil {
		log = logger.NewNop()
	}
	return &WebSocket{
		secret: secret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:     log.With(logger.String("component", "websocket")),
		updates: make(chan models.Command, 16),
		conns:   make(map[int64]map[*wsConn]bool),
	}
}

// Name implements Transport
func (w *WebSocket) Name() string {
	return "websocket"
}

// ServeHTTP authenticates and upgrades a client connection
func (w *WebSocket) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	}
	channelID, err := ParseToken(w.secret, token)
	if err != nil {
		http.Error(rw, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.log.Debug("Upgrade failed", logger.Error(err))
		return
	}
	conn.SetReadLimit(wsMaxMessageSize)

	c := &wsConn{conn: conn}
	w.register(channelID, c)
	defer w.unregister(channelID, c)

	w.log.Info("Client connected", logger.Int64("channel", channelID))
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.log.Debug("Client read failed", logger.Int64("channel", channelID), logger.Error(err))
			}
			return
		}
		cmd, ok := ParseCommand(msg.Text, channelID, time.Now())
		if !ok {
			continue
		}
		select {
		case w.updates <- cmd:
		case <-r.Context().Done():
			return
		}
	}
}

// Updates implements Transport
func (w *WebSocket) Updates(ctx context.Context) <-chan models.Command {
	out := make(chan models.Command)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case cmd := <-w.updates:
				select {
				case out <- cmd:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Reply implements Transport. It writes to every connection of the channel
// and is a no-op when none is connected.
func (w *WebSocket) Reply(ctx context.Context, channelID int64, text string) error {
	w.mu.RLock()
	targets := make([]*wsConn, 0, len(w.conns[channelID]))
	for c := range w.conns[channelID] {
		targets = append(targets, c)
	}
	w.mu.RUnlock()

	var lastErr error
	for _, c := range targets {
		if err := c.write(wsMessage{Type: "reply", Text: text}); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Connected returns the number of open connections
func (w *WebSocket) Connected() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	n := 0
	for _, set := range w.conns {
		n += len(set)
	}
	return n
}

func (w *WebSocket) register(channelID int64, c *wsConn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conns[channelID] == nil {
		w.conns[channelID] = make(map[*wsConn]bool)
	}
	w.conns[channelID][c] = true
}

func (w *WebSocket) unregister(channelID int64, c *wsConn) {
	w.mu.Lock()
	delete(w.conns[channelID], c)
	if len(w.conns[channelID]) == 0 {
		delete(w.conns, channelID)
	}
	w.mu.Unlock()
	_ = c.conn.Close()
}
