package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"storyloom/internal/engine"
	"storyloom/internal/thread"
	"storyloom/internal/util"

	"github.com/gorilla/websocket"
)

// ThreadCommand is a client request over the live thread socket
type ThreadCommand struct {
	Action   string  `json:"action"`
	Body     string  `json:"body,omitempty"`
	ParentID *string `json:"parent_id,omitempty"`
	Sticker  string  `json:"sticker,omitempty"`
	Comment  string  `json:"comment_id,omitempty"`
	Kind     string  `json:"kind,omitempty"`
	Sort     string  `json:"sort,omitempty"`
}

// ThreadClient binds one websocket connection to one live thread view.
// Every settled view change is pushed as a full snapshot frame.
type ThreadClient struct {
	conn *websocket.Conn
	view *engine.View
	send chan engine.Snapshot
}

// ServeThreadWS upgrades a connection onto a chapter's live comment thread.
// A token is optional: unauthenticated connections get a read/guest session.
func ServeThreadWS(eng *engine.Engine, jwtSecret string) func(w http.ResponseWriter, r *http.Request, threadID string) {
	return func(w http.ResponseWriter, r *http.Request, threadID string) {
		sess := resolveSession(r, jwtSecret)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("Thread WebSocket upgrade error: %v", err)
			return
		}

		client := &ThreadClient{
			conn: conn,
			send: make(chan engine.Snapshot, 16),
		}
		client.view = engine.NewView(eng, sess, threadID, client.push)

		ctx, cancel := context.WithCancel(r.Context())
		client.view.Start(ctx)

		go client.writePump(cancel)
		client.readPump(ctx, cancel)
	}
}

func resolveSession(r *http.Request, jwtSecret string) engine.Session {
	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				token = parts[1]
			}
		}
	}
	if token != "" {
		if claims, err := util.ValidateToken(token, jwtSecret); err == nil {
			return engine.NewSession(claims.UserID, claims.DisplayName)
		}
	}
	sess := engine.GuestSession()
	sess.DisplayName = r.URL.Query().Get("guest_name")
	return sess
}

// push queues a snapshot frame, dropping the oldest pending frame when the
// writer is behind. Only the freshest snapshot matters.
func (c *ThreadClient) push(snap engine.Snapshot) {
	for {
		select {
		case c.send <- snap:
			return
		default:
			select {
			case <-c.send:
			default:
			}
		}
	}
}

func (c *ThreadClient) readPump(ctx context.Context, cancel context.CancelFunc) {
	defer func() {
		cancel()
		c.view.Close()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Thread WebSocket error: %v", err)
			}
			return
		}

		var cmd ThreadCommand
		if err := json.Unmarshal(messageBytes, &cmd); err != nil {
			continue
		}
		c.handle(ctx, cmd)
	}
}

func (c *ThreadClient) handle(ctx context.Context, cmd ThreadCommand) {
	switch cmd.Action {
	case "post_root":
		c.view.PostRoot(ctx, cmd.Body)
	case "post_reply":
		if cmd.ParentID != nil {
			c.view.PostReply(ctx, *cmd.ParentID, cmd.Body)
		}
	case "post_sticker":
		c.view.PostSticker(ctx, cmd.Sticker, cmd.ParentID)
	case "edit":
		c.view.Edit(ctx, cmd.Comment, cmd.Body)
	case "delete":
		c.view.Delete(ctx, cmd.Comment)
	case "toggle_pin":
		c.view.TogglePin(ctx, cmd.Comment)
	case "react":
		c.view.React(ctx, cmd.Kind)
	case "change_sort":
		c.view.ChangeSort(ctx, thread.SortMode(cmd.Sort))
	case "load_more":
		c.view.LoadMore(ctx)
	case "refresh":
		c.view.Refresh(ctx)
	}
}

func (c *ThreadClient) writePump(cancel context.CancelFunc) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		c.conn.Close()
	}()

	for {
		select {
		case snap := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			frame := map[string]interface{}{
				"type":     "snapshot",
				"snapshot": snap,
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
