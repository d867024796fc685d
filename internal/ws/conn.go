package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"messenger/internal/auth"
	"messenger/internal/config"
	"messenger/internal/metrics"
	"messenger/internal/models"
	"messenger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Client 是一条已认证的 websocket 连接。连接先通过握手认证拿到身份，
// 之后的每个入站事件都在这条连接自己的读循环里顺序处理。
type Client struct {
	hub      *Hub
	presence *Registry
	chat     *service.ChatService
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	userID   uint
	username string

	mu    sync.Mutex
	rooms map[uint]*Room
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inboundFrame 是客户端发来的事件信封。
type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinPayload struct {
	ConversationID uint `json:"conversation_id"`
}

type sendPayload struct {
	ConversationID uint   `json:"conversation_id"`
	Content        string `json:"content"`
}

type seenPayload struct {
	ConversationID uint `json:"conversation_id"`
}

// envelope 序列化一个出站事件，失败时返回 nil（调用方跳过投递）。
func envelope(event string, data interface{}) []byte {
	b, err := json.Marshal(map[string]interface{}{"event": event, "data": data})
	if err != nil {
		return nil
	}
	return b
}

// Serve 在升级到 websocket 之前完成握手认证：token 缺失或无效直接 401，
// 不会进入在线表，也没有任何后续事件可用。
func Serve(h *Hub, presence *Registry, chat *service.ChatService, db *gorm.DB, cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Token via Authorization header or token query param for WS
		authz := c.GetHeader("Authorization")
		token := c.Query("token")
		if token == "" && len(authz) > 7 && (authz[:7] == "Bearer " || authz[:7] == "bearer ") {
			token = authz[7:]
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := auth.ParseAccessToken(token, cfg.AccessTokenSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		var user models.User
		if err := db.First(&user, claims.UserID).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := &Client{
			hub:      h,
			presence: presence,
			chat:     chat,
			conn:     conn,
			send:     make(chan []byte, 256),
			done:     make(chan struct{}),
			userID:   user.ID,
			username: user.Username,
			rooms:    make(map[uint]*Room),
		}
		presence.Register(user.ID, client)
		metrics.WsConnections.Inc()
		log.Info().Uint("user_id", user.ID).Msg("ws connected")

		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		// 退出路径保证：无论哪个 handler 出错，在线记录和房间成员都会被清理。
		c.presence.Unregister(c.userID, c)
		c.leaveAllRooms()
		close(c.done)
		_ = c.conn.Close()
		metrics.WsConnections.Dec()
		log.Info().Uint("user_id", c.userID).Msg("ws disconnected")
	}()
	c.conn.SetReadLimit(1 << 20) // 1MB
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var in inboundFrame
		if err := json.Unmarshal(data, &in); err != nil {
			c.sendError("malformed frame")
			continue
		}
		switch in.Event {
		case "joinConversation":
			c.handleJoin(in.Data)
		case "sendMessage":
			c.handleSend(in.Data)
		case "markAsSeen":
			c.handleSeen(in.Data)
		default:
			c.sendError("unknown event")
		}
	}
}

// handleJoin 校验成员资格后把连接挂进会话房间。
// 校验失败只回一条 error 事件，连接保持存活。
func (c *Client) handleJoin(data json.RawMessage) {
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ConversationID == 0 {
		c.sendError("invalid payload")
		return
	}
	ok, err := c.chat.IsParticipant(c.userID, p.ConversationID)
	if err != nil {
		log.Error().Err(err).Uint("user_id", c.userID).Uint("conversation_id", p.ConversationID).Msg("join check")
		c.sendError("internal error")
		return
	}
	if !ok {
		c.sendError("you are not authorized to join this conversation")
		return
	}
	room := c.hub.Room(p.ConversationID)
	room.register <- c
	c.mu.Lock()
	c.rooms[p.ConversationID] = room
	c.mu.Unlock()
	log.Info().Uint("user_id", c.userID).Uint("conversation_id", p.ConversationID).Msg("joined conversation")
}

// handleSend 每条消息都重新校验成员资格（加入后成员可能已变动），
// 写库成功后向房间广播，再给在线的非发送者成员投递通知。
func (c *Client) handleSend(data json.RawMessage) {
	var p sendPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ConversationID == 0 || p.Content == "" {
		c.sendError("invalid payload")
		return
	}
	result, err := c.chat.AppendMessage(c.userID, p.ConversationID, p.Content)
	if err != nil {
		if errors.Is(err, service.ErrNotParticipant) {
			c.sendError("you are not a participant of this conversation")
			return
		}
		log.Error().Err(err).Uint("user_id", c.userID).Uint("conversation_id", p.ConversationID).Msg("append message")
		c.sendError("failed to send message")
		return
	}
	metrics.WsMessagesTotal.Inc()

	if b := envelope("newMessage", result.Message); b != nil {
		c.hub.Room(p.ConversationID).broadcast <- frame{data: b}
	}
	c.notify(result)
}

// notify 给除发送者外、当前在线的每个会话成员投递通知。
// 离线成员没有通知，下次拉会话列表时靠未读数发现新消息。
func (c *Client) notify(result *service.AppendResult) {
	name := "a chat"
	if result.ConversationName != nil && *result.ConversationName != "" {
		name = *result.ConversationName
	}
	summary := fmt.Sprintf("New message from %s in %s", result.Message.SenderName, name)
	b := envelope("notification", gin.H{
		"message":         summary,
		"conversation_id": result.Message.ConversationID,
	})
	if b == nil {
		return
	}
	for _, uid := range result.ParticipantIDs {
		if uid == c.userID {
			continue
		}
		recipient, online := c.presence.Lookup(uid)
		if !online {
			continue
		}
		select {
		case recipient.send <- b:
			metrics.NotificationsTotal.Inc()
		default:
		}
	}
}

// handleSeen 清零调用者的未读数，并向房间里的其他成员广播已读事件。
func (c *Client) handleSeen(data json.RawMessage) {
	var p seenPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ConversationID == 0 {
		c.sendError("invalid payload")
		return
	}
	if err := c.chat.MarkSeen(c.userID, p.ConversationID); err != nil {
		if errors.Is(err, service.ErrNotParticipant) {
			c.sendError("you are not a participant of this conversation")
			return
		}
		log.Error().Err(err).Uint("user_id", c.userID).Uint("conversation_id", p.ConversationID).Msg("mark seen")
		c.sendError("failed to mark as seen")
		return
	}
	if b := envelope("conversationSeen", gin.H{"conversation_id": p.ConversationID, "user_id": c.userID}); b != nil {
		c.hub.Room(p.ConversationID).broadcast <- frame{data: b, skip: c}
	}
}

// sendError 只给当前连接回一条 error 事件。
func (c *Client) sendError(msg string) {
	if b := envelope("error", gin.H{"message": msg}); b != nil {
		select {
		case c.send <- b:
		default:
		}
	}
}

func (c *Client) leaveAllRooms() {
	c.mu.Lock()
	rooms := make([]*Room, 0, len(c.rooms))
	for _, r := range c.rooms {
		rooms = append(rooms, r)
	}
	c.rooms = make(map[uint]*Room)
	c.mu.Unlock()
	for _, r := range rooms {
		r.unregister <- c
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			_ = w.Close()
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
