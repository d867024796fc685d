package ws

import (
	"sync"
	"sync/atomic"
)

// Hub 管理会话级别的房间，实现延迟创建与并发安全。
type Hub struct {
	mu    sync.RWMutex
	rooms map[uint]*Room
}

func NewHub() *Hub { return &Hub{rooms: make(map[uint]*Room)} }

// Room 若房间未初始化则懒加载一个并启动它的事件循环。
func (h *Hub) Room(conversationID uint) *Room {
	h.mu.RLock()
	room := h.rooms[conversationID]
	h.mu.RUnlock()
	if room != nil {
		return room
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	room = h.rooms[conversationID]
	if room != nil {
		return room
	}
	room = NewRoom(conversationID)
	h.rooms[conversationID] = room
	go room.run()
	return room
}

// Online 返回某个会话房间里的连接数。
func (h *Hub) Online(conversationID uint) int {
	h.mu.RLock()
	room := h.rooms[conversationID]
	h.mu.RUnlock()
	if room == nil {
		return 0
	}
	return room.Online()
}

// frame 是房间内待投递的一条出站数据，skip 不为空时跳过该连接。
type frame struct {
	data []byte
	skip *Client
}

// Room 串行化单个会话的加入、离开与广播，保证同会话内消息按追加顺序投递。
type Room struct {
	conversationID uint
	clients        map[*Client]bool
	register       chan *Client
	unregister     chan *Client
	broadcast      chan frame
	online         int32
}

func NewRoom(conversationID uint) *Room {
	return &Room{
		conversationID: conversationID,
		clients:        make(map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan frame, 256),
	}
}

func (r *Room) run() {
	for {
		select {
		case c := <-r.register:
			r.clients[c] = true
			atomic.StoreInt32(&r.online, int32(len(r.clients)))
		case c := <-r.unregister:
			if _, ok := r.clients[c]; ok {
				delete(r.clients, c)
				atomic.StoreInt32(&r.online, int32(len(r.clients)))
			}
		case f := <-r.broadcast:
			for c := range r.clients {
				if c == f.skip {
					continue
				}
				// send 缓冲满时丢帧而不是阻塞房间循环，慢连接由写超时收拾。
				select {
				case c.send <- f.data:
				default:
				}
			}
		}
	}
}

// Online 返回房间在线客户端数量。
func (r *Room) Online() int { return int(atomic.LoadInt32(&r.online)) }
