package ws

import "sync"

// Registry 维护在线用户到连接的映射，是进程内共享状态，所有访问都走锁。
// 进程重启后在线状态自然清空，不做持久化。
type Registry struct {
	mu      sync.RWMutex
	clients map[uint]*Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[uint]*Client)}
}

// Register 记录用户当前的连接。同一用户再次连接时后写覆盖先写，
// 通知只会投递到最近注册的那个连接（单连接策略）。
func (r *Registry) Register(userID uint, c *Client) {
	r.mu.Lock()
	r.clients[userID] = c
	r.mu.Unlock()
}

// Unregister 移除用户的在线记录。仅当记录仍指向该连接时才移除，
// 防止旧连接断开时误删同一用户的新连接。
func (r *Registry) Unregister(userID uint, c *Client) {
	r.mu.Lock()
	if r.clients[userID] == c {
		delete(r.clients, userID)
	}
	r.mu.Unlock()
}

// Lookup 查找用户当前在线的连接。
func (r *Registry) Lookup(userID uint) (*Client, bool) {
	r.mu.RLock()
	c, ok := r.clients[userID]
	r.mu.RUnlock()
	return c, ok
}

// OnlineCount 返回当前在线用户数。
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	n := len(r.clients)
	r.mu.RUnlock()
	return n
}
