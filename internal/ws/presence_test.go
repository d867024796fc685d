package ws

import (
	"sync"
	"testing"
)

func TestRegistry_RegisterLookup(t *testing.T) {
	r := NewRegistry()
	c := &Client{userID: 1, send: make(chan []byte, 1)}

	if _, ok := r.Lookup(1); ok {
		t.Error("Lookup() before register should miss")
	}

	r.Register(1, c)
	got, ok := r.Lookup(1)
	if !ok || got != c {
		t.Error("Lookup() after register should return the registered client")
	}
	if r.OnlineCount() != 1 {
		t.Errorf("OnlineCount() = %d, want 1", r.OnlineCount())
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	c := &Client{userID: 1}
	r.Register(1, c)
	r.Unregister(1, c)

	if _, ok := r.Lookup(1); ok {
		t.Error("Lookup() after unregister should miss")
	}
	if r.OnlineCount() != 0 {
		t.Errorf("OnlineCount() = %d, want 0", r.OnlineCount())
	}
}

func TestRegistry_LastWriteWins(t *testing.T) {
	r := NewRegistry()
	old := &Client{userID: 1}
	fresh := &Client{userID: 1}

	r.Register(1, old)
	r.Register(1, fresh)

	got, ok := r.Lookup(1)
	if !ok || got != fresh {
		t.Error("Lookup() should return the most recently registered client")
	}

	// 旧连接断开时不能把新连接的在线记录一并删掉。
	r.Unregister(1, old)
	got, ok = r.Lookup(1)
	if !ok || got != fresh {
		t.Error("Unregister() of a stale client must not evict the current client")
	}

	r.Unregister(1, fresh)
	if _, ok := r.Lookup(1); ok {
		t.Error("Unregister() of the current client should remove it")
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c := &Client{userID: uint(id)}
			r.Register(uint(id), c)
			r.Lookup(uint(id))
			r.Unregister(uint(id), c)
		}(i)
	}
	wg.Wait()

	if r.OnlineCount() != 0 {
		t.Errorf("OnlineCount() after churn = %d, want 0", r.OnlineCount())
	}
}
