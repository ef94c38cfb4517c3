package client

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/directchat/internal/logger"
	"github.com/directchat/internal/ws"
)

// Presence is the client's view of who is online. Every snapshot from the
// server replaces it wholesale.
type Presence struct {
	mu       sync.RWMutex
	online   map[string]struct{}
	onChange func(online []string)
}

func NewPresence() *Presence {
	return &Presence{online: make(map[string]struct{})}
}

// OnChange registers fn to run after each snapshot is applied.
func (p *Presence) OnChange(fn func(online []string)) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

// Subscribe applies init and getOnlineUsers events from src.
func (p *Presence) Subscribe(src EventSource) (unsubscribe func()) {
	offInit := src.On(ws.EventInit, func(raw json.RawMessage) {
		var in ws.InitPayload
		if err := json.Unmarshal(raw, &in); err != nil {
			logger.Errorf("presence init: %v", err)
			return
		}
		p.Replace(in.OnlineUsers)
	})
	offList := src.On(ws.EventGetOnlineUsers, func(raw json.RawMessage) {
		var ids []string
		if err := json.Unmarshal(raw, &ids); err != nil {
			logger.Errorf("presence snapshot: %v", err)
			return
		}
		p.Replace(ids)
	})
	return func() {
		offInit()
		offList()
	}
}

func (p *Presence) Replace(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}
	p.mu.Lock()
	p.online = next
	fn := p.onChange
	p.mu.Unlock()
	if fn != nil {
		fn(p.Online())
	}
}

func (p *Presence) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.online[userID]
	return ok
}

// Online returns the online ids, sorted.
func (p *Presence) Online() []string {
	p.mu.RLock()
	ids := make([]string, 0, len(p.online))
	for id := range p.online {
		ids = append(ids, id)
	}
	p.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
