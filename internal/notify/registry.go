package notify

import (
	"sort"
	"sync"
)

// Subscriber is one live connection.
type Subscriber interface {
	ID() string
	// Send enqueues a frame without blocking and reports whether it was accepted.
	Send(frame []byte) bool
}

// Registry maps live connections to channels. A connection is in at most
// one channel. State is process-local; clients join again after reconnecting.
type Registry struct {
	mu        sync.RWMutex
	byConn    map[string]membership
	byChannel map[string]map[string]Subscriber
}

type membership struct {
	channel string
	sub     Subscriber
}

func NewRegistry() *Registry {
	return &Registry{
		byConn:    make(map[string]membership),
		byChannel: make(map[string]map[string]Subscriber),
	}
}

// Join puts sub into channel, leaving any channel it was in before.
func (r *Registry) Join(sub Subscriber, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(sub.ID())
	members := r.byChannel[channel]
	if members == nil {
		members = make(map[string]Subscriber)
		r.byChannel[channel] = members
	}
	members[sub.ID()] = sub
	r.byConn[sub.ID()] = membership{channel: channel, sub: sub}
}

// Leave is a no-op for unknown connections.
func (r *Registry) Leave(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connID)
}

func (r *Registry) leaveLocked(connID string) {
	m, ok := r.byConn[connID]
	if !ok {
		return
	}
	delete(r.byConn, connID)
	members := r.byChannel[m.channel]
	delete(members, connID)
	if len(members) == 0 {
		delete(r.byChannel, m.channel)
	}
}

// MembersOf returns the connection ids in channel, sorted.
func (r *Registry) MembersOf(channel string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byChannel[channel]))
	for id := range r.byChannel[channel] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Subscribers is a snapshot; sending to it happens outside the lock.
func (r *Registry) Subscribers(channel string) []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Subscriber, 0, len(r.byChannel[channel]))
	for _, s := range r.byChannel[channel] {
		out = append(out, s)
	}
	return out
}

func (r *Registry) ChannelOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byConn[connID]
	return m.channel, ok
}

// Len is the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
