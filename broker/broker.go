// Package broker fans session-scoped events out to subscribed connections.
//
// Delivery is at-most-once: a subscriber whose queue is full or closed loses
// the event and is expected to re-fetch authoritative state. Within one topic
// every subscriber sees events in publish order.
package broker

import (
	"sync"

	"github.com/bytedance/sonic"

	"github.com/moyoez/codesync-go/metrics"
	"github.com/moyoez/codesync-go/tool"
	"github.com/moyoez/codesync-go/types"
)

// Delivery is one encoded event addressed to one subscription.
type Delivery struct {
	SessionID   string
	Topic       types.TopicKind
	Destination string
	Body        []byte
}

// Subscriber receives deliveries. Deliver must not block; it reports whether
// the delivery was accepted.
type Subscriber interface {
	ID() string
	Deliver(Delivery) bool
}

type key struct {
	session string
	kind    types.TopicKind
}

type topic struct {
	mu   sync.Mutex // held for a whole publish, giving per-topic FIFO
	subs map[string]Subscriber
}

type Broker struct {
	mu     sync.RWMutex
	topics map[key]*topic
	bySub  map[string]map[key]struct{}
}

func New() *Broker {
	return &Broker{
		topics: make(map[key]*topic),
		bySub:  make(map[string]map[key]struct{}),
	}
}

// Subscribe adds sub to the (sessionID, kind) topic. Subscribing twice is a no-op.
func (b *Broker) Subscribe(sub Subscriber, sessionID string, kind types.TopicKind) {
	k := key{sessionID, kind}
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[k]
	if !ok {
		t = &topic{subs: make(map[string]Subscriber)}
		b.topics[k] = t
	}
	t.mu.Lock()
	t.subs[sub.ID()] = sub
	t.mu.Unlock()

	keys, ok := b.bySub[sub.ID()]
	if !ok {
		keys = make(map[key]struct{})
		b.bySub[sub.ID()] = keys
	}
	keys[k] = struct{}{}
}

func (b *Broker) Unsubscribe(sub Subscriber, sessionID string, kind types.TopicKind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub.ID(), key{sessionID, kind})
	if keys := b.bySub[sub.ID()]; len(keys) == 0 {
		delete(b.bySub, sub.ID())
	}
}

// UnsubscribeAll drops every subscription held by sub.
func (b *Broker) UnsubscribeAll(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k := range b.bySub[sub.ID()] {
		b.removeLocked(sub.ID(), k)
	}
	delete(b.bySub, sub.ID())
}

func (b *Broker) removeLocked(id string, k key) {
	if keys := b.bySub[id]; keys != nil {
		delete(keys, k)
	}
	t, ok := b.topics[k]
	if !ok {
		return
	}
	t.mu.Lock()
	delete(t.subs, id)
	empty := len(t.subs) == 0
	t.mu.Unlock()
	if empty {
		delete(b.topics, k)
	}
}

// ReleaseSession drops every topic of a session.
func (b *Broker) ReleaseSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, t := range b.topics {
		if k.session != sessionID {
			continue
		}
		t.mu.Lock()
		for id := range t.subs {
			if keys := b.bySub[id]; keys != nil {
				delete(keys, k)
				if len(keys) == 0 {
					delete(b.bySub, id)
				}
			}
		}
		t.mu.Unlock()
		delete(b.topics, k)
	}
}

// Subscribers returns the number of subscribers of a topic.
func (b *Broker) Subscribers(sessionID string, kind types.TopicKind) int {
	b.mu.RLock()
	t, ok := b.topics[key{sessionID, kind}]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Publish encodes ev once and hands it to every current subscriber of its
// topic. It returns the number of subscribers that accepted it.
func (b *Broker) Publish(sessionID string, ev types.Event) int {
	body, err := sonic.Marshal(ev)
	if err != nil {
		tool.DefaultLogger.Errorf("[Broker] encode %s event: %v", ev.Topic(), err)
		return 0
	}
	return b.PublishRaw(sessionID, ev.Topic(), body)
}

// PublishRaw delivers an already encoded body.
func (b *Broker) PublishRaw(sessionID string, kind types.TopicKind, body []byte) int {
	b.mu.RLock()
	t, ok := b.topics[key{sessionID, kind}]
	b.mu.RUnlock()
	if !ok {
		return 0
	}

	d := Delivery{
		SessionID:   sessionID,
		Topic:       kind,
		Destination: kind.Destination(sessionID),
		Body:        body,
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delivered := 0
	for _, sub := range t.subs {
		ok := sub.Deliver(d)
		metrics.RecordDelivery(kind, ok)
		if ok {
			delivered++
		} else {
			tool.DefaultLogger.Debugf("[Broker] dropped %s delivery to %s", d.Destination, sub.ID())
		}
	}
	return delivered
}
