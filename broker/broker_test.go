package broker

import (
	"fmt"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyoez/codesync-go/types"
)

type recorder struct {
	id   string
	mu   sync.Mutex
	got  []Delivery
	full bool
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Deliver(d Delivery) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return false
	}
	r.got = append(r.got, d)
	return true
}

func (r *recorder) deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.got...)
}

func TestPublishRoutesBySessionAndKind(t *testing.T) {
	b := New()
	a := &recorder{id: "a"}
	c := &recorder{id: "c"}
	b.Subscribe(a, "s1", types.TopicChat)
	b.Subscribe(c, "s2", types.TopicChat)

	n := b.Publish("s1", types.ChatMessage{Username: "u", Content: "hi", Timestamp: "10:00"})
	assert.Equal(t, 1, n)
	require.Len(t, a.deliveries(), 1)
	assert.Empty(t, c.deliveries())

	d := a.deliveries()[0]
	assert.Equal(t, "/topic/chat/s1", d.Destination)
	var msg types.ChatMessage
	require.NoError(t, sonic.Unmarshal(d.Body, &msg))
	assert.Equal(t, "hi", msg.Content)

	assert.Zero(t, b.Publish("s1", types.TreeEvent{Type: types.TreeRefresh}))
}

func TestPublishPreservesOrderPerTopic(t *testing.T) {
	b := New()
	r := &recorder{id: "r"}
	b.Subscribe(r, "s", types.TopicTerminal)
	for i := range 100 {
		b.Publish("s", types.TerminalOutput{Output: fmt.Sprint(i)})
	}
	got := r.deliveries()
	require.Len(t, got, 100)
	for i, d := range got {
		assert.JSONEq(t, fmt.Sprintf(`{"output":"%d"}`, i), string(d.Body))
	}
}

func TestFullSubscriberIsSkipped(t *testing.T) {
	b := New()
	slow := &recorder{id: "slow", full: true}
	fast := &recorder{id: "fast"}
	b.Subscribe(slow, "s", types.TopicTree)
	b.Subscribe(fast, "s", types.TopicTree)

	assert.Equal(t, 1, b.Publish("s", types.TreeEvent{Type: types.TreeCreated, Path: "a"}))
	assert.Len(t, fast.deliveries(), 1)
	assert.Empty(t, slow.deliveries())
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	r := &recorder{id: "r"}
	b.Subscribe(r, "s", types.TopicTree)
	b.Subscribe(r, "s", types.TopicTree)
	b.Subscribe(r, "s", types.TopicChat)
	assert.Equal(t, 1, b.Subscribers("s", types.TopicTree))

	b.Unsubscribe(r, "s", types.TopicTree)
	assert.Zero(t, b.Subscribers("s", types.TopicTree))
	assert.Equal(t, 1, b.Subscribers("s", types.TopicChat))

	b.UnsubscribeAll(r)
	assert.Zero(t, b.Subscribers("s", types.TopicChat))
	assert.Zero(t, b.Publish("s", types.ChatMessage{}))
}

func TestReleaseSession(t *testing.T) {
	b := New()
	r := &recorder{id: "r"}
	b.Subscribe(r, "s1", types.TopicUser)
	b.Subscribe(r, "s2", types.TopicUser)

	b.ReleaseSession("s1")
	assert.Zero(t, b.Subscribers("s1", types.TopicUser))
	assert.Equal(t, 1, b.Subscribers("s2", types.TopicUser))
	assert.Equal(t, 1, b.Publish("s2", types.UserEvent{Type: types.UserJoin, Participants: []string{}}))
}
