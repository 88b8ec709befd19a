package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"collabService/backend/internal/collab"
)

func stubConn(userID string) *Conn {
	return &Conn{
		userID: userID,
		send:   make(chan collab.Event, 4),
		log:    zap.NewNop(),
	}
}

func drain(c *Conn) []collab.Event {
	var out []collab.Event
	for {
		select {
		case evt := <-c.send:
			out = append(out, evt)
		default:
			return out
		}
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	h := NewHub()
	a, b, c := stubConn("u-a"), stubConn("u-b"), stubConn("u-c")
	h.Join("doc-1", a)
	h.Join("doc-1", b)
	h.Join("doc-1", c)

	evt := collab.DocumentLockedEvent{Type: collab.EventDocumentLocked, LockedBy: "u-a"}
	h.Broadcast("doc-1", "u-a", evt)

	assert.Empty(t, drain(a))
	require.Len(t, drain(b), 1)
	require.Len(t, drain(c), 1)
}

func TestBroadcastToAllWhenNoExclusion(t *testing.T) {
	h := NewHub()
	a, b := stubConn("u-a"), stubConn("u-b")
	h.Join("doc-1", a)
	h.Join("doc-1", b)

	h.Broadcast("doc-1", "", collab.DocumentUnlockedEvent{Type: collab.EventDocumentUnlocked})

	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 1)
}

func TestUnicastReachesAllTabsOfUser(t *testing.T) {
	h := NewHub()
	tab1, tab2 := stubConn("u-a"), stubConn("u-a")
	other := stubConn("u-b")
	h.Join("doc-1", tab1)
	h.Join("doc-1", tab2)
	h.Join("doc-1", other)

	h.Unicast("doc-1", "u-a", collab.DocumentStateEvent{Type: collab.EventDocumentState})

	assert.Len(t, drain(tab1), 1)
	assert.Len(t, drain(tab2), 1)
	assert.Empty(t, drain(other))
}

func TestBroadcastIsScopedToRoom(t *testing.T) {
	h := NewHub()
	a, b := stubConn("u-a"), stubConn("u-b")
	h.Join("doc-1", a)
	h.Join("doc-2", b)

	h.Broadcast("doc-1", "", collab.DocumentLockedEvent{Type: collab.EventDocumentLocked})

	assert.Len(t, drain(a), 1)
	assert.Empty(t, drain(b))
}

func TestLeaveRemovesConnAndEmptyRoom(t *testing.T) {
	h := NewHub()
	a := stubConn("u-a")
	h.Join("doc-1", a)
	h.Leave("doc-1", a)

	h.Broadcast("doc-1", "", collab.DocumentLockedEvent{Type: collab.EventDocumentLocked})
	assert.Empty(t, drain(a))
}

func TestFullSendQueueDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub()
	a := stubConn("u-a")
	h.Join("doc-1", a)

	for i := 0; i < cap(a.send)+5; i++ {
		h.Broadcast("doc-1", "", collab.DocumentLockedEvent{Type: collab.EventDocumentLocked})
	}
	assert.Len(t, drain(a), cap(a.send), "overflow is dropped, broadcast never blocks")
}
