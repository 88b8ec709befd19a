package client

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabService/backend/internal/collab"
	"collabService/backend/internal/ws"
)

// 起一个真实的 WebSocket 服务端。测试桩中间件直接从 query 取身份，
// 替代 JWT 校验（鉴权边界在中间件测试里单独覆盖）。
func newCollabServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := ws.NewHub()
	co := collab.NewCoordinator(hub, collab.CoordinatorOptions{})
	manager := ws.NewManager(hub, co, nil)

	r := gin.New()
	r.GET("/collab/ws", func(c *gin.Context) {
		c.Set("userId", c.Query("user"))
		c.Set("username", c.Query("name"))
		manager.WebSocketConnect(c)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dialAdapter(t *testing.T, srv *httptest.Server, id, name string) *Adapter {
	t.Helper()
	wsURL := strings.Replace(srv.URL, "http://", "ws://", 1) +
		"/collab/ws?user=" + id + "&name=" + name
	a, err := Dial(context.Background(), Options{
		URL:  wsURL,
		User: collab.User{ID: id, Name: name},
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

func TestAdapterScenarioOverRealSockets(t *testing.T) {
	srv := newCollabServer(t)

	alice := dialAdapter(t, srv, "u-a", "Alice")
	alice.JoinDocument("doc-1")
	require.Eventually(t, func() bool {
		return len(alice.Collaborators()) == 1 && alice.IsConnected()
	}, waitFor, tick, "joiner must be hydrated by document-state")
	assert.Equal(t, uint64(0), alice.DocumentVersion())

	bob := dialAdapter(t, srv, "u-b", "Bob")
	bob.JoinDocument("doc-1")
	require.Eventually(t, func() bool {
		return len(bob.Collaborators()) == 2 && len(alice.Collaborators()) == 2
	}, waitFor, tick, "both sides must converge on the roster")

	// Alice 上锁：双方（包括请求方）都收到 document-locked
	alice.LockDocument()
	require.Eventually(t, func() bool {
		return alice.IsOwner() && bob.IsDocumentLocked()
	}, waitFor, tick)
	assert.True(t, alice.CanEdit())
	assert.False(t, bob.CanEdit())
	assert.Equal(t, "u-a", bob.LockedBy())

	// Bob 被锁挡住：静默拒绝，版本不动
	bob.SendContentChange(json.RawMessage(`{"insert":"evil"}`))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, uint64(0), bob.DocumentVersion())
	assert.Equal(t, uint64(0), alice.DocumentVersion())

	// Alice 提交：Bob 收到 content-changed，auto-save 指示灯点亮
	alice.SendContentChange(json.RawMessage(`{"insert":"hello"}`))
	require.Eventually(t, func() bool {
		return bob.DocumentVersion() == 1
	}, waitFor, tick)
	assert.JSONEq(t, `{"insert":"hello"}`, string(bob.Content()))
	assert.True(t, bob.IsAutoSaving(), "remote change must flag the auto-save indicator")

	// 光标广播
	alice.SendCursorUpdate(json.RawMessage(`{"pos":5}`))
	require.Eventually(t, func() bool {
		for _, u := range bob.Collaborators() {
			if u.ID == "u-a" && len(u.Cursor) > 0 {
				return true
			}
		}
		return false
	}, waitFor, tick)

	// 持锁者断连：presence 与锁必须被释放，Bob 随后能拿到锁
	require.NoError(t, alice.Close())
	require.Eventually(t, func() bool {
		return len(bob.Collaborators()) == 1 && bob.CanEdit()
	}, waitFor, tick, "disconnect must behave like an explicit leave")
	assert.Empty(t, bob.LockedBy())

	bob.LockDocument()
	require.Eventually(t, func() bool {
		return bob.IsOwner()
	}, waitFor, tick, "lock must be obtainable after the holder drops")
}

func TestAdapterUnlockFlow(t *testing.T) {
	srv := newCollabServer(t)

	alice := dialAdapter(t, srv, "u-a", "Alice")
	bob := dialAdapter(t, srv, "u-b", "Bob")
	alice.JoinDocument("doc-2")
	bob.JoinDocument("doc-2")
	require.Eventually(t, func() bool {
		return len(alice.Collaborators()) == 2 && len(bob.Collaborators()) == 2
	}, waitFor, tick)

	alice.LockDocument()
	require.Eventually(t, func() bool { return bob.IsDocumentLocked() }, waitFor, tick)

	// 非持锁者 unlock：静默拒绝，锁保持
	bob.UnlockDocument()
	time.Sleep(200 * time.Millisecond)
	assert.True(t, bob.IsDocumentLocked())

	alice.UnlockDocument()
	require.Eventually(t, func() bool {
		return !bob.IsDocumentLocked() && !alice.IsDocumentLocked()
	}, waitFor, tick)
	assert.True(t, bob.CanEdit())
}

func TestAdapterLeaveDocument(t *testing.T) {
	srv := newCollabServer(t)

	alice := dialAdapter(t, srv, "u-a", "Alice")
	bob := dialAdapter(t, srv, "u-b", "Bob")
	alice.JoinDocument("doc-3")
	bob.JoinDocument("doc-3")
	require.Eventually(t, func() bool { return len(alice.Collaborators()) == 2 }, waitFor, tick)

	bob.LeaveDocument()
	require.Eventually(t, func() bool {
		return len(alice.Collaborators()) == 1
	}, waitFor, tick, "remaining participants must observe user-left")
	assert.True(t, alice.IsConnected(), "leave-document keeps the connection open")
}

func TestAdapterEventHook(t *testing.T) {
	srv := newCollabServer(t)

	events := make(chan collab.Event, 16)
	wsURL := strings.Replace(srv.URL, "http://", "ws://", 1) + "/collab/ws?user=u-a&name=Alice"
	a, err := Dial(context.Background(), Options{
		URL:     wsURL,
		User:    collab.User{ID: "u-a", Name: "Alice"},
		OnEvent: func(evt collab.Event) { events <- evt },
	})
	require.NoError(t, err)
	defer a.Close()

	a.JoinDocument("doc-4")
	select {
	case evt := <-events:
		state, ok := evt.(collab.DocumentStateEvent)
		require.True(t, ok, "first event after join must be document-state, got %T", evt)
		assert.Equal(t, "doc-4", state.DocumentID)
	case <-time.After(waitFor):
		t.Fatal("no event received after join")
	}
}
