package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"zontact/backend/internal/domain"
)

func newHubServer(t *testing.T) (*Hub, *httptest.Server, context.CancelFunc, chan struct{}) {
	t.Helper()

	hub := NewHub([]string{"*"}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", hub.HandleConnection)
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-stopped
	})
	return hub, srv, cancel, stopped
}

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_BroadcastNewEntry(t *testing.T) {
	hub, srv, _, _ := newHubServer(t)
	conn := dialHub(t, srv)

	assert.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	hub.BroadcastNewEntry(&domain.Submission{ID: 42, Name: "张三", Email: "zhangsan@example.com"})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, MessageTypeNewEntry, msg.Type)

	var sub domain.Submission
	require.NoError(t, json.Unmarshal(msg.Data, &sub))
	assert.Equal(t, int64(42), sub.ID)
}

func TestHub_ShutdownReleasesClients(t *testing.T) {
	hub, srv, cancel, stopped := newHubServer(t)
	conn := dialHub(t, srv)

	assert.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-stopped

	// 事件循环退出后连接被关闭，客户端读取立即失败
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Zero(t, hub.ClientCount())

	// 停机后的注销请求直接放行，不会阻塞在无人消费的通道上
	released := make(chan struct{})
	go func() {
		hub.dropClient(&Client{id: "stale"})
		close(released)
	}()
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("unregister blocked after hub shutdown")
	}
}
