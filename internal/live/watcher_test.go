package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lizmareco/tablero/internal/common/errors"
	"github.com/lizmareco/tablero/internal/common/logger"
	"github.com/lizmareco/tablero/internal/session"
	v1 "github.com/lizmareco/tablero/pkg/api/v1"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingRefresher struct {
	boardID int64
	calls   atomic.Int32
	err     error
}

func (r *countingRefresher) BoardID() int64 { return r.boardID }

func (r *countingRefresher) Refresh(ctx context.Context) error {
	r.calls.Add(1)
	return r.err
}

// liveServer sends msgs on every connection and then closes it.
func liveServer(t *testing.T, msgs []v1.LiveMessage) (*httptest.Server, *atomic.Int32, *sync.Map) {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	var conns atomic.Int32
	var auth sync.Map
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.URL.Path, r.Header.Get("Authorization"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		conns.Add(1)
		for _, m := range msgs {
			if err := conn.WriteJSON(m); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
	t.Cleanup(srv.Close)
	return srv, &conns, &auth
}

func fastOptions() Options {
	return Options{MinBackoff: 5 * time.Millisecond, MaxBackoff: 20 * time.Millisecond}
}

func TestBoardURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8080/ws/boards/3", BoardURL("http://localhost:8080/", 3))
	assert.Equal(t, "wss://api.example.com/v1/ws/boards/12", BoardURL("https://api.example.com/v1", 12))
}

func TestWatcher_RefreshesOnBoardChanged(t *testing.T) {
	srv, conns, auth := liveServer(t, []v1.LiveMessage{
		{Type: "board.changed", BoardID: 4, Reason: "card.moved"},
		{Type: "board.changed", BoardID: 99},
		{Type: "something.else", BoardID: 4},
	})
	target := &countingRefresher{boardID: 4}
	var refreshed atomic.Int32
	opts := fastOptions()
	opts.OnRefresh = func() { refreshed.Add(1) }

	w := NewWatcher(srv.URL, &session.Session{Token: "tok"}, target, opts, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Each connection refreshes once on connect and once for the matching message.
	require.Eventually(t, func() bool { return conns.Load() >= 2 }, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return target.calls.Load() >= 4 }, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}

	v, ok := auth.Load("/ws/boards/4")
	require.True(t, ok)
	assert.Equal(t, "Bearer tok", v)
	assert.Equal(t, target.calls.Load(), refreshed.Load())
}

func TestWatcher_StopsOnRejectedSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	w := NewWatcher(srv.URL, nil, &countingRefresher{boardID: 1}, fastOptions(), logger.NewNop())
	err := w.Run(context.Background())
	assert.True(t, errors.IsAuth(err), "got %v", err)
}

func TestWatcher_StopsWhenRefreshIsUnauthorized(t *testing.T) {
	srv, _, _ := liveServer(t, nil)
	target := &countingRefresher{boardID: 1, err: errors.Unauthorized("expired")}

	w := NewWatcher(srv.URL, &session.Session{Token: "tok"}, target, fastOptions(), logger.NewNop())
	err := w.Run(context.Background())
	assert.True(t, errors.IsAuth(err))
	assert.Equal(t, int32(1), target.calls.Load())
}

func TestWatcher_RetriesUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	w := NewWatcher(url, nil, &countingRefresher{boardID: 1}, fastOptions(), logger.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	err := w.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
