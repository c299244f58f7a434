// Package live keeps an open board current by listening for change
// notifications on the backend websocket and refreshing the snapshot.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lizmareco/tablero/internal/common/constants"
	"github.com/lizmareco/tablero/internal/common/errors"
	"github.com/lizmareco/tablero/internal/common/logger"
	"github.com/lizmareco/tablero/internal/events"
	"github.com/lizmareco/tablero/internal/session"
	v1 "github.com/lizmareco/tablero/pkg/api/v1"
)

// Refresher reloads a board snapshot. *reconciler.Reconciler implements it.
type Refresher interface {
	BoardID() int64
	Refresh(ctx context.Context) error
}

// Options tunes a Watcher. Zero values use the defaults from constants.
type Options struct {
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// OnRefresh runs after each successful refresh.
	OnRefresh func()
}

// Watcher follows one board's change notifications.
type Watcher struct {
	url     string
	session *session.Session
	target  Refresher
	opts    Options
	dialer  *websocket.Dialer
	logger  *logger.Logger
}

// NewWatcher creates a watcher for target's board on the backend at baseURL.
func NewWatcher(baseURL string, sess *session.Session, target Refresher, opts Options, log *logger.Logger) *Watcher {
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = constants.LiveReconnectMin
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = constants.LiveReconnectMax
	}
	return &Watcher{
		url:     BoardURL(baseURL, target.BoardID()),
		session: sess,
		target:  target,
		opts:    opts,
		dialer:  websocket.DefaultDialer,
		logger:  log.WithComponent("live-watcher").WithBoardID(target.BoardID()),
	}
}

// BoardURL converts an http(s) backend root into the board's websocket URL.
func BoardURL(baseURL string, boardID int64) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws/boards/" + strconv.FormatInt(boardID, 10)
}

// Run listens until ctx is cancelled, reconnecting with exponential
// backoff. It stops early with an UNAUTHORIZED error when the backend
// rejects the session, either on connect or on refresh.
func (w *Watcher) Run(ctx context.Context) error {
	backoff := w.opts.MinBackoff
	for {
		connected, err := w.watchOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.IsAuth(err) {
			return err
		}
		if connected {
			backoff = w.opts.MinBackoff
		}
		w.logger.Debug("live connection lost, reconnecting",
			zap.Duration("backoff", backoff), zap.Error(err))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
		if backoff > w.opts.MaxBackoff {
			backoff = w.opts.MaxBackoff
		}
	}
}

// watchOnce holds one connection until it drops. connected reports whether
// the handshake succeeded.
func (w *Watcher) watchOnce(ctx context.Context) (connected bool, err error) {
	header := http.Header{}
	if w.session.Valid() {
		header.Set("Authorization", "Bearer "+w.session.Token)
	}

	conn, resp, err := w.dialer.DialContext(ctx, w.url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return false, errors.FromHTTPStatus(resp.StatusCode, "live updates rejected the session")
		}
		return false, fmt.Errorf("failed to connect to %s: %w", w.url, err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		if err := conn.Close(); err != nil {
			w.logger.Debug("failed to close live websocket", zap.Error(err))
		}
	}()

	w.logger.Info("connected to live updates", zap.String("url", w.url))

	// Catch up on anything missed while disconnected.
	if err := w.refresh(ctx, "reconnect"); errors.IsAuth(err) {
		return true, err
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return true, nil
			}
			return true, err
		}

		var msg v1.LiveMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			w.logger.Warn("failed to parse live message", zap.Error(err))
			continue
		}
		if msg.Type != events.BoardChanged || msg.BoardID != w.target.BoardID() {
			continue
		}
		if err := w.refresh(ctx, msg.Reason); errors.IsAuth(err) {
			return true, err
		}
	}
}

func (w *Watcher) refresh(ctx context.Context, reason string) error {
	if err := w.target.Refresh(ctx); err != nil {
		w.logger.Warn("refresh after remote change failed", zap.String("reason", reason), zap.Error(err))
		return err
	}
	if w.opts.OnRefresh != nil {
		w.opts.OnRefresh()
	}
	return nil
}
