package backend

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ringsideapp/ringside/internal/logging"
	"github.com/ringsideapp/ringside/internal/models"
)

const (
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxReconnectWait = 30 * time.Second
)

// UpdateApplier receives authoritative entry updates. Satisfied by the local
// state manager; the listener never touches the entry maps directly.
type UpdateApplier interface {
	ApplyServerUpdate(ctx context.Context, entries []models.Entry) error
}

// PushListener subscribes to the backend's realtime score channel and feeds
// every entry update through the state manager's reconciling merge.
type PushListener struct {
	url     string
	applier UpdateApplier
	log     logging.Logger
	dialer  *websocket.Dialer
}

func NewPushListener(url string, applier UpdateApplier, log logging.Logger) *PushListener {
	return &PushListener{
		url:     url,
		applier: applier,
		log:     log,
		dialer:  websocket.DefaultDialer,
	}
}

// Run connects and consumes pushes until ctx is cancelled, reconnecting with
// capped exponential backoff. Intermittent venue connectivity is the normal
// case here, so connection loss is logged at debug, not error.
func (l *PushListener) Run(ctx context.Context) {
	wait := time.Second

	for {
		if err := ctx.Err(); err != nil {
			return
		}

		conn, _, err := l.dialer.DialContext(ctx, l.url, nil)
		if err != nil {
			l.log.Debug(ctx, "push channel unavailable, retrying", "error", err, "wait", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			wait *= 2
			if wait > maxReconnectWait {
				wait = maxReconnectWait
			}
			continue
		}

		wait = time.Second
		l.log.Info(ctx, "push channel connected", "url", l.url)
		l.consume(ctx, conn)
	}
}

// consume reads updates from one connection until it drops or ctx ends.
func (l *PushListener) consume(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				_ = conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		var update EntryUpdate
		if err := conn.ReadJSON(&update); err != nil {
			if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
				l.log.Debug(ctx, "push channel dropped", "error", err)
			}
			return
		}

		if update.Type != "entry_update" || len(update.Entries) == 0 {
			continue
		}
		if err := l.applier.ApplyServerUpdate(ctx, update.Entries); err != nil {
			l.log.Error(ctx, "failed to apply pushed update", "error", err)
		}
	}
}
