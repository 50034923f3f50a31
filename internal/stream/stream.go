// Package stream owns the long-lived server-push connection. One handle is
// live at a time per manager; opening a new one closes its predecessor.
// Transient errors are reported through OnError for observation only and the
// handle reconnects with exponential backoff; messages are forwarded in
// arrival order.
package stream

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nimbletv/pulse/internal/event"
)

type OpenOptions struct {
	Query     url.Values
	OnMessage func(raw []byte)
	OnError   func(err error)
}

type Manager struct {
	base string
	log  *zap.Logger

	mu      sync.Mutex
	current *Handle
}

// NewManager takes the ws/wss base URL of the push backend.
func NewManager(base string, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{base: base, log: log}
}

// Open establishes the connection for path. Any previously open handle is
// closed first so exactly one connection is live per mounted lifetime.
func (m *Manager) Open(ctx context.Context, path string, opts OpenOptions) (*Handle, error) {
	u, err := url.Parse(m.base)
	if err != nil {
		return nil, err
	}
	u = u.JoinPath(path)
	if len(opts.Query) > 0 {
		u.RawQuery = opts.Query.Encode()
	}

	h := &Handle{
		id:   uuid.NewString(),
		url:  u.String(),
		opts: opts,
	}
	h.log = m.log.With(zap.String("conn", h.id))
	h.ctx, h.cancel = context.WithCancel(ctx)

	m.mu.Lock()
	prev := m.current
	m.current = h
	m.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	go h.run()
	return h, nil
}

// Current returns the live handle, if any.
func (m *Manager) Current() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Close tears down the live handle.
func (m *Manager) Close() {
	m.mu.Lock()
	h := m.current
	m.current = nil
	m.mu.Unlock()
	if h != nil {
		h.Close()
	}
}

type Handle struct {
	id   string
	url  string
	opts OpenOptions
	log  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	mu   sync.Mutex
	conn *websocket.Conn
}

func (h *Handle) ID() string { return h.id }

func (h *Handle) run() {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0

	for {
		if h.ctx.Err() != nil {
			return
		}
		conn, _, err := websocket.Dial(h.ctx, h.url, nil)
		if err != nil {
			if h.ctx.Err() != nil {
				return
			}
			h.report(err)
			if !h.sleep(bo.NextBackOff()) {
				return
			}
			continue
		}
		conn.SetReadLimit(1 << 20)

		h.mu.Lock()
		h.conn = conn
		h.mu.Unlock()
		bo.Reset()
		h.log.Info("stream connected", zap.String("url", h.url))

		err = h.readLoop(conn)

		h.mu.Lock()
		h.conn = nil
		h.mu.Unlock()
		if h.ctx.Err() != nil {
			return
		}
		h.log.Warn("stream disconnected", zap.Error(err))
		h.report(err)
		if !h.sleep(bo.NextBackOff()) {
			return
		}
	}
}

func (h *Handle) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(h.ctx)
		if err != nil {
			return err
		}
		if h.opts.OnMessage != nil {
			h.opts.OnMessage(data)
		}
	}
}

// report invokes OnError. The callback is observational; a panicking or
// repeatedly firing callback must not take the connection down with it.
func (h *Handle) report(err error) {
	if h.opts.OnError == nil || err == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("onError callback panicked", zap.Any("panic", r))
		}
	}()
	h.opts.OnError(err)
}

func (h *Handle) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Close is idempotent and safe to call after an underlying error already
// tore the connection down.
func (h *Handle) Close() {
	h.once.Do(func() {
		h.cancel()
		h.mu.Lock()
		conn := h.conn
		h.conn = nil
		h.mu.Unlock()
		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "bye")
		}
		h.log.Info("stream closed")
	})
}

// QueryFromIdentity derives the open-time query parameters. Unresolvable
// identity fields are omitted rather than sent as sentinels so the backend
// applies its own defaults.
func QueryFromIdentity(id event.Identity) url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("deviceId", id.DeviceID)
	set("packageId", id.PackageID)
	set("userId", id.UserID)
	set("appVersion", id.AppVersion)
	set("region", id.Region)
	return q
}
