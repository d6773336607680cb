// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package eventstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/bureau-foundation/auditdesk/auditapi"
	"github.com/bureau-foundation/auditdesk/lib/clock"
	"github.com/bureau-foundation/auditdesk/lib/netutil"
)

// Defaults for Config fields left zero.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultInitialBackoff   = 1 * time.Second
	DefaultMaxBackoff       = 30 * time.Second

	// readLimit bounds one WebSocket message.
	readLimit = 4 << 20

	// writeTimeout bounds a pong write.
	writeTimeout = 5 * time.Second
)

// ErrHeartbeatTimeout ends a stream whose server stopped pinging.
var ErrHeartbeatTimeout = errors.New("eventstream: no ping from server within pingInterval+pingTimeout")

// ErrServerClosed ends a stream the server disconnected.
var ErrServerClosed = errors.New("eventstream: server closed the connection")

// Config holds configuration for creating a Dialer.
type Config struct {
	// BaseURL is the service root, e.g. http://localhost:5000.
	BaseURL *url.URL

	// HTTPClient performs the WebSocket upgrade. Its cookie jar
	// carries the session; it must not set a Timeout (the handshake
	// is bounded by HandshakeTimeout instead).
	HTTPClient *http.Client

	// HandshakeTimeout bounds the upgrade plus the Engine.IO and
	// Socket.IO handshakes. Zero means DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// InitialBackoff and MaxBackoff bound the reconnect waits of Run.
	// Zero means the defaults.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// OnConnect runs in Run's goroutine after every successful dial.
	OnConnect func()

	// OnReconnect runs in Run's goroutine after every successful dial
	// except the first. There is no replay across connections, so the
	// caller reloads the snapshot here.
	OnReconnect func()

	// OnDisconnect runs in Run's goroutine when a dial or a connection
	// fails, before the backoff wait.
	OnDisconnect func(err error, backoff time.Duration)

	// Clock times heartbeats and reconnect waits. If nil, clock.Real() is used.
	Clock clock.Clock

	// Logger records connection lifecycle and dropped events. If nil,
	// slog.Default() is used.
	Logger *slog.Logger
}

// Dialer opens event streams. Safe for concurrent use.
type Dialer struct {
	config  Config
	decoder *decoder
}

// NewDialer validates config and compiles the event schemas.
func NewDialer(config Config) (*Dialer, error) {
	if config.BaseURL == nil {
		return nil, errors.New("eventstream: BaseURL is required")
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if config.HTTPClient.Timeout != 0 {
		return nil, errors.New("eventstream: HTTPClient must not set a Timeout")
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = DefaultInitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = DefaultMaxBackoff
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	decoder, err := newDecoder()
	if err != nil {
		return nil, err
	}
	return &Dialer{config: config, decoder: decoder}, nil
}

// streamURL is the Engine.IO WebSocket endpoint under base.
func streamURL(base *url.URL) string {
	endpoint := *base
	if endpoint.Scheme == "https" {
		endpoint.Scheme = "wss"
	} else {
		endpoint.Scheme = "ws"
	}
	endpoint.Path = strings.TrimSuffix(endpoint.Path, "/") + "/socket.io/"
	endpoint.RawQuery = url.Values{"EIO": {"4"}, "transport": {"websocket"}}.Encode()
	return endpoint.String()
}

// Stream is one connection's event sequence. Events arrive on the
// channel returned by Events, which is closed when the connection
// ends; Err then reports why.
type Stream struct {
	conn      *websocket.Conn
	decoder   *decoder
	logger    *slog.Logger
	sessionID string

	events chan Event
	cancel context.CancelFunc

	// watchdog fires when the server has been silent for longer than
	// pingInterval+pingTimeout.
	watchdog      *clock.Timer
	watchdogDelay time.Duration

	malformed atomic.Int64

	mutex  sync.Mutex
	err    error
	closed bool
}

// Dial opens one connection and completes the Engine.IO open and the
// Socket.IO namespace connect. A 401 on the upgrade, or a connect
// error saying the session is not authorized, returns an error
// matching auditapi.ErrUnauthorized. Other failures are
// *auditapi.TransientError.
func (d *Dialer) Dial(ctx context.Context) (*Stream, error) {
	handshakeCtx, cancelHandshake := context.WithTimeout(ctx, d.config.HandshakeTimeout)
	defer cancelHandshake()

	endpoint := streamURL(d.config.BaseURL)
	conn, response, err := websocket.Dial(handshakeCtx, endpoint, &websocket.DialOptions{
		HTTPClient: d.config.HTTPClient,
	})
	if err != nil {
		if response != nil && response.StatusCode == http.StatusUnauthorized {
			return nil, &auditapi.APIError{Method: http.MethodGet, Path: "/socket.io/", StatusCode: response.StatusCode}
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("eventstream: dialing: %w", ctx.Err())
		}
		return nil, &auditapi.TransientError{Op: "dial event stream", Err: err}
	}
	conn.SetReadLimit(readLimit)

	open, err := d.handshake(handshakeCtx, conn)
	if err != nil {
		conn.CloseNow()
		if auditapi.IsUnauthorized(err) || ctx.Err() != nil {
			return nil, err
		}
		return nil, &auditapi.TransientError{Op: "event stream handshake", Err: err}
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	stream := &Stream{
		conn:          conn,
		decoder:       d.decoder,
		logger:        d.config.Logger,
		sessionID:     open.SessionID,
		events:        make(chan Event, 64),
		cancel:        cancel,
		watchdogDelay: time.Duration(open.PingInterval+open.PingTimeout) * time.Millisecond,
	}
	if stream.watchdogDelay > 0 {
		stream.watchdog = d.config.Clock.AfterFunc(stream.watchdogDelay, stream.heartbeatExpired)
	}
	d.config.Logger.Info("event stream connected",
		"sid", open.SessionID,
		"ping_interval_ms", open.PingInterval,
		"ping_timeout_ms", open.PingTimeout,
	)
	go stream.readLoop(streamCtx)
	return stream, nil
}

// handshake reads the Engine.IO open packet, sends the Socket.IO
// CONNECT, and waits for the server's answer. Pings that arrive in
// between are answered.
func (d *Dialer) handshake(ctx context.Context, conn *websocket.Conn) (openPacket, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return openPacket{}, fmt.Errorf("reading open packet: %w", err)
	}
	open, err := parseOpenPacket(string(data))
	if err != nil {
		return openPacket{}, err
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(socketConnectPacket)); err != nil {
		return openPacket{}, fmt.Errorf("sending namespace connect: %w", err)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return openPacket{}, fmt.Errorf("waiting for namespace connect: %w", err)
		}
		message := string(data)
		if message == "" {
			continue
		}
		switch message[0] {
		case enginePing:
			if err := conn.Write(ctx, websocket.MessageText, []byte{enginePong}); err != nil {
				return openPacket{}, fmt.Errorf("answering ping: %w", err)
			}
		case engineClose:
			return openPacket{}, ErrServerClosed
		case engineMessage:
			packet, err := parseSocketPacket(message[1:])
			if err != nil {
				return openPacket{}, fmt.Errorf("parsing namespace connect reply: %w", err)
			}
			switch packet.Type {
			case socketConnect:
				return open, nil
			case socketConnectError:
				reason := connectErrorMessage(packet.Data)
				if isUnauthorizedMessage(reason) {
					return openPacket{}, &auditapi.APIError{
						Method:     http.MethodGet,
						Path:       "/socket.io/",
						StatusCode: http.StatusUnauthorized,
						Message:    reason,
					}
				}
				return openPacket{}, fmt.Errorf("namespace connect refused: %s", reason)
			}
		}
	}
}

func isUnauthorizedMessage(reason string) bool {
	lower := strings.ToLower(reason)
	for _, marker := range []string{"unauthorized", "unauthenticated", "not authenticated", "login required"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Events returns the event channel. It is closed when the connection
// ends, after which Err reports the cause.
func (s *Stream) Events() <-chan Event { return s.events }

// SessionID returns the Engine.IO session id.
func (s *Stream) SessionID() string { return s.sessionID }

// Malformed returns the number of events dropped as malformed.
func (s *Stream) Malformed() int64 { return s.malformed.Load() }

// Err returns why the stream ended: nil after Close or an orderly
// close, otherwise the read error, ErrServerClosed, or
// ErrHeartbeatTimeout.
func (s *Stream) Err() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.err
}

// Close ends the connection and releases the reader goroutine. No
// event is read from the connection after Close returns; events
// already buffered stay on the channel until it is drained. Safe to
// call more than once.
func (s *Stream) Close() error {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return nil
	}
	s.closed = true
	s.mutex.Unlock()

	s.cancel()
	if s.watchdog != nil {
		s.watchdog.Stop()
	}
	err := s.conn.Close(websocket.StatusNormalClosure, "")
	if err != nil && !netutil.IsExpectedCloseError(err) {
		return fmt.Errorf("eventstream: closing: %w", err)
	}
	return nil
}

// fail records the first terminal error unless the stream was closed
// deliberately.
func (s *Stream) fail(err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed || s.err != nil {
		return
	}
	if netutil.IsExpectedCloseError(err) {
		err = ErrServerClosed
	}
	s.err = err
}

func (s *Stream) heartbeatExpired() {
	s.fail(ErrHeartbeatTimeout)
	s.conn.CloseNow()
}

func (s *Stream) readLoop(ctx context.Context) {
	defer close(s.events)
	defer func() {
		if s.watchdog != nil {
			s.watchdog.Stop()
		}
	}()

	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			s.fail(err)
			return
		}
		message := string(data)
		if message == "" {
			continue
		}

		switch message[0] {
		case enginePing:
			if s.watchdog != nil {
				s.watchdog.Reset(s.watchdogDelay)
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := s.conn.Write(writeCtx, websocket.MessageText, []byte{enginePong})
			cancel()
			if err != nil {
				s.fail(fmt.Errorf("answering ping: %w", err))
				return
			}
		case engineClose:
			s.fail(ErrServerClosed)
			return
		case engineMessage:
			if !s.handlePacket(ctx, message[1:]) {
				return
			}
		case engineNoop:
		default:
			s.logger.Debug("ignoring Engine.IO packet", "type", string(message[0]))
		}
	}
}

// handlePacket processes one Socket.IO packet. Returns false when the
// stream must end.
func (s *Stream) handlePacket(ctx context.Context, payload string) bool {
	packet, err := parseSocketPacket(payload)
	if err != nil {
		s.malformed.Add(1)
		s.logger.Warn("dropping unparseable Socket.IO packet", "error", err)
		return true
	}

	switch packet.Type {
	case socketEvent:
		name, argument, err := splitEvent(packet.Data)
		if err != nil {
			s.malformed.Add(1)
			s.logger.Warn("dropping malformed event packet", "error", err)
			return true
		}
		event, err := s.decoder.decode(name, argument)
		if errors.Is(err, errUnknownEvent) {
			s.logger.Debug("ignoring unknown event", "event", name)
			return true
		}
		if err != nil {
			s.malformed.Add(1)
			s.logger.Warn("dropping malformed event", "event", name, "error", err)
			return true
		}
		select {
		case s.events <- event:
			return true
		case <-ctx.Done():
			return false
		}
	case socketDisconnect:
		s.fail(ErrServerClosed)
		return false
	case socketConnectError:
		s.fail(fmt.Errorf("eventstream: server error: %s", connectErrorMessage(packet.Data)))
		return false
	default:
		return true
	}
}
