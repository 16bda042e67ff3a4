// Package session implements the protocol client that owns one child-process
// connection to a target MCP server. It frames inbound bytes into discrete
// messages, correlates concurrent requests by id, enforces per-request
// timeouts, and exposes the protocol's baseline operations.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mcp-probe/internal/command"
	"github.com/mcp-probe/internal/domain"
	"github.com/mcp-probe/internal/protocol"
)

// State represents the session lifecycle state.
type State int32

// Session lifecycle states. Transitions are one-way:
// Disconnected -> Connecting -> Ready -> Closed.
const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateClosed
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options configures session behavior.
type Options struct {
	// CallTimeout bounds every outstanding request.
	CallTimeout time.Duration
	// StartupGrace is a short delay after spawn before the first write, to
	// tolerate slow-starting targets.
	StartupGrace time.Duration
	// ClientName and ClientVersion identify the harness in the handshake.
	ClientName    string
	ClientVersion string
	// NotificationBuffer sizes the notification channel. Notifications are
	// dropped when the buffer is full.
	NotificationBuffer int
	// StderrTailLines bounds the captured diagnostic output.
	StderrTailLines int
}

// DefaultOptions returns session options with production defaults.
func DefaultOptions() Options {
	return Options{
		CallTimeout:        30 * time.Second,
		StartupGrace:       200 * time.Millisecond,
		ClientName:         "mcp-probe",
		ClientVersion:      "v0.1.0",
		NotificationBuffer: 64,
		StderrTailLines:    50,
	}
}

// Notification is a server-initiated message carrying no correlation id.
type Notification struct {
	Method string
	Params json.RawMessage
}

type callOutcome struct {
	result json.RawMessage
	err    error
}

// Session is one live connection to a target server: the child process plus
// all correlation state for the duration of a test run. A session is safe
// for concurrent use by multiple callers.
type Session struct {
	logger *logrus.Logger
	opts   Options

	proc *process

	stdin  io.WriteCloser
	stdout io.Reader

	// writeMu serializes outbound writes; the wire format is one complete
	// line per request.
	writeMu sync.Mutex

	// pendingMu guards pending and closed. Ids are never reused within a
	// session, so a stale timeout cannot resolve a later call.
	pendingMu sync.Mutex
	pending   map[int64]chan callOutcome
	closed    bool
	nextID    atomic.Int64

	state atomic.Int32

	serverInfo *domain.ServerInfo

	toolsMu      sync.RWMutex
	tools        []domain.ToolDescriptor
	toolsFetched bool

	notifications chan Notification

	stderr *stderrCapture

	readerDone chan struct{}
	closeOnce  sync.Once
	wg         sync.WaitGroup
}

// New creates a disconnected session.
func New(logger *logrus.Logger, opts Options) *Session {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.NotificationBuffer <= 0 {
		opts.NotificationBuffer = 64
	}
	if opts.StderrTailLines <= 0 {
		opts.StderrTailLines = 50
	}
	if opts.ClientName == "" {
		opts.ClientName = "mcp-probe"
	}

	return &Session{
		logger:        logger,
		opts:          opts,
		pending:       make(map[int64]chan callOutcome),
		notifications: make(chan Notification, opts.NotificationBuffer),
		readerDone:    make(chan struct{}),
	}
}

// Connect spawns the target process described by spec and attaches the
// session to its standard streams. Fails with *domain.LaunchError when the
// process cannot be started.
func (s *Session) Connect(ctx context.Context, spec *command.CommandSpec) error {
	if State(s.state.Load()) != StateDisconnected {
		return fmt.Errorf("%w: connect is only valid on a fresh session", domain.ErrNotReady)
	}

	proc, err := launch(spec)
	if err != nil {
		return &domain.LaunchError{Command: spec.String(), Err: err}
	}

	s.logger.WithFields(logrus.Fields{
		"executable": spec.Executable,
		"script":     spec.ScriptPath,
		"pid":        proc.pid(),
	}).Info("Target process launched")

	s.attach(proc.stdin, proc.stdout, proc.stderr)
	s.proc = proc

	// Give slow-starting targets a moment before the first write.
	if s.opts.StartupGrace > 0 {
		select {
		case <-time.After(s.opts.StartupGrace):
		case <-ctx.Done():
			s.Close()
			return ctx.Err()
		}
	}

	return nil
}

// attach wires the session to an already-open pair of streams and starts
// the reader and diagnostics goroutines. Used by Connect and, directly, by
// tests running an in-process fake target.
func (s *Session) attach(stdin io.WriteCloser, stdout, stderr io.Reader) {
	s.stdin = stdin
	s.stdout = stdout
	s.stderr = newStderrCapture(s.logger, s.opts.StderrTailLines)
	s.state.Store(int32(StateConnecting))

	s.wg.Add(1)
	go s.readLoop()

	if stderr != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.stderr.run(stderr)
		}()
	}
}

// Initialize performs the protocol handshake. Valid only once, directly
// after Connect. A malformed handshake response is a fatal ProtocolError.
func (s *Session) Initialize(ctx context.Context) (*domain.ServerInfo, error) {
	if State(s.state.Load()) != StateConnecting {
		return nil, fmt.Errorf("%w: handshake requires a connected, unhandshaked session", domain.ErrNotReady)
	}

	params := initializeParams{
		ProtocolVersion: protocol.Version,
		Capabilities:    map[string]interface{}{},
		ClientInfo: implementation{
			Name:    s.opts.ClientName,
			Version: s.opts.ClientVersion,
		},
	}

	raw, err := s.roundTrip(ctx, protocol.MethodInitialize, params)
	if err != nil {
		return nil, err
	}

	var result initializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &domain.ProtocolError{Method: protocol.MethodInitialize, Message: fmt.Sprintf("malformed handshake result: %v", err)}
	}
	if result.ServerInfo == nil {
		return nil, &domain.ProtocolError{Method: protocol.MethodInitialize, Message: "handshake result is missing serverInfo"}
	}

	info := &domain.ServerInfo{
		Name:            result.ServerInfo.Name,
		Version:         result.ServerInfo.Version,
		ProtocolVersion: result.ProtocolVersion,
	}
	s.serverInfo = info
	s.state.Store(int32(StateReady))

	// The protocol expects the client to confirm before issuing calls.
	if err := s.writeMessage(protocol.NewNotification(protocol.NotificationInitialized, nil)); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"server_name":      info.Name,
		"server_version":   info.Version,
		"protocol_version": info.ProtocolVersion,
	}).Info("Handshake complete")

	return info, nil
}

// ServerInfo returns the handshake result, or nil before Initialize.
func (s *Session) ServerInfo() *domain.ServerInfo {
	return s.serverInfo
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// ListTools returns the tool descriptors discovered from the target. The
// snapshot is cached for the session's lifetime; use RediscoverTools to
// refresh it.
func (s *Session) ListTools(ctx context.Context) ([]domain.ToolDescriptor, error) {
	s.toolsMu.RLock()
	if s.toolsFetched {
		tools := s.tools
		s.toolsMu.RUnlock()
		return tools, nil
	}
	s.toolsMu.RUnlock()

	return s.RediscoverTools(ctx)
}

// RediscoverTools re-runs tool discovery and replaces the cached snapshot.
func (s *Session) RediscoverTools(ctx context.Context) ([]domain.ToolDescriptor, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}

	raw, err := s.roundTrip(ctx, protocol.MethodToolsList, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Tools []domain.ToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &domain.ProtocolError{Method: protocol.MethodToolsList, Message: fmt.Sprintf("malformed tool list: %v", err)}
	}

	s.toolsMu.Lock()
	s.tools = result.Tools
	s.toolsFetched = true
	s.toolsMu.Unlock()

	s.logger.WithField("tool_count", len(result.Tools)).Debug("Tool discovery complete")
	return result.Tools, nil
}

// CallTool invokes one tool with the given arguments. A protocol-level error
// field from the remote surfaces as *domain.RemoteError; a missing reply
// surfaces as domain.ErrTimeout.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]interface{}) (*domain.ToolResult, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}

	params := map[string]interface{}{
		"name":      name,
		"arguments": args,
	}
	raw, err := s.roundTrip(ctx, protocol.MethodToolsCall, params)
	if err != nil {
		return nil, err
	}

	var result domain.ToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &domain.ProtocolError{Method: protocol.MethodToolsCall, Message: fmt.Sprintf("malformed tool result: %v", err)}
	}
	result.Raw = raw

	return &result, nil
}

// Notifications returns the channel of server-initiated notifications.
func (s *Session) Notifications() <-chan Notification {
	return s.notifications
}

// StderrTail returns the most recent diagnostic lines from the target's
// secondary output stream.
func (s *Session) StderrTail() []string {
	if s.stderr == nil {
		return nil
	}
	return s.stderr.tail()
}

// PendingCalls returns the number of calls awaiting replies.
func (s *Session) PendingCalls() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pending)
}

// Close terminates the child process and rejects every still-pending call
// with domain.ErrSessionClosed. Safe to call multiple times and on every
// exit path.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		s.rejectPending(domain.ErrSessionClosed)

		if s.stdin != nil {
			s.stdin.Close()
		}
		if s.proc != nil {
			if err := s.proc.shutdown(2 * time.Second); err != nil {
				s.logger.WithError(err).Debug("Target process shutdown reported an error")
			}
		}

		s.wg.Wait()
		s.logger.Debug("Session closed")
	})
	return nil
}

func (s *Session) requireReady() error {
	switch State(s.state.Load()) {
	case StateReady:
		return nil
	case StateClosed:
		return domain.ErrSessionClosed
	default:
		return domain.ErrNotReady
	}
}

// roundTrip issues one correlated request and suspends the caller until the
// matching response, the per-call timeout, context cancellation, or session
// closure, whichever occurs first.
func (s *Session) roundTrip(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	id := s.nextID.Add(1)
	ch := make(chan callOutcome, 1)

	// Register the sink before writing so a fast reply cannot race past it.
	s.pendingMu.Lock()
	if s.closed {
		s.pendingMu.Unlock()
		return nil, domain.ErrSessionClosed
	}
	s.pending[id] = ch
	s.pendingMu.Unlock()

	if err := s.writeMessage(protocol.NewRequest(id, method, params)); err != nil {
		s.removePending(id)
		return nil, err
	}

	timer := time.NewTimer(s.opts.CallTimeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		return out.result, out.err
	case <-timer.C:
		s.removePending(id)
		return nil, fmt.Errorf("%w: no reply to %s (id %d) within %s", domain.ErrTimeout, method, id, s.opts.CallTimeout)
	case <-ctx.Done():
		s.removePending(id)
		return nil, ctx.Err()
	}
}

func (s *Session) writeMessage(msg interface{}) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if State(s.state.Load()) == StateClosed {
		return domain.ErrSessionClosed
	}
	if _, err := s.stdin.Write(data); err != nil {
		if State(s.state.Load()) == StateClosed {
			return domain.ErrSessionClosed
		}
		return fmt.Errorf("failed to write request: %w", err)
	}
	return nil
}

// readLoop is the single owner of the inbound stream. It frames bytes into
// lines, dispatches responses to their sinks, and routes notifications.
// When the stream ends, remaining pending calls are rejected.
func (s *Session) readLoop() {
	defer s.wg.Done()
	defer close(s.readerDone)

	framer := protocol.NewLineFramer()
	buf := make([]byte, 32*1024)

	for {
		n, err := s.stdout.Read(buf)
		if n > 0 {
			for _, line := range framer.Push(buf[:n]) {
				s.dispatch(line)
			}
		}
		if err != nil {
			if err != io.EOF {
				s.logger.WithError(err).Debug("Target stdout read ended")
			}
			break
		}
	}

	// Transport gone: nothing outstanding can complete now.
	if State(s.state.Load()) != StateClosed {
		s.state.Store(int32(StateClosed))
	}
	s.rejectPending(domain.ErrSessionClosed)
}

func (s *Session) dispatch(line []byte) {
	msg, err := protocol.Decode(line)
	if err != nil {
		// Garbage output from a misbehaving target is expected; drop it.
		s.logger.WithField("line_length", len(line)).Debug("Discarded malformed wire line")
		return
	}

	switch {
	case msg.IsResponse():
		s.resolve(msg)
	case msg.IsNotification():
		select {
		case s.notifications <- Notification{Method: msg.Method, Params: msg.Params}:
		default:
			s.logger.WithField("method", msg.Method).Debug("Notification buffer full, dropped")
		}
	default:
		// Requests from the target are outside the supported protocol shape.
		s.logger.Debug("Discarded message with unsupported shape")
	}
}

// resolve completes the pending call matching the response id. Unmatched
// ids (already timed out or never issued) are dropped without effect.
func (s *Session) resolve(msg *protocol.Message) {
	s.pendingMu.Lock()
	ch, ok := s.pending[*msg.ID]
	if ok {
		delete(s.pending, *msg.ID)
	}
	s.pendingMu.Unlock()

	if !ok {
		s.logger.WithField("id", *msg.ID).Debug("Dropped response for unknown or expired id")
		return
	}

	out := callOutcome{result: msg.Result}
	if msg.Error != nil {
		out.err = &domain.RemoteError{
			Code:    msg.Error.Code,
			Message: msg.Error.Message,
			Data:    msg.Error.Data,
		}
	}
	ch <- out
}

func (s *Session) removePending(id int64) {
	s.pendingMu.Lock()
	delete(s.pending, id)
	s.pendingMu.Unlock()
}

// rejectPending atomically fails every outstanding call.
func (s *Session) rejectPending(err error) {
	s.pendingMu.Lock()
	s.closed = true
	chans := make([]chan callOutcome, 0, len(s.pending))
	for id, ch := range s.pending {
		chans = append(chans, ch)
		delete(s.pending, id)
	}
	s.pendingMu.Unlock()

	for _, ch := range chans {
		ch <- callOutcome{err: err}
	}
}

type implementation struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type initializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ClientInfo      implementation         `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	ServerInfo      *implementation `json:"serverInfo"`
	Capabilities    json.RawMessage `json:"capabilities,omitempty"`
}
