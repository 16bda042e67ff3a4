package session

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-probe/internal/domain"
	"github.com/mcp-probe/internal/protocol"
)

// fakeTarget is an in-process stand-in for a target server. It reads
// requests line by line and lets each test decide how (and whether) to
// reply, including out of order, late, or with garbage.
type fakeTarget struct {
	writeMu sync.Mutex
	out     *io.PipeWriter
}

type fakeHandler func(ft *fakeTarget, msg *protocol.Message)

func (ft *fakeTarget) writeLine(obj interface{}) {
	data, err := json.Marshal(obj)
	if err != nil {
		panic(err)
	}
	ft.writeMu.Lock()
	defer ft.writeMu.Unlock()
	ft.out.Write(append(data, '\n'))
}

func (ft *fakeTarget) writeRaw(line string) {
	ft.writeMu.Lock()
	defer ft.writeMu.Unlock()
	ft.out.Write([]byte(line))
}

func (ft *fakeTarget) respondResult(id int64, result interface{}) {
	resp, err := protocol.NewResponse(id, result)
	if err != nil {
		panic(err)
	}
	ft.writeLine(resp)
}

func (ft *fakeTarget) respondError(id int64, code int, message string) {
	ft.writeLine(protocol.NewErrorResponse(id, code, message))
}

func (ft *fakeTarget) notify(method string) {
	ft.writeLine(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  map[string]interface{}{},
	})
}

// handshakeHandler answers initialize; everything else is delegated.
func handshakeHandler(next fakeHandler) fakeHandler {
	return func(ft *fakeTarget, msg *protocol.Message) {
		if msg.Method == protocol.MethodInitialize {
			ft.respondResult(*msg.ID, map[string]interface{}{
				"protocolVersion": protocol.Version,
				"serverInfo":      map[string]interface{}{"name": "fake-target", "version": "1.0.0"},
				"capabilities":    map[string]interface{}{},
			})
			return
		}
		if msg.ID == nil {
			return // ignore client notifications
		}
		if next != nil {
			next(ft, msg)
		}
	}
}

// newFakeSession wires a session to a fake target over in-memory pipes and
// returns both. The session is closed when the test ends.
func newFakeSession(t *testing.T, opts Options, handler fakeHandler) (*Session, *fakeTarget) {
	t.Helper()

	toTargetR, toTargetW := io.Pipe()   // session stdin -> target
	fromTargetR, fromTargetW := io.Pipe() // target -> session stdout

	ft := &fakeTarget{out: fromTargetW}

	go func() {
		defer fromTargetW.Close()
		scanner := bufio.NewScanner(toTargetR)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			msg, err := protocol.Decode(line)
			if err != nil {
				continue
			}
			handler(ft, msg)
		}
	}()

	logger, _ := test.NewNullLogger()
	s := New(logger, opts)
	s.attach(toTargetW, fromTargetR, nil)

	t.Cleanup(func() { s.Close() })
	return s, ft
}

func readyFakeSession(t *testing.T, opts Options, handler fakeHandler) (*Session, *fakeTarget) {
	t.Helper()

	s, ft := newFakeSession(t, opts, handshakeHandler(handler))
	info, err := s.Initialize(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fake-target", info.Name)
	require.Equal(t, StateReady, s.State())
	return s, ft
}

func TestCallBeforeHandshakeFailsWithNotReady(t *testing.T) {
	s, _ := newFakeSession(t, DefaultOptions(), handshakeHandler(nil))

	_, err := s.CallTool(context.Background(), "anything", nil)
	assert.True(t, errors.Is(err, domain.ErrNotReady))

	_, err = s.ListTools(context.Background())
	assert.True(t, errors.Is(err, domain.ErrNotReady))
}

func TestHandshakeMalformedResultIsProtocolError(t *testing.T) {
	s, _ := newFakeSession(t, DefaultOptions(), func(ft *fakeTarget, msg *protocol.Message) {
		if msg.Method == protocol.MethodInitialize {
			ft.respondResult(*msg.ID, map[string]interface{}{"protocolVersion": protocol.Version})
		}
	})

	_, err := s.Initialize(context.Background())
	var protoErr *domain.ProtocolError
	require.True(t, errors.As(err, &protoErr))
	assert.NotEqual(t, StateReady, s.State())
}

func TestToolDiscoveryAndCaching(t *testing.T) {
	listCalls := 0
	s, _ := readyFakeSession(t, DefaultOptions(), func(ft *fakeTarget, msg *protocol.Message) {
		if msg.Method == protocol.MethodToolsList {
			listCalls++
			ft.respondResult(*msg.ID, map[string]interface{}{
				"tools": []map[string]interface{}{
					{"name": "echo", "description": "echoes input", "inputSchema": map[string]interface{}{"type": "object"}},
					{"name": "add"},
				},
			})
		}
	})

	tools, err := s.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "echo", tools[0].Name)

	// Second call must come from the cached snapshot.
	_, err = s.ListTools(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, listCalls)

	// Explicit re-discovery refreshes.
	_, err = s.RediscoverTools(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, listCalls)
}

func TestEchoRoundTripPreservesArguments(t *testing.T) {
	s, _ := readyFakeSession(t, DefaultOptions(), func(ft *fakeTarget, msg *protocol.Message) {
		if msg.Method == protocol.MethodToolsCall {
			var params struct {
				Name      string                 `json:"name"`
				Arguments map[string]interface{} `json:"arguments"`
			}
			if err := json.Unmarshal(msg.Params, &params); err != nil {
				return
			}
			argText, _ := json.Marshal(params.Arguments)
			ft.respondResult(*msg.ID, map[string]interface{}{
				"content": []map[string]interface{}{{"type": "text", "text": string(argText)}},
			})
		}
	})

	result, err := s.CallTool(context.Background(), "echo", map[string]interface{}{"a": 1, "b": 2})
	require.NoError(t, err)

	var echoed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(result.Text()), &echoed))
	assert.Equal(t, map[string]interface{}{"a": float64(1), "b": float64(2)}, echoed)
}

func TestConcurrentCallsResolveByIDWithReversedReplies(t *testing.T) {
	const n = 16

	// Collect a full batch of requests, then answer them in reverse arrival
	// order. Every caller must still receive its own payload.
	var mu sync.Mutex
	var batch []*protocol.Message

	s, _ := readyFakeSession(t, DefaultOptions(), func(ft *fakeTarget, msg *protocol.Message) {
		if msg.Method != protocol.MethodToolsCall {
			return
		}
		mu.Lock()
		batch = append(batch, msg)
		ready := len(batch) == n
		mu.Unlock()
		if !ready {
			return
		}
		mu.Lock()
		pending := batch
		batch = nil
		mu.Unlock()
		for i := len(pending) - 1; i >= 0; i-- {
			req := pending[i]
			var params struct {
				Arguments map[string]interface{} `json:"arguments"`
			}
			json.Unmarshal(req.Params, &params)
			ft.respondResult(*req.ID, map[string]interface{}{
				"content": []map[string]interface{}{
					{"type": "text", "text": fmt.Sprintf("%v", params.Arguments["seq"])},
				},
			})
		}
	})

	var wg sync.WaitGroup
	errs := make([]error, n)
	texts := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(seq int) {
			defer wg.Done()
			result, err := s.CallTool(context.Background(), "echo", map[string]interface{}{"seq": seq})
			errs[seq] = err
			if err == nil {
				texts[seq] = result.Text()
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf("%d", i), texts[i], "call %d received another call's response", i)
	}
	assert.Zero(t, s.PendingCalls())
}

func TestCallTimeoutAndNoPendingLeak(t *testing.T) {
	opts := DefaultOptions()
	opts.CallTimeout = 50 * time.Millisecond

	s, _ := readyFakeSession(t, opts, func(ft *fakeTarget, msg *protocol.Message) {
		// Swallow tool calls: no reply ever arrives.
	})

	before := s.PendingCalls()
	start := time.Now()
	_, err := s.CallTool(context.Background(), "slow", nil)
	elapsed := time.Since(start)

	assert.True(t, errors.Is(err, domain.ErrTimeout))
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Equal(t, before, s.PendingCalls())
}

func TestLateReplyAfterTimeoutIsDropped(t *testing.T) {
	opts := DefaultOptions()
	opts.CallTimeout = 30 * time.Millisecond

	s, _ := readyFakeSession(t, opts, func(ft *fakeTarget, msg *protocol.Message) {
		if msg.Method == protocol.MethodToolsCall {
			id := *msg.ID
			go func() {
				time.Sleep(100 * time.Millisecond)
				ft.respondResult(id, map[string]interface{}{
					"content": []map[string]interface{}{{"type": "text", "text": "too late"}},
				})
			}()
		}
	})

	_, err := s.CallTool(context.Background(), "slow", nil)
	require.True(t, errors.Is(err, domain.ErrTimeout))

	// The stale response must not resolve anything once it arrives.
	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, s.PendingCalls())
	assert.Equal(t, StateReady, s.State())
}

func TestRemoteErrorSurfaces(t *testing.T) {
	s, _ := readyFakeSession(t, DefaultOptions(), func(ft *fakeTarget, msg *protocol.Message) {
		if msg.Method == protocol.MethodToolsCall {
			ft.respondError(*msg.ID, protocol.InvalidParams, "missing required argument")
		}
	})

	_, err := s.CallTool(context.Background(), "echo", nil)
	var remote *domain.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, protocol.InvalidParams, remote.Code)
	assert.Contains(t, remote.Message, "missing required argument")
}

func TestCloseRejectsPendingCalls(t *testing.T) {
	s, _ := readyFakeSession(t, DefaultOptions(), func(ft *fakeTarget, msg *protocol.Message) {
		// Never reply; the call stays pending until Close.
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := s.CallTool(context.Background(), "hang", nil)
		errCh <- err
	}()

	// Wait until the call is registered before tearing down.
	require.Eventually(t, func() bool { return s.PendingCalls() == 1 }, time.Second, 5*time.Millisecond)
	s.Close()

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, domain.ErrSessionClosed))
	case <-time.After(time.Second):
		t.Fatal("pending call was not rejected on close")
	}

	_, err := s.CallTool(context.Background(), "after", nil)
	assert.True(t, errors.Is(err, domain.ErrSessionClosed))
	assert.Equal(t, StateClosed, s.State())
}

func TestMalformedLinesAreDiscardedSilently(t *testing.T) {
	s, ft := readyFakeSession(t, DefaultOptions(), func(ft *fakeTarget, msg *protocol.Message) {
		if msg.Method == protocol.MethodToolsCall {
			// Garbage first, then the real reply.
			ft.writeRaw("not json at all\n")
			ft.writeRaw("{\"half\": \n")
			ft.respondResult(*msg.ID, map[string]interface{}{
				"content": []map[string]interface{}{{"type": "text", "text": "ok"}},
			})
		}
	})
	_ = ft

	result, err := s.CallTool(context.Background(), "echo", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Text())
}

func TestNotificationsAreRouted(t *testing.T) {
	s, ft := readyFakeSession(t, DefaultOptions(), nil)

	ft.notify("notifications/progress")

	select {
	case note := <-s.Notifications():
		assert.Equal(t, "notifications/progress", note.Method)
	case <-time.After(time.Second):
		t.Fatal("notification was not delivered")
	}
}

func TestBestEffortDiscoveryCollapsesToUnsupported(t *testing.T) {
	s, _ := readyFakeSession(t, DefaultOptions(), func(ft *fakeTarget, msg *protocol.Message) {
		switch msg.Method {
		case protocol.MethodResourcesList:
			ft.respondError(*msg.ID, protocol.MethodNotFound, "Method not found")
		case protocol.MethodPromptsList:
			ft.respondResult(*msg.ID, map[string]interface{}{
				"prompts": []map[string]interface{}{{"name": "greeting"}},
			})
		}
	})

	resources, err := s.ListResources(context.Background())
	require.NoError(t, err)
	assert.False(t, resources.Supported)
	assert.Contains(t, resources.Reason, "Method not found")

	prompts, err := s.ListPrompts(context.Background())
	require.NoError(t, err)
	assert.True(t, prompts.Supported)
	require.Len(t, prompts.Prompts, 1)
	assert.Equal(t, "greeting", prompts.Prompts[0].Name)
}

func TestBestEffortDiscoveryDoesNotMaskTimeouts(t *testing.T) {
	opts := DefaultOptions()
	opts.CallTimeout = 40 * time.Millisecond

	s, _ := readyFakeSession(t, opts, func(ft *fakeTarget, msg *protocol.Message) {
		// resources/list never answered: a genuine timeout, not a
		// capability gap.
	})

	_, err := s.ListResources(context.Background())
	assert.True(t, errors.Is(err, domain.ErrTimeout))
}

func TestRequestIDsAreStrictlyIncreasing(t *testing.T) {
	var mu sync.Mutex
	var seen []int64

	s, _ := readyFakeSession(t, DefaultOptions(), func(ft *fakeTarget, msg *protocol.Message) {
		if msg.Method == protocol.MethodToolsCall {
			mu.Lock()
			seen = append(seen, *msg.ID)
			mu.Unlock()
			ft.respondResult(*msg.ID, map[string]interface{}{"content": []map[string]interface{}{}})
		}
	})

	for i := 0; i < 5; i++ {
		_, err := s.CallTool(context.Background(), "echo", nil)
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 5)
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i], seen[i-1])
	}
}
