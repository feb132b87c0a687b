package tcp

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dvkv/lib/store"
	"github.com/ValentinKolb/dvkv/rpc/common"
	"github.com/ValentinKolb/dvkv/rpc/transport"
)

// echoHandler answers every request with "<connID>:<request>" and records the connection events
type echoHandler struct {
	mu     sync.Mutex
	opened []uint64
	closed []uint64
	seen   []string
	delay  time.Duration
}

func (h *echoHandler) Open(connID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opened = append(h.opened, connID)
}

func (h *echoHandler) Handle(connID uint64, req []byte) []byte {
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	h.mu.Lock()
	h.seen = append(h.seen, string(req))
	h.mu.Unlock()
	return []byte(fmt.Sprintf("%d:%s", connID, req))
}

func (h *echoHandler) Close(connID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = append(h.closed, connID)
}

// position returns the index of the last request equal to req, -1 if it was never handled
func (h *echoHandler) position(req string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.seen) - 1; i >= 0; i-- {
		if h.seen[i] == req {
			return i
		}
	}
	return -1
}

func (h *echoHandler) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.opened), len(h.closed)
}

func startServer(t *testing.T, handler transport.IConnHandler, endpoint string) transport.IRPCServerTransport {
	t.Helper()
	server := NewTCPServerTransport()
	server.RegisterHandler(handler)
	if err := server.Listen(common.ServerConfig{Endpoint: endpoint, TimeoutSecond: 5}); err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	t.Cleanup(func() { _ = server.Close() })
	return server
}

func connect(t *testing.T, address string, config common.ClientConfig) transport.IRPCClientTransport {
	t.Helper()
	client := NewTCPClientTransport()
	if err := client.Connect(address, config); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSendAndConnectionEvents(t *testing.T) {
	handler := &echoHandler{}
	server := startServer(t, handler, "127.0.0.1:0")

	client := connect(t, server.Addr(), common.ClientConfig{TimeoutSecond: 5})

	resp, err := client.Send([]byte("hello"))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if string(resp) != "1:hello" {
		t.Errorf("Unexpected response %q", resp)
	}

	// empty payloads are valid frames
	resp, err = client.Send([]byte{})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if string(resp) != "1:" {
		t.Errorf("Unexpected response %q", resp)
	}

	// a second client gets its own connection id
	other := connect(t, server.Addr(), common.ClientConfig{TimeoutSecond: 5})
	resp, err = other.Send([]byte("x"))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if string(resp) != "2:x" {
		t.Errorf("Unexpected response %q", resp)
	}

	_ = other.Close()
	waitFor(t, func() bool {
		_, closed := handler.counts()
		return closed == 1
	})

	opened, _ := handler.counts()
	if opened != 2 {
		t.Errorf("Expected 2 opened connections, got %d", opened)
	}
}

func TestConcurrentSends(t *testing.T) {
	server := startServer(t, &echoHandler{}, "127.0.0.1:0")
	client := connect(t, server.Addr(), common.ClientConfig{TimeoutSecond: 5})

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				req := []byte(fmt.Sprintf("req-%d-%d", i, j))
				resp, err := client.Send(req)
				if err != nil || !bytes.HasSuffix(resp, req) {
					failures.Add(1)
				}
			}
		}(i)
	}
	wg.Wait()

	if failures.Load() > 0 {
		t.Errorf("%d requests got a wrong or no response", failures.Load())
	}
}

func TestLargeFrame(t *testing.T) {
	server := startServer(t, &echoHandler{}, "127.0.0.1:0")
	client := connect(t, server.Addr(), common.ClientConfig{TimeoutSecond: 5})

	large := bytes.Repeat([]byte{'a'}, 1<<20)
	resp, err := client.Send(large)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(resp) != len(large)+2 {
		t.Errorf("Expected %d bytes, got %d", len(large)+2, len(resp))
	}
}

func TestTimeout(t *testing.T) {
	server := startServer(t, &echoHandler{delay: 1500 * time.Millisecond}, "127.0.0.1:0")
	client := connect(t, server.Addr(), common.ClientConfig{TimeoutSecond: 1})

	_, err := client.Send([]byte("slow"))
	if !errors.Is(err, store.ErrTimeout) {
		t.Errorf("Expected timeout error, got %v", err)
	}
}

func TestReconnect(t *testing.T) {
	handler := &echoHandler{}
	server := startServer(t, handler, "127.0.0.1:0")
	address := server.Addr()

	client := connect(t, address, common.ClientConfig{TimeoutSecond: 5, RetryCount: 5})

	var reconnects atomic.Int32
	client.OnReconnect(func(send func([]byte) ([]byte, error)) {
		reconnects.Add(1)
		if _, err := send([]byte("restore")); err != nil {
			t.Errorf("Send from reconnect handler failed: %v", err)
		}
	})

	if _, err := client.Send([]byte("before")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// restart the server on the same address
	if err := server.Close(); err != nil {
		t.Fatalf("Failed to close server: %v", err)
	}
	startServer(t, handler, address)

	var resp []byte
	var err error
	waitFor(t, func() bool {
		resp, err = client.Send([]byte("after"))
		return err == nil
	})

	if !bytes.HasSuffix(resp, []byte("after")) {
		t.Errorf("Unexpected response %q", resp)
	}
	if reconnects.Load() != 1 {
		t.Errorf("Expected 1 reconnect, got %d", reconnects.Load())
	}
}

func TestReconnectHoldsOtherRequests(t *testing.T) {
	handler := &echoHandler{}
	server := startServer(t, handler, "127.0.0.1:0")
	address := server.Addr()

	client := connect(t, address, common.ClientConfig{TimeoutSecond: 5, RetryCount: 5})

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	client.OnReconnect(func(send func([]byte) ([]byte, error)) {
		once.Do(func() { close(started) })
		<-release
		if _, err := send([]byte("restore")); err != nil {
			t.Errorf("Send from reconnect handler failed: %v", err)
		}
	})

	if _, err := client.Send([]byte("before")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := server.Close(); err != nil {
		t.Fatalf("Failed to close server: %v", err)
	}
	startServer(t, handler, address)

	// the first request after the restart reconnects and blocks in the handler
	firstDone := make(chan error, 1)
	go func() {
		deadline := time.Now().Add(5 * time.Second)
		for {
			_, err := client.Send([]byte("first"))
			if err == nil || time.Now().After(deadline) {
				firstDone <- err
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatalf("Reconnect handler was not called")
	}

	secondDone := make(chan error, 1)
	go func() {
		_, err := client.Send([]byte("second"))
		secondDone <- err
	}()

	select {
	case err := <-secondDone:
		t.Fatalf("Request completed while the connection was restored (err=%v)", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Fatalf("First send failed: %v", err)
	}
	if err := <-secondDone; err != nil {
		t.Fatalf("Second send failed: %v", err)
	}

	restore := handler.position("restore")
	if restore < 0 {
		t.Fatalf("Restore request was not handled")
	}
	if second := handler.position("second"); second < restore {
		t.Errorf("Request handled before the connection was restored (second=%d restore=%d)", second, restore)
	}
	if first := handler.position("first"); first < restore {
		t.Errorf("Request handled before the connection was restored (first=%d restore=%d)", first, restore)
	}
}

func TestSendAfterClose(t *testing.T) {
	server := startServer(t, &echoHandler{}, "127.0.0.1:0")
	client := connect(t, server.Addr(), common.ClientConfig{})

	_ = client.Close()
	if _, err := client.Send([]byte("x")); err == nil {
		t.Errorf("Expected error after close")
	}
}
