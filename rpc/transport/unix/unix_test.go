package unix

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/dvkv/rpc/common"
)

type upperHandler struct{}

func (upperHandler) Open(uint64)  {}
func (upperHandler) Close(uint64) {}
func (upperHandler) Handle(_ uint64, req []byte) []byte {
	resp := make([]byte, len(req))
	for i, b := range req {
		if b >= 'a' && b <= 'z' {
			b -= 'a' - 'A'
		}
		resp[i] = b
	}
	return resp
}

func TestUnixRoundTrip(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "dvkv.sock")

	server := NewUnixDefaultServerTransport()
	server.RegisterHandler(upperHandler{})
	if err := server.Listen(common.ServerConfig{Endpoint: socket}); err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer server.Close()

	client := NewUnixClientTransport()
	if err := client.Connect(socket, common.ClientConfig{TimeoutSecond: 5}); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	resp, err := client.Send([]byte("hello"))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if string(resp) != "HELLO" {
		t.Errorf("Unexpected response %q", resp)
	}
}

func TestUnixListenRefusesRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	if err := os.WriteFile(path, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}

	server := NewUnixDefaultServerTransport()
	server.RegisterHandler(upperHandler{})
	if err := server.Listen(common.ServerConfig{Endpoint: path}); err == nil {
		server.Close()
		t.Fatal("Listen should refuse to replace a regular file")
	}
	if content, err := os.ReadFile(path); err != nil || string(content) != "keep" {
		t.Errorf("File was modified: %q, %v", content, err)
	}
}

func TestUnixListenReplacesStaleSocket(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "nested", "dvkv.sock")

	first := NewUnixDefaultServerTransport()
	first.RegisterHandler(upperHandler{})
	if err := first.Listen(common.ServerConfig{Endpoint: socket}); err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	first.Close()

	// a crashed server may leave its socket file behind
	if _, err := os.Stat(socket); os.IsNotExist(err) {
		l, err := (&serverConnector{}).Listen(socket)
		if err != nil {
			t.Fatal(err)
		}
		l.(interface{ SetUnlinkOnClose(bool) }).SetUnlinkOnClose(false)
		l.Close()
	}

	second := NewUnixDefaultServerTransport()
	second.RegisterHandler(upperHandler{})
	if err := second.Listen(common.ServerConfig{Endpoint: socket}); err != nil {
		t.Fatalf("Failed to listen on stale socket: %v", err)
	}
	second.Close()
}
