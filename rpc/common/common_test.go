package common

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ValentinKolb/dvkv/lib/store"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		raw     string
		want    URI
		wantErr bool
	}{
		{raw: "tcp://localhost:8080/users", want: URI{SchemeTCP, "localhost:8080", "users"}},
		{raw: "TCP://10.0.0.1:1/db", want: URI{SchemeTCP, "10.0.0.1:1", "db"}},
		{raw: "tcp://localhost:8080", want: URI{SchemeTCP, "localhost:8080", ""}},
		{raw: "unix:///tmp/dvkv.sock/users", want: URI{SchemeUnix, "/tmp/dvkv.sock", "users"}},
		{raw: "unix:///tmp/dvkv.sock/", want: URI{SchemeUnix, "/tmp/dvkv.sock", ""}},
		{raw: "localhost:8080/users", wantErr: true},
		{raw: "http://localhost/users", wantErr: true},
		{raw: "tcp:///users", wantErr: true},
		{raw: "tcp://host:1/a/b", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseURI(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseURI(%q) expected error, got %+v", tt.raw, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseURI(%q) unexpected error: %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseURI(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
	}
}

func TestURIRoundTrip(t *testing.T) {
	for _, raw := range []string{"tcp://localhost:8080/users", "unix:///tmp/dvkv.sock/users"} {
		u, err := ParseURI(raw)
		if err != nil {
			t.Fatalf("ParseURI(%q): %v", raw, err)
		}
		if u.String() != raw {
			t.Errorf("Expected %q, got %q", raw, u.String())
		}
	}

	u, _ := ParseURI("tcp://localhost:8080/users")
	if u.Endpoint() != "tcp://localhost:8080" {
		t.Errorf("Unexpected endpoint %q", u.Endpoint())
	}
	if got := u.WithDatabase("orders").String(); got != "tcp://localhost:8080/orders" {
		t.Errorf("Unexpected uri %q", got)
	}
}

func TestValueCells(t *testing.T) {
	tests := []struct {
		name  string
		value []byte
		found bool
	}{
		{"absent", nil, false},
		{"empty", []byte{}, true},
		{"value", []byte("hello"), true},
		{"zero byte", []byte{0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, found, err := DecodeCell(EncodeCell(tt.value, tt.found))
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if found != tt.found {
				t.Errorf("Expected found=%v, got %v", tt.found, found)
			}
			if found && !bytes.Equal(value, tt.value) {
				t.Errorf("Expected %q, got %q", tt.value, value)
			}
		})
	}

	if _, _, err := DecodeCell(nil); !errors.Is(err, store.ErrMalformedRequest) {
		t.Errorf("Expected malformed error for empty cell, got %v", err)
	}
	if _, _, err := DecodeCell([]byte{7}); !errors.Is(err, store.ErrMalformedRequest) {
		t.Errorf("Expected malformed error for invalid marker, got %v", err)
	}
}

func TestIntegerCodecs(t *testing.T) {
	for _, v := range []int64{-1, 0, 1, 1 << 40} {
		got, err := DecodeInt64(EncodeInt64(v))
		if err != nil || got != v {
			t.Errorf("Int64 %d did not round trip: %d, %v", v, got, err)
		}
	}
	if _, err := DecodeInt64([]byte{1}); !errors.Is(err, store.ErrMalformedRequest) {
		t.Errorf("Expected malformed error, got %v", err)
	}

	for _, v := range []bool{true, false} {
		got, err := DecodeBool(EncodeBool(v))
		if err != nil || got != v {
			t.Errorf("Bool %v did not round trip: %v, %v", v, got, err)
		}
	}
	if _, err := DecodeBool(nil); err == nil {
		t.Errorf("Expected error for empty bool")
	}
}

func TestErrorResponse(t *testing.T) {
	resp := NewErrorResponse(MsgTBatchCommit, store.ErrNotInBatchMode)
	if resp.Status != StatusError || resp.MsgType != MsgTBatchCommit {
		t.Fatalf("Unexpected response %+v", resp)
	}

	err := resp.Err()
	if !errors.Is(err, store.ErrNotInBatchMode) {
		t.Errorf("Expected NotInBatchMode, got %v", err)
	}
	if !strings.Contains(err.Error(), "not in batch mode") {
		t.Errorf("Expected message to survive, got %q", err.Error())
	}

	// plain errors are reported as server errors
	err = NewErrorResponse(MsgTGet, fmt.Errorf("boom")).Err()
	if store.CodeOf(err) != store.RetCServerError {
		t.Errorf("Expected ServerError, got %s", store.CodeOf(err))
	}

	// responses without a kind byte
	err = (&Message{Status: StatusError, Args: [][]byte{[]byte("old")}}).Err()
	if store.CodeOf(err) != store.RetCServerError {
		t.Errorf("Expected ServerError, got %s", store.CodeOf(err))
	}

	if NewResponse(MsgTGet).Err() != nil {
		t.Errorf("Expected no error for successful response")
	}
}

func TestMessageTypeNames(t *testing.T) {
	seen := map[string]bool{}
	for _, msgType := range MessageTypes() {
		name := msgType.String()
		if name == "unknown" || seen[name] {
			t.Errorf("Message type %d has an invalid or duplicate name %q", msgType, name)
		}
		seen[name] = true

		parsed, err := ParseMessageType(name)
		if err != nil || parsed != msgType {
			t.Errorf("ParseMessageType(%q) = %v, %v", name, parsed, err)
		}
	}

	if _, err := ParseMessageType("nope"); err == nil {
		t.Errorf("Expected error for unknown name")
	}
	if MessageType(200).String() != "unknown" {
		t.Errorf("Expected unknown for out of range type")
	}
}

func TestParseFanOutMode(t *testing.T) {
	tests := map[string]FanOutMode{
		"":            FanOutBestEffort,
		"best-effort": FanOutBestEffort,
		"STRICT":      FanOutStrict,
	}
	for in, want := range tests {
		got, err := ParseFanOutMode(in)
		if err != nil || got != want {
			t.Errorf("ParseFanOutMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFanOutMode("sometimes"); err == nil {
		t.Errorf("Expected error for invalid mode")
	}
}

func TestParseLogLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "warning", "error", ""} {
		if _, err := ParseLogLevel(level); err != nil {
			t.Errorf("ParseLogLevel(%q): %v", level, err)
		}
	}
	if _, err := ParseLogLevel("loud"); err == nil {
		t.Errorf("Expected error for invalid level")
	}
}

func TestConfigString(t *testing.T) {
	sc := ServerConfig{
		Transport: "tcp",
		Endpoint:  ":8080",
		Engine:    "leveldb",
		Clusters:  map[string][]string{"users": {"tcp://a:1/users", "tcp://b:1/users"}},
	}
	out := sc.String()
	for _, want := range []string{"RPC SERVER", ":8080", "CLUSTERS", "tcp://b:1/users", "disabled"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected server config output to contain %q", want)
		}
	}

	cc := ClientConfig{FanOutTimeoutSecond: 3}
	out = cc.String()
	for _, want := range []string{"best-effort", "3 sec"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected client config output to contain %q", want)
		}
	}
}
