package network

import (
	"testing"
	"time"
)

func TestNewClientNilConfigUsesDefaults(t *testing.T) {
	client := NewClient(nil)
	if client.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", client.Timeout)
	}
	if client.Transport == nil {
		t.Fatal("client has no transport")
	}
}

func TestGetStreamClient(t *testing.T) {
	client := GetStreamClient(45 * time.Second)

	// Streams can run for a long time; only stalls are bounded.
	if client.Timeout != 0 {
		t.Errorf("Timeout = %v, want 0 for stream client", client.Timeout)
	}
}

func TestGetStreamClientZeroHeaderTimeoutKeepsDefault(t *testing.T) {
	client := GetStreamClient(0)
	if client.Timeout != 0 {
		t.Errorf("Timeout = %v, want 0", client.Timeout)
	}
}
