package broadcast

import (
	"sync"
	"testing"
	"time"

	"github.com/m3ntallyilll/rrfff/pkg/types"
)

func startHub(t *testing.T) *BroadcastService {
	t.Helper()
	hub := NewBroadcastService()
	var wg sync.WaitGroup
	wg.Add(1)
	go hub.Start(&wg)
	t.Cleanup(func() {
		hub.Close()
		wg.Wait()
	})
	return hub
}

func TestBroadcastReachesClient(t *testing.T) {
	hub := startHub(t)

	client := hub.RegisterClient(nil)
	hub.SendLog("tts", "synthesis started", GetTimeStr())

	select {
	case entry := <-client.Send:
		if entry.ToolName != "tts" {
			t.Errorf("tool name = %q, want tts", entry.ToolName)
		}
		if entry.Type != "log" {
			t.Errorf("type = %q, want log", entry.Type)
		}
		if entry.Message != "synthesis started" {
			t.Errorf("message = %q", entry.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast never arrived")
	}
}

func TestUnregisterClosesChannel(t *testing.T) {
	hub := startHub(t)

	client := hub.RegisterClient(nil)
	hub.UnregisterClient(client)

	select {
	case _, open := <-client.Send:
		if open {
			t.Error("received a message on an unregistered client")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel never closed after unregister")
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := startHub(t)

	client := hub.RegisterClient(nil)

	// One more than the client buffer; the overflowing send must evict
	// the client instead of stalling the hub. Feed the hub channel
	// directly so none of the 257 entries are shed on the way in.
	for i := 0; i < 257; i++ {
		hub.broadcastChan <- types.ToolLog{ToolName: "worker", Message: "tick", Type: "message", Timestamp: GetTimeStr()}
	}

	received := 0
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, open := <-client.Send:
			if !open {
				if received > 256 {
					t.Errorf("received %d messages, buffer holds 256", received)
				}
				return
			}
			received++
		case <-deadline:
			t.Fatalf("client channel never closed, received %d", received)
		}
	}
}
