package device

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rionhunter/macrokit/internal/input"
)

// transcriberStub serves canned transcription frames over a websocket.
func transcriberStub(t *testing.T, frames []transcriptFrame, keepOpen bool) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		for _, f := range frames {
			if err := conn.WriteJSON(f); err != nil {
				return
			}
		}
		if keepOpen {
			// Hold the connection until the client goes away.
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}
		conn.Close()
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestVoiceEmitsFinalTranscriptions(t *testing.T) {
	srv := transcriberStub(t, []transcriptFrame{
		{Text: "wait five", Final: false},
		{Text: "wait 5 seconds", Final: true},
		{Text: "", Final: true},
		{Text: "repeat 3 times", Final: true},
	}, false)
	defer srv.Close()

	dev, err := NewVoice("mic-1", wsURL(srv))
	if err != nil {
		t.Fatalf("NewVoice() error = %v", err)
	}

	var events []input.Event
	done := make(chan error, 1)
	go func() {
		done <- dev.Listen(context.Background(), func(ev input.Event) {
			events = append(events, ev)
		})
	}()

	select {
	case err := <-done:
		// Server hangup mid-session counts as device loss.
		if err == nil {
			t.Error("server hangup should report device lost")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not finish")
	}

	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2: %v", len(events), events)
	}
	if events[0].Text != "wait 5 seconds" || events[0].Kind != input.SpeechTranscribed {
		t.Errorf("events[0] = %v", events[0])
	}
	if events[1].Text != "repeat 3 times" {
		t.Errorf("events[1] = %v", events[1])
	}
}

func TestVoiceCancelIsClean(t *testing.T) {
	srv := transcriberStub(t, nil, true)
	defer srv.Close()

	dev, err := NewVoice("mic-1", wsURL(srv))
	if err != nil {
		t.Fatalf("NewVoice() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- dev.Listen(ctx, func(input.Event) {})
	}()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("cancelled Listen() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop on cancel")
	}
}

func TestVoiceDialFailureIsUnavailable(t *testing.T) {
	_, err := NewVoice("mic-1", "ws://127.0.0.1:1/nope")
	if err == nil {
		t.Fatal("NewVoice() to a dead address should fail")
	}
}

func TestVoiceRequiresAddr(t *testing.T) {
	if _, err := NewVoice("mic-1", ""); err == nil {
		t.Error("NewVoice with empty addr should fail")
	}
}
