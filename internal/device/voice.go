package device

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rionhunter/macrokit/internal/input"
)

// VoiceDevice receives speech transcriptions from an external transcriber
// process over a websocket connection.
//
// The transcriber sends JSON frames {"text": "...", "final": true}. Only
// final frames with non-empty text become SpeechTranscribed events;
// interim hypotheses are dropped.
type VoiceDevice struct {
	id    string
	conn  *websocket.Conn
	state stateVal

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// transcriptFrame is the wire format from the transcriber.
type transcriptFrame struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// NewVoice dials the transcriber at addr (a ws:// or wss:// URL).
func NewVoice(id, addr string) (*VoiceDevice, error) {
	if addr == "" {
		return nil, fmt.Errorf("%w: voice %q: no transcriber address", ErrUnavailable, id)
	}
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: voice %q: %v", ErrUnavailable, id, err)
	}
	return &VoiceDevice{id: id, conn: conn}, nil
}

// NewVoiceWithConn wraps an established websocket connection.
func NewVoiceWithConn(id string, conn *websocket.Conn) *VoiceDevice {
	return &VoiceDevice{id: id, conn: conn}
}

// ID returns the device identifier.
func (v *VoiceDevice) ID() string { return v.id }

// Kind returns Voice.
func (v *VoiceDevice) Kind() Kind { return Voice }

// State returns the current connection state.
func (v *VoiceDevice) State() State { return v.state.get() }

// Listen reads transcription frames until the connection ends. A read
// failure while the context is still live reports the device as lost.
func (v *VoiceDevice) Listen(ctx context.Context, emit EmitFunc) error {
	v.state.set(StateListening)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			v.Close()
		case <-stop:
		}
	}()

	for {
		var frame transcriptFrame
		if err := v.conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil || v.closed.Load() {
				v.state.set(StateDisconnected)
				return nil
			}
			v.state.set(StateError)
			return fmt.Errorf("device: voice %q: %w", v.id, err)
		}

		if !frame.Final || frame.Text == "" {
			continue
		}
		emit(input.Event{
			DeviceID: v.id,
			Kind:     input.SpeechTranscribed,
			Text:     frame.Text,
			Time:     time.Now(),
		})
	}
}

// Close tears down the connection. Idempotent.
func (v *VoiceDevice) Close() error {
	v.closeOnce.Do(func() {
		v.closed.Store(true)
		v.closeErr = v.conn.Close()
	})
	return v.closeErr
}
