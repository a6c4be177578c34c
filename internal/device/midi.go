package device

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rionhunter/macrokit/internal/input"
)

// MIDI status bytes handled by the decoder.
const (
	midiNoteOff       = 0x80
	midiNoteOn        = 0x90
	midiControlChange = 0xB0
)

// MIDIDevice reads a raw MIDI byte stream (/dev/snd/midiCnDn or /dev/midiN)
// and emits NoteOn and ControlChange events.
//
// The decoder handles running status and skips messages it does not map to
// triggers. Note-on with velocity zero is a note-off by convention and is
// skipped.
type MIDIDevice struct {
	id    string
	src   io.ReadCloser
	state stateVal

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewMIDI opens the raw MIDI device node at path.
func NewMIDI(id, path string) (*MIDIDevice, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: midi %q: no device path", ErrUnavailable, id)
	}
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: midi %q: %v", ErrUnavailable, id, err)
	}
	return &MIDIDevice{id: id, src: f}, nil
}

// NewMIDIFromReader wraps an arbitrary raw MIDI stream.
func NewMIDIFromReader(id string, src io.ReadCloser) *MIDIDevice {
	return &MIDIDevice{id: id, src: src}
}

// ID returns the device identifier.
func (m *MIDIDevice) ID() string { return m.id }

// Kind returns MIDI.
func (m *MIDIDevice) Kind() Kind { return MIDI }

// State returns the current connection state.
func (m *MIDIDevice) State() State { return m.state.get() }

// Listen decodes the MIDI stream until it ends. A read failure while the
// context is still live reports the device as lost.
func (m *MIDIDevice) Listen(ctx context.Context, emit EmitFunc) error {
	m.state.set(StateListening)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			m.Close()
		case <-stop:
		}
	}()

	r := bufio.NewReader(m.src)
	var status byte

	readByte := func() (byte, error) {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		return b, nil
	}

	for {
		b, err := readByte()
		if err != nil {
			return m.listenErr(ctx, err)
		}

		switch {
		case b >= 0xF8:
			// System real-time: single byte, does not affect running status.
			continue
		case b >= 0xF0:
			// System common: clears running status. Skip any data bytes.
			status = 0
			continue
		case b >= 0x80:
			status = b
			continue
		}

		// b is a data byte; interpret it under the running status.
		if status == 0 {
			continue
		}

		msg := status & 0xF0
		switch msg {
		case midiNoteOn, midiNoteOff, midiControlChange:
			second, err := readByte()
			if err != nil {
				return m.listenErr(ctx, err)
			}
			if second >= 0x80 {
				// Malformed: a status byte where data was expected.
				status = second
				continue
			}

			switch {
			case msg == midiNoteOn && second > 0:
				emit(input.Event{
					DeviceID: m.id,
					Kind:     input.NoteOn,
					Code:     int(b),
					Value:    int(second),
					Time:     time.Now(),
				})
			case msg == midiControlChange:
				emit(input.Event{
					DeviceID: m.id,
					Kind:     input.ControlChange,
					Code:     int(b),
					Value:    int(second),
					Time:     time.Now(),
				})
			}
		default:
			// Other channel messages: consume the remaining data byte for
			// two-byte messages; one-byte messages need nothing.
			if msg != 0xC0 && msg != 0xD0 {
				if _, err := readByte(); err != nil {
					return m.listenErr(ctx, err)
				}
			}
		}
	}
}

func (m *MIDIDevice) listenErr(ctx context.Context, err error) error {
	if ctx.Err() != nil || m.closed.Load() {
		m.state.set(StateDisconnected)
		return nil
	}
	m.state.set(StateError)
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("device: midi %q: %w", m.id, err)
}

// Close releases the stream. Idempotent.
func (m *MIDIDevice) Close() error {
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		m.closeErr = m.src.Close()
	})
	return m.closeErr
}
