// Serialmux provides an abstraction over a serial port with the ability for
// multiple clients to subscribe to events describing traffic on the port and
// to send command bytes to the single device behind it.
package serialmux

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"tailscale.com/tsweb"
)

var (
	ErrWriteFailed = fmt.Errorf("failed to write to serial port")
	// ErrWriteTimeout reports that a write did not complete within the
	// configured write timeout. The command is dropped.
	ErrWriteTimeout = errors.New("serial write timed out")
	ErrClosed       = errors.New("serial mux closed")
)

// SerialMux is a generic serial port multiplexer: commands are written to a
// single port and every sent command is published to subscribed clients.
type SerialMux[T SerialPorter] struct {
	port         T
	writeTimeout time.Duration
	writeSlot    chan struct{}
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// Subscribe creates a new channel for receiving event lines. The channel
	// ID is used to identify the unique channel when unsubscribing.
	Subscribe() (string, chan string)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// Publish sends an event line to all subscribers without blocking.
	Publish(string)
	// SendCommand writes the provided bytes to the serial port.
	SendCommand(context.Context, []byte) error
	// Close closes all subscribed channels and closes the serial port.
	Close() error

	// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP
	// mux served at /debug/. These routes are accessible only over
	// localhost/via Tailscale and are not publicly accessible.
	AttachAdminRoutes(*http.ServeMux)
}

// NewSerialMux creates a SerialMux instance backed by the given port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		writeSlot:   make(chan struct{}, 1),
		subscribers: make(map[string]chan string),
	}
}

// SetWriteTimeout bounds how long SendCommand waits for the port. Zero
// disables the bound and writes inline.
func (s *SerialMux[T]) SetWriteTimeout(d time.Duration) {
	s.writeTimeout = d
}

// Port returns the underlying port.
func (s *SerialMux[T]) Port() T {
	return s.port
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, 16)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Publish fans line out to every subscriber, skipping any that are full.
func (s *SerialMux[T]) Publish(line string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- line:
		default:
			// if the channel is full/blocking skip so as not to block the sender
		}
	}
}

// SendCommand writes command to the serial port. Only one write is in flight
// at a time. With a write timeout set, it returns ErrWriteTimeout if the port
// does not accept the bytes in time; the pending write still completes in the
// background and holds the port until it does.
func (s *SerialMux[T]) SendCommand(ctx context.Context, command []byte) error {
	s.closingMu.Lock()
	closing := s.closing
	s.closingMu.Unlock()
	if closing {
		return ErrClosed
	}

	if s.writeTimeout <= 0 {
		select {
		case s.writeSlot <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		defer func() { <-s.writeSlot }()
		return s.write(command)
	}

	timer := time.NewTimer(s.writeTimeout)
	defer timer.Stop()

	select {
	case s.writeSlot <- struct{}{}:
	case <-timer.C:
		return ErrWriteTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	buf := append([]byte(nil), command...)
	done := make(chan error, 1)
	go func() {
		defer func() { <-s.writeSlot }()
		done <- s.write(buf)
	}()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return ErrWriteTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SerialMux[T]) write(command []byte) error {
	n, err := s.port.Write(command)
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}

// parseCommandByte accepts a command byte as decimal or 0x-prefixed hex.
func parseCommandByte(s string) (byte, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid command byte %q: %w", s, err)
	}
	return byte(v), nil
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// API endpoint to write a single command byte to the serial port
	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		b, err := parseCommandByte(command)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.SendCommand(r.Context(), []byte{b}); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		s.Publish(fmt.Sprintf("manual command=0x%02x", b))
		io.WriteString(w, fmt.Sprintf("Wrote command 0x%02x to serial port", b))
	})

	// API endpoint to issue Server-Side Events (SSE) for every published line.
	debug.HandleFunc("tail", "live tail of actuator commands", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					// Channel closed, exit gracefully
					return
				}
				_, err := w.Write([]byte(fmt.Sprintf("data: %s\n\n", payload)))
				if err != nil {
					return
				}
				if f, ok := w.(http.Flusher); ok {
					f.Flush()
				}
			case <-r.Context().Done():
				return
			}
		}
	})
}
