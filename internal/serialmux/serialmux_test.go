package serialmux

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shortWritePort accepts one byte fewer than requested.
type shortWritePort struct{ NopPort }

func (shortWritePort) Write(p []byte) (int, error) { return len(p) - 1, nil }

func TestNewSerialMux(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	require.NotNil(t, mux)
	assert.Same(t, port, mux.Port())
	assert.NotNil(t, mux.subscribers)
}

func TestSerialMux_SubscribePublish(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())

	id1, ch1 := mux.Subscribe()
	id2, ch2 := mux.Subscribe()
	assert.NotEqual(t, id1, id2, "subscription IDs should be unique")

	mux.Publish("index=5 fire=true")
	assert.Equal(t, "index=5 fire=true", <-ch1)
	assert.Equal(t, "index=5 fire=true", <-ch2)

	mux.Unsubscribe(id1)
	_, ok := <-ch1
	assert.False(t, ok, "unsubscribed channel should be closed")

	// Unknown IDs are ignored.
	mux.Unsubscribe("missing")
	assert.Len(t, mux.subscribers, 1)
}

func TestSerialMux_PublishSkipsFullSubscribers(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	_, ch := mux.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(ch)+10; i++ {
			mux.Publish("line")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	assert.Len(t, ch, cap(ch))
}

func TestSerialMux_SendCommand(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	require.NoError(t, mux.SendCommand(context.Background(), []byte{0x85}))
	require.NoError(t, mux.SendCommand(context.Background(), []byte{0x00}))
	assert.Equal(t, []byte{0x85, 0x00}, port.GetWrittenData())
}

func TestSerialMux_SendCommand_Errors(t *testing.T) {
	t.Run("write error", func(t *testing.T) {
		port := NewTestableSerialPort()
		port.WriteError = errors.New("broken pipe")
		mux := NewSerialMux(port)
		assert.EqualError(t, mux.SendCommand(context.Background(), []byte{1}), "broken pipe")
	})

	t.Run("short write", func(t *testing.T) {
		mux := NewSerialMux(shortWritePort{})
		assert.ErrorIs(t, mux.SendCommand(context.Background(), []byte{1, 2}), ErrWriteFailed)
	})

	t.Run("closed", func(t *testing.T) {
		mux := NewSerialMux(NewTestableSerialPort())
		require.NoError(t, mux.Close())
		assert.ErrorIs(t, mux.SendCommand(context.Background(), []byte{1}), ErrClosed)
	})

	t.Run("cancelled", func(t *testing.T) {
		port := NewTestableSerialPort()
		port.WriteLatency = 200 * time.Millisecond
		mux := NewSerialMux(port)
		mux.SetWriteTimeout(time.Second)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, mux.SendCommand(ctx, []byte{1}), context.Canceled)
	})
}

func TestSerialMux_SendCommand_WriteTimeout(t *testing.T) {
	port := NewTestableSerialPort()
	port.WriteLatency = 300 * time.Millisecond
	mux := NewSerialMux(port)
	mux.SetWriteTimeout(20 * time.Millisecond)

	start := time.Now()
	err := mux.SendCommand(context.Background(), []byte{0x81})
	assert.ErrorIs(t, err, ErrWriteTimeout)
	assert.Less(t, time.Since(start), 250*time.Millisecond)

	// The first write still holds the port, so the next one times out too.
	assert.ErrorIs(t, mux.SendCommand(context.Background(), []byte{0x82}), ErrWriteTimeout)

	// Once the slow write drains, commands flow again.
	require.Eventually(t, func() bool {
		return len(port.GetWrittenData()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	port.WriteLatency = 0
	require.NoError(t, mux.SendCommand(context.Background(), []byte{0x83}))
	assert.Equal(t, []byte{0x81, 0x83}, port.GetWrittenData())
}

func TestSerialMux_Close(t *testing.T) {
	port := NewTestableSerialPort()
	port.CloseError = errors.New("close failed")
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	assert.EqualError(t, mux.Close(), "close failed")
	assert.True(t, port.Closed)
	_, ok := <-ch
	assert.False(t, ok, "subscriber channel should be closed")
}

func TestParseCommandByte(t *testing.T) {
	tests := []struct {
		in      string
		want    byte
		wantErr bool
	}{
		{"0x85", 0x85, false},
		{"133", 133, false},
		{" 0 ", 0, false},
		{"256", 0, true},
		{"fire", 0, true},
	}
	for _, tt := range tests {
		got, err := parseCommandByte(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSerialMux_AdminSendCommand(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	// tsweb debug routes are restricted to loopback callers.
	req := httptest.NewRequest(http.MethodPost, "/debug/send-command-api",
		strings.NewReader(url.Values{"command": {"0x85"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []byte{0x85}, port.GetWrittenData())

	req = httptest.NewRequest(http.MethodGet, "/debug/send-command-api", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec = httptest.NewRecorder()
	httpMux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/debug/send-command-api",
		strings.NewReader(url.Values{"command": {"bang"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "127.0.0.1:1234"
	rec = httptest.NewRecorder()
	httpMux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSerialMux_AdminTail(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)
	srv := httptest.NewServer(httpMux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/debug/tail", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": ping\n", line)

	require.Eventually(t, func() bool {
		mux.subscriberMu.Lock()
		defer mux.subscriberMu.Unlock()
		return len(mux.subscribers) == 1
	}, time.Second, 5*time.Millisecond)

	mux.Publish("cmd=0x85 index=5 fire=true")
	for {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}
	assert.Equal(t, "data: cmd=0x85 index=5 fire=true\n", line)
}
