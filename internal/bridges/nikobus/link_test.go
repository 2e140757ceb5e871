package nikobus

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/nikobus-core/internal/infrastructure/config"
)

func TestParseConnection(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		wantNetwork string
		wantAddress string
		wantErr     bool
	}{
		{"tcp", "tcp://192.168.1.50:9999", "tcp", "192.168.1.50:9999", false},
		{"unix", "unix:///run/nikobus", "unix", "/run/nikobus", false},
		{"empty tcp host", "tcp://", "", "", true},
		{"empty unix path", "unix://", "", "", true},
		{"unknown scheme", "serial:///dev/ttyUSB0", "", "", true},
		{"bare address", "192.168.1.50:9999", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			network, address, err := parseConnection(tt.url)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConnection) {
					t.Errorf("error = %v, want %v", err, ErrInvalidConnection)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseConnection(%q) failed: %v", tt.url, err)
			}
			if network != tt.wantNetwork || address != tt.wantAddress {
				t.Errorf("parseConnection(%q) = (%q, %q), want (%q, %q)",
					tt.url, network, address, tt.wantNetwork, tt.wantAddress)
			}
		})
	}
}

// newTestLink wires a PCLink directly onto one end of a pipe, bypassing
// the dialer, and starts only the frame reader (no reconnect supervision).
func newTestLink(conn net.Conn) *PCLink {
	l := &PCLink{
		cfg: config.NikobusConfig{
			Connection:        "tcp://127.0.0.1:1",
			ConnectTimeout:    1,
			ReadTimeout:       2,
			ReconnectInterval: 1,
		},
		conn:   conn,
		acks:   make(chan string, ackBufferSize),
		closed: newCloseOnce(),
	}
	l.connected.Store(true)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.readFrames(conn)
	}()
	return l
}

func TestPCLink_SendCommandAcknowledged(t *testing.T) {
	client, server := net.Pipe()
	l := newTestLink(client)
	defer l.Close()
	defer server.Close()

	// Fake PC-Link: read the command, answer with an acknowledgment.
	go func() {
		reader := bufio.NewReader(server)
		line, err := reader.ReadString('\r')
		if err != nil {
			return
		}
		if strings.TrimSuffix(line, "\r") == "#N15FF2A" {
			// Payload contains an embedded CR; consume the second part.
			if _, err := reader.ReadString('\r'); err != nil {
				return
			}
		}
		server.Write([]byte("$0515\r")) //nolint:errcheck // Test fixture
	}()

	err := l.SendCommand(context.Background(), "#N15FF2A\r#E1")
	if err != nil {
		t.Fatalf("SendCommand() failed: %v", err)
	}

	stats := l.Stats()
	if stats.FramesSent != 1 {
		t.Errorf("FramesSent = %d, want 1", stats.FramesSent)
	}
	if !stats.Connected {
		t.Error("Connected = false, want true")
	}
}

func TestPCLink_SendCommandContextCancelled(t *testing.T) {
	client, server := net.Pipe()
	l := newTestLink(client)
	defer l.Close()
	defer server.Close()

	// Swallow the outbound command, never acknowledge.
	go func() {
		buf := make([]byte, 256)
		for {
			if _, err := server.Read(buf); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := l.SendCommand(ctx, "#N15FF2A\r#E1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestPCLink_ButtonFramesReachCallback(t *testing.T) {
	client, server := net.Pipe()
	l := newTestLink(client)
	defer l.Close()
	defer server.Close()

	frames := make(chan string, 4)
	l.SetOnFrame(func(frame string) { frames <- frame })

	go server.Write([]byte("#N847FEA\r$0515\r#N847FEA\r")) //nolint:errcheck // Test fixture

	// Both button frames arrive; the ack frame goes to the ack channel
	// instead of the callback.
	for i := 0; i < 2; i++ {
		select {
		case frame := <-frames:
			if frame != "#N847FEA" {
				t.Errorf("frame = %q, want #N847FEA", frame)
			}
		case <-time.After(time.Second):
			t.Fatal("button frame did not reach callback")
		}
	}

	select {
	case frame := <-frames:
		t.Errorf("unexpected extra frame %q on callback", frame)
	case <-time.After(50 * time.Millisecond):
	}

	select {
	case ack := <-l.acks:
		if ack != "$0515" {
			t.Errorf("ack = %q, want $0515", ack)
		}
	default:
		t.Error("ack frame was not routed to the ack channel")
	}

	if got := l.Stats().FramesReceived; got != 3 {
		t.Errorf("FramesReceived = %d, want 3", got)
	}
}

func TestPCLink_SendValidation(t *testing.T) {
	client, server := net.Pipe()
	l := newTestLink(client)
	defer server.Close()

	if err := l.SendCommand(context.Background(), ""); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("empty payload: error = %v, want %v", err, ErrEmptyCommand)
	}

	l.Close()
	if err := l.SendCommand(context.Background(), "#E1"); !errors.Is(err, ErrClosed) {
		t.Errorf("after Close: error = %v, want %v", err, ErrClosed)
	}
}

func TestPCLink_CloseIdempotent(t *testing.T) {
	client, server := net.Pipe()
	l := newTestLink(client)
	defer server.Close()

	if err := l.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
	if l.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
}
