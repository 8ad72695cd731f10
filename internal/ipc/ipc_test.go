//go:build !windows

package ipc

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Magic:     ProtocolMagic,
		Version:   ProtocolVersion,
		Type:      MsgStatusRequest,
		RequestID: 42,
		Length:    7,
	}
	var buf bytes.Buffer
	if err := h.Write(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != HeaderSize {
		t.Errorf("header size = %d, want %d", buf.Len(), HeaderSize)
	}
	back, err := ReadHeader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if *back != h {
		t.Errorf("got %+v, want %+v", *back, h)
	}
}

func TestReadHeaderRejectsBadMagic(t *testing.T) {
	h := Header{Magic: 0xDEADBEEF, Version: ProtocolVersion}
	var buf bytes.Buffer
	if err := h.Write(&buf); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadHeader(&buf); err == nil {
		t.Error("expected error for bad magic")
	}
}

func TestMessageRoundTrip(t *testing.T) {
	msg, err := Encode(MsgReloadRequest, 7, &ReloadRequest{Path: "/tmp/x.krx"})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := msg.Write(&buf); err != nil {
		t.Fatal(err)
	}
	back, err := ReadMessage(&buf)
	if err != nil {
		t.Fatal(err)
	}
	var req ReloadRequest
	if err := Decode(back, &req); err != nil {
		t.Fatal(err)
	}
	if req.Path != "/tmp/x.krx" {
		t.Errorf("path = %q", req.Path)
	}
}

func TestReadMessageRejectsOversizedPayload(t *testing.T) {
	h := Header{Magic: ProtocolMagic, Version: ProtocolVersion, Length: MaxPayload + 1}
	var buf bytes.Buffer
	if err := h.Write(&buf); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadMessage(&buf); err == nil {
		t.Error("expected error for oversized payload")
	}
}

func echoHandler(t *testing.T) Handler {
	t.Helper()
	return HandlerFunc(func(ctx context.Context, msg *Message) (*Message, error) {
		switch msg.Header.Type {
		case MsgStatusRequest:
			return Encode(MsgStatusResponse, msg.Header.RequestID, &StatusResponse{
				Version: "0.4.0",
				Devices: 2,
			})
		case MsgReloadRequest:
			var req ReloadRequest
			if err := Decode(msg, &req); err != nil {
				return nil, err
			}
			return Encode(MsgReloadResponse, msg.Header.RequestID, &ReloadResponse{
				Success:    true,
				SourceHash: "abc123",
			})
		default:
			return Encode(MsgError, msg.Header.RequestID, &ErrorResponse{
				Code:    ErrInvalidRequest,
				Message: "unknown message type",
			})
		}
	})
}

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "keyrxd.sock")
	srv := NewServer(ServerConfig{SocketPath: sock}, echoHandler(t))
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })
	return srv, sock
}

func TestClientServerRoundTrip(t *testing.T) {
	_, sock := startTestServer(t)

	c := NewClient(sock)
	defer c.Close()

	if err := c.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}

	status, err := c.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Version != "0.4.0" || status.Devices != 2 {
		t.Errorf("status = %+v", status)
	}

	reload, err := c.Reload("")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reload.Success || reload.SourceHash != "abc123" {
		t.Errorf("reload = %+v", reload)
	}
}

func TestClientReportsDaemonError(t *testing.T) {
	_, sock := startTestServer(t)

	c := NewClient(sock)
	defer c.Close()

	// The echo handler rejects simulate requests.
	if _, err := c.Simulate("", "press:A"); err == nil {
		t.Error("expected daemon error")
	}
}

func TestClientConnectFailure(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "absent.sock"))
	if err := c.Ping(); err == nil {
		t.Error("expected connect failure")
	}
}

func TestServerStopClosesClients(t *testing.T) {
	srv, sock := startTestServer(t)

	c := NewClient(sock)
	if err := c.Ping(); err != nil {
		t.Fatal(err)
	}
	if srv.ClientCount() != 1 {
		t.Errorf("clients = %d, want 1", srv.ClientCount())
	}

	if err := srv.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	c.SetTimeout(500 * time.Millisecond)
	if err := c.Ping(); err == nil {
		t.Error("ping should fail after server stop")
	}
	c.Close()
}
