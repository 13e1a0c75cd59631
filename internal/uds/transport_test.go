package uds

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// shortTempSockPath avoids the Unix socket path length limit (104 bytes on
// macOS) that t.TempDir() paths can exceed.
func shortTempSockPath(t *testing.T, name string) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "voxplan-uds-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, name)
}

func TestFraming_RoundTrip(t *testing.T) {
	sockPath := shortTempSockPath(t, "f.sock")

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		var req Request
		if err := ReadFrame(conn, &req); err != nil {
			t.Errorf("server ReadFrame: %v", err)
			return
		}

		if req.Command != "ping" {
			t.Errorf("expected command %q, got %q", "ping", req.Command)
		}
		if req.ProtocolVersion != ProtocolVersion {
			t.Errorf("expected protocol_version %d, got %d", ProtocolVersion, req.ProtocolVersion)
		}
		if req.RequestID == "" {
			t.Error("expected NewRequest to fill request_id")
		}

		resp := SuccessResponse(map[string]string{"result": "ok"})
		if err := WriteFrame(conn, resp); err != nil {
			t.Errorf("server WriteFrame: %v", err)
		}
	}()

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	req, _ := NewRequest("ping", nil)
	if err := WriteFrame(conn, req); err != nil {
		t.Fatalf("client WriteFrame: %v", err)
	}

	var resp Response
	if err := ReadFrame(conn, &resp); err != nil {
		t.Fatalf("client ReadFrame: %v", err)
	}

	if !resp.Success {
		t.Error("expected success response")
	}

	<-done
}

func TestFraming_LargePayload(t *testing.T) {
	sockPath := shortTempSockPath(t, "l.sock")

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	// ~1MB of goals, well under the 10MB frame limit
	largeContent := strings.Repeat("x", 1024*1024)

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		var req Request
		if err := ReadFrame(conn, &req); err != nil {
			t.Errorf("server ReadFrame: %v", err)
			return
		}

		var params map[string]string
		json.Unmarshal(req.Params, &params)
		if len(params["content"]) != 1024*1024 {
			t.Errorf("expected content length %d, got %d", 1024*1024, len(params["content"]))
		}

		resp := SuccessResponse(map[string]int{"length": len(params["content"])})
		WriteFrame(conn, resp)
	}()

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	req, _ := NewRequest("plan_submit", map[string]string{"content": largeContent})
	if err := WriteFrame(conn, req); err != nil {
		t.Fatalf("client WriteFrame: %v", err)
	}

	var resp Response
	if err := ReadFrame(conn, &resp); err != nil {
		t.Fatalf("client ReadFrame: %v", err)
	}

	if !resp.Success {
		t.Error("expected success")
	}

	<-done
}

func TestServer_MultipleClients(t *testing.T) {
	sockPath := shortTempSockPath(t, "m.sock")

	server := NewServer(sockPath)
	server.Handle("ping", func(req *Request) *Response {
		return SuccessResponse(map[string]string{"status": "pong"})
	})

	if err := server.Start(); err != nil {
		t.Fatalf("server start: %v", err)
	}
	defer server.Stop()

	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func() {
			c := NewClient(sockPath)
			c.SetTimeout(5 * time.Second)
			_, err := c.SendCommand("ping", nil)
			errs <- err
		}()
	}

	for i := 0; i < 10; i++ {
		if err := <-errs; err != nil {
			t.Errorf("client %d: %v", i, err)
		}
	}
}

func TestClient_DaemonNotRunning(t *testing.T) {
	sockPath := shortTempSockPath(t, "none.sock")

	client := NewClient(sockPath)
	client.SetTimeout(1 * time.Second)

	_, err := client.SendCommand("ping", nil)
	if err == nil {
		t.Fatal("expected error when daemon not running")
	}
	if !strings.Contains(err.Error(), "failed to connect to daemon") {
		t.Errorf("expected daemon connection error, got: %v", err)
	}
	if !strings.Contains(err.Error(), "voxplan daemon") {
		t.Errorf("expected hint about 'voxplan daemon', got: %v", err)
	}
}

func TestServer_ConnectionTimeout(t *testing.T) {
	sockPath := shortTempSockPath(t, "t.sock")

	server := NewServer(sockPath)
	server.SetConnTimeout(500 * time.Millisecond)
	server.Handle("ping", func(req *Request) *Response {
		return SuccessResponse(nil)
	})

	if err := server.Start(); err != nil {
		t.Fatalf("server start: %v", err)
	}
	defer server.Stop()

	// Connect but send nothing; the server should close the idle connection
	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	time.Sleep(800 * time.Millisecond)

	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	if _, readErr := conn.Read(buf); readErr == nil {
		t.Error("expected read error on timed-out connection, but read succeeded")
	}

	// Server is still responsive to new clients
	client := NewClient(sockPath)
	client.SetTimeout(2 * time.Second)
	resp, err := client.SendCommand("ping", nil)
	if err != nil {
		t.Fatalf("client after timeout: %v", err)
	}
	if !resp.Success {
		t.Error("expected success after timeout recovery")
	}
}

func TestServer_SocketPermissions(t *testing.T) {
	sockPath := shortTempSockPath(t, "p.sock")

	server := NewServer(sockPath)
	if err := server.Start(); err != nil {
		t.Fatalf("server start: %v", err)
	}
	defer server.Stop()

	info, err := os.Stat(sockPath)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected permissions 0600, got %04o", perm)
	}
}

func TestServer_StopCleansUpSocket(t *testing.T) {
	sockPath := shortTempSockPath(t, "c.sock")

	server := NewServer(sockPath)
	if err := server.Start(); err != nil {
		t.Fatalf("server start: %v", err)
	}

	if _, err := os.Stat(sockPath); err != nil {
		t.Fatalf("socket should exist: %v", err)
	}

	server.Stop()

	if _, err := os.Stat(sockPath); !os.IsNotExist(err) {
		t.Error("socket should be removed after stop")
	}
}
