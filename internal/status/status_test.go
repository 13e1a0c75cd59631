package status

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/msageha/voxplan/internal/uds"
)

func TestCountYAML(t *testing.T) {
	dir := t.TempDir()

	files := map[string]bool{
		"call1.yaml":          true,
		"call2.yml":           true,
		"notes.txt":           false,
		".voxplan-tmp-1.yaml": false,
		"call3.yaml.bak":      false,
	}
	for name := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.yaml"), 0755); err != nil {
		t.Fatal(err)
	}

	got := countYAML(dir)
	if got.Count != 2 {
		t.Errorf("count: got %d, want 2", got.Count)
	}
}

func TestCountYAML_MissingDir(t *testing.T) {
	got := countYAML(filepath.Join(t.TempDir(), "nonexistent"))
	if got.Count != 0 {
		t.Errorf("count: got %d, want 0", got.Count)
	}
}

func TestFillDaemonView_DaemonStopped(t *testing.T) {
	var report Report
	fillDaemonView(filepath.Join(t.TempDir(), "no.sock"), &report)

	if report.Daemon.Running {
		t.Error("daemon should be reported stopped")
	}
}

func TestFillDaemonView_DaemonRunning(t *testing.T) {
	dir, err := os.MkdirTemp("/tmp", "voxplan-status-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	sockPath := filepath.Join(dir, "s.sock")

	server := uds.NewServer(sockPath)
	server.Handle("status", func(req *uds.Request) *uds.Response {
		return uds.SuccessResponse(map[string]any{
			"pid":        1234,
			"uptime_sec": 42,
			"sessions": []map[string]any{
				{"session_id": "sess_20250909_163532_ek30", "status": "active", "goals_minted": 2},
			},
			"counters": map[string]uint{"plan_001_01": 3},
		})
	})
	if err := server.Start(); err != nil {
		t.Fatalf("server start: %v", err)
	}
	defer server.Stop()

	var report Report
	fillDaemonView(sockPath, &report)

	if !report.Daemon.Running {
		t.Fatal("daemon should be reported running")
	}
	if report.Daemon.Pid != 1234 {
		t.Errorf("pid: got %d", report.Daemon.Pid)
	}
	if len(report.Sessions) != 1 || report.Sessions[0].SessionID != "sess_20250909_163532_ek30" {
		t.Errorf("sessions: got %+v", report.Sessions)
	}
	if report.Counters["plan_001_01"] != 3 {
		t.Errorf("counters: got %+v", report.Counters)
	}
}
