// Package status renders the daemon and pipeline state for the CLI.
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/msageha/voxplan/internal/uds"
)

type Report struct {
	Daemon   DaemonStatus    `json:"daemon"`
	Sessions []SessionStatus `json:"sessions,omitempty"`
	Counters map[string]uint `json:"counters,omitempty"`
	Inbox    DirStatus       `json:"inbox"`
	Rejected DirStatus       `json:"rejected"`
	Trees    DirStatus       `json:"trees"`
}

type DaemonStatus struct {
	Running   bool `json:"running"`
	Pid       int  `json:"pid,omitempty"`
	UptimeSec int  `json:"uptime_sec,omitempty"`
}

type SessionStatus struct {
	SessionID      string `json:"session_id"`
	Status         string `json:"status"`
	GoalsMinted    uint   `json:"goals_minted"`
	TreesProcessed uint   `json:"trees_processed"`
	LastActiveAt   string `json:"last_active_at,omitempty"`
}

type DirStatus struct {
	Count int `json:"count"`
}

// Run gathers the daemon's view over UDS plus on-disk document counts and
// prints the result.
func Run(voxplanDir string, jsonOutput bool) error {
	report := Report{}

	sockPath := filepath.Join(voxplanDir, uds.DefaultSocketName)
	fillDaemonView(sockPath, &report)

	report.Inbox = countYAML(filepath.Join(voxplanDir, "plans", "inbox"))
	report.Rejected = countYAML(filepath.Join(voxplanDir, "rejected"))
	report.Trees = countYAML(filepath.Join(voxplanDir, "state", "trees"))

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	printReport(report)
	return nil
}

// fillDaemonView asks the running daemon for its sessions and counters. A
// stopped daemon is not an error; the report just shows the on-disk view.
func fillDaemonView(sockPath string, report *Report) {
	client := uds.NewClient(sockPath)
	resp, err := client.SendCommand("status", nil)
	if err != nil || !resp.Success {
		return
	}

	var data struct {
		Pid       int             `json:"pid"`
		UptimeSec int             `json:"uptime_sec"`
		Sessions  []SessionStatus `json:"sessions"`
		Counters  map[string]uint `json:"counters"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return
	}

	report.Daemon = DaemonStatus{Running: true, Pid: data.Pid, UptimeSec: data.UptimeSec}
	report.Sessions = data.Sessions
	report.Counters = data.Counters
}

func countYAML(dir string) DirStatus {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return DirStatus{}
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if strings.HasSuffix(e.Name(), ".yaml") || strings.HasSuffix(e.Name(), ".yml") {
			n++
		}
	}
	return DirStatus{Count: n}
}

func printReport(r Report) {
	if r.Daemon.Running {
		fmt.Printf("Daemon: running (pid %d, up %ds)\n", r.Daemon.Pid, r.Daemon.UptimeSec)
	} else {
		fmt.Println("Daemon: stopped")
	}

	if len(r.Sessions) > 0 {
		fmt.Println("\nSessions:")
		fmt.Printf("  %-28s  %-8s  %5s  %5s\n", "SESSION", "STATUS", "GOALS", "TREES")
		for _, s := range r.Sessions {
			fmt.Printf("  %-28s  %-8s  %5d  %5d\n",
				s.SessionID, s.Status, s.GoalsMinted, s.TreesProcessed)
		}
	} else {
		fmt.Println("\nSessions: none")
	}

	if len(r.Counters) > 0 {
		plans := make([]string, 0, len(r.Counters))
		for p := range r.Counters {
			plans = append(plans, p)
		}
		sort.Strings(plans)

		fmt.Println("\nCommand counters:")
		for _, p := range plans {
			fmt.Printf("  %-16s  %d issued\n", p, r.Counters[p])
		}
	}

	fmt.Printf("\nDocuments: inbox=%d rejected=%d trees=%d\n",
		r.Inbox.Count, r.Rejected.Count, r.Trees.Count)
}
