package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/msageha/voxplan/internal/daemon"
	"github.com/msageha/voxplan/internal/model"
	"github.com/msageha/voxplan/internal/setup"
	"github.com/msageha/voxplan/internal/status"
	"github.com/msageha/voxplan/internal/uds"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "daemon":
		runDaemon(os.Args[2:])
	case "setup":
		runSetup(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "session":
		runSession(os.Args[2:])
	case "plan":
		runPlan(os.Args[2:])
	case "command":
		runCommand(os.Args[2:])
	case "scan":
		runScan(os.Args[2:])
	case "down":
		runDown(os.Args[2:])
	case "version":
		fmt.Printf("voxplan %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runSession(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: voxplan session <open|clear> [options]")
		os.Exit(1)
	}
	switch args[0] {
	case "open":
		runSessionOpen(args[1:])
	case "clear":
		runSessionClear(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown session subcommand: %s\n", args[0])
		fmt.Fprintln(os.Stderr, "usage: voxplan session <open|clear> [options]")
		os.Exit(1)
	}
}

func runPlan(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: voxplan plan <submit> [options]")
		os.Exit(1)
	}
	switch args[0] {
	case "submit":
		runPlanSubmit(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown plan subcommand: %s\n", args[0])
		fmt.Fprintln(os.Stderr, "usage: voxplan plan submit [options]")
		os.Exit(1)
	}
}

func runCommand(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: voxplan command <next|peek|reset> [options]")
		os.Exit(1)
	}
	switch args[0] {
	case "next":
		runCommandNext(args[1:])
	case "peek":
		runCommandPeek(args[1:])
	case "reset":
		runCommandReset(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command subcommand: %s\n", args[0])
		fmt.Fprintln(os.Stderr, "usage: voxplan command <next|peek|reset> [options]")
		os.Exit(1)
	}
}

func runDaemon(_ []string) {
	voxplanDir := mustFindVoxplanDir()

	cfg, err := loadConfig(voxplanDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	d, err := daemon.New(voxplanDir, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create daemon: %v\n", err)
		os.Exit(1)
	}

	if err := d.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "daemon: %v\n", err)
		os.Exit(1)
	}
}

func runSetup(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: voxplan setup <project_dir> [--name <project_name>]")
		os.Exit(1)
	}

	projectDir := args[0]
	projectName := ""
	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--name":
			if i+1 >= len(rest) {
				fmt.Fprintln(os.Stderr, "--name requires a value")
				os.Exit(1)
			}
			i++
			projectName = rest[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: voxplan setup <project_dir> [--name <project_name>]\n", rest[i])
			os.Exit(1)
		}
	}

	if err := setup.Run(projectDir, projectName); err != nil {
		fmt.Fprintf(os.Stderr, "setup: %v\n", err)
		os.Exit(1)
	}
	absDir, _ := filepath.Abs(projectDir)
	fmt.Printf("Initialized .voxplan/ in %s\n", absDir)
}

func runStatus(args []string) {
	jsonOutput := false
	for _, a := range args {
		switch a {
		case "--json":
			jsonOutput = true
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: voxplan status [--json]\n", a)
			os.Exit(1)
		}
	}

	voxplanDir := mustFindVoxplanDir()
	if err := status.Run(voxplanDir, jsonOutput); err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		os.Exit(1)
	}
}

func runSessionOpen(args []string) {
	var sessionID string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--session-id":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--session-id requires a value")
				os.Exit(1)
			}
			i++
			sessionID = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: voxplan session open [--session-id <id>]\n", args[i])
			os.Exit(1)
		}
	}

	params := map[string]any{}
	if sessionID != "" {
		params["session_id"] = sessionID
	}
	sendAndPrint("session_open", params)
}

func runSessionClear(args []string) {
	var sessionID string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--session-id":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--session-id requires a value")
				os.Exit(1)
			}
			i++
			sessionID = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: voxplan session clear --session-id <id>\n", args[i])
			os.Exit(1)
		}
	}
	if sessionID == "" {
		fmt.Fprintln(os.Stderr, "usage: voxplan session clear --session-id <id>")
		os.Exit(1)
	}

	sendAndPrint("session_clear", map[string]any{"session_id": sessionID})
}

// runPlanSubmit reads a raw goal tree (YAML, file or stdin) and submits it
// over UDS. Equivalent to dropping a document into plans/inbox/, but the
// caller gets the normalized tree back synchronously.
func runPlanSubmit(args []string) {
	var sessionID, goalsFile string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--session-id":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--session-id requires a value")
				os.Exit(1)
			}
			i++
			sessionID = args[i]
		case "--goals-file":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--goals-file requires a value")
				os.Exit(1)
			}
			i++
			goalsFile = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: voxplan plan submit --session-id <id> [--goals-file <path>]\n", args[i])
			os.Exit(1)
		}
	}
	if sessionID == "" {
		fmt.Fprintln(os.Stderr, "usage: voxplan plan submit --session-id <id> [--goals-file <path>]")
		os.Exit(1)
	}

	var data []byte
	var err error
	if goalsFile == "" || goalsFile == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(goalsFile)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "read goals: %v\n", err)
		os.Exit(1)
	}

	var tree model.RawTree
	if err := yaml.Unmarshal(data, &tree); err != nil {
		fmt.Fprintf(os.Stderr, "parse goals: %v\n", err)
		os.Exit(1)
	}

	sendAndPrint("plan_submit", map[string]any{
		"session_id": sessionID,
		"goals":      tree.Goals,
	})
}

func runCommandNext(args []string) {
	var planID, attemptOf string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--plan-id":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--plan-id requires a value")
				os.Exit(1)
			}
			i++
			planID = args[i]
		case "--attempt-of":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--attempt-of requires a value")
				os.Exit(1)
			}
			i++
			attemptOf = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: voxplan command next --plan-id <id> [--attempt-of <command_id>]\n", args[i])
			os.Exit(1)
		}
	}
	if planID == "" {
		fmt.Fprintln(os.Stderr, "usage: voxplan command next --plan-id <id> [--attempt-of <command_id>]")
		os.Exit(1)
	}

	params := map[string]any{"plan_id": planID}
	if attemptOf != "" {
		params["attempt_of"] = attemptOf
	}
	sendAndPrint("next_command_id", params)
}

func runCommandPeek(args []string) {
	var planID string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--plan-id":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--plan-id requires a value")
				os.Exit(1)
			}
			i++
			planID = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: voxplan command peek --plan-id <id>\n", args[i])
			os.Exit(1)
		}
	}
	if planID == "" {
		fmt.Fprintln(os.Stderr, "usage: voxplan command peek --plan-id <id>")
		os.Exit(1)
	}

	sendAndPrint("counter_peek", map[string]any{"plan_id": planID})
}

func runCommandReset(args []string) {
	var planID string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--plan-id":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--plan-id requires a value")
				os.Exit(1)
			}
			i++
			planID = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: voxplan command reset --plan-id <id>\n", args[i])
			os.Exit(1)
		}
	}
	if planID == "" {
		fmt.Fprintln(os.Stderr, "usage: voxplan command reset --plan-id <id>")
		os.Exit(1)
	}

	sendAndPrint("counter_reset", map[string]any{"plan_id": planID})
}

func runScan(_ []string) {
	sendAndPrint("scan", nil)
}

func runDown(_ []string) {
	voxplanDir := mustFindVoxplanDir()

	client := uds.NewClient(filepath.Join(voxplanDir, uds.DefaultSocketName))
	resp, err := client.SendCommand("shutdown", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "down: %v\n", err)
		os.Exit(1)
	}
	if !resp.Success {
		fmt.Fprintln(os.Stderr, "down: daemon refused shutdown")
		os.Exit(1)
	}
	fmt.Println("daemon shutting down")
}

// sendAndPrint sends one UDS command and prints the response data as JSON.
// Domain failures exit 2 so scripts can tell them from transport errors.
func sendAndPrint(command string, params map[string]any) {
	voxplanDir := mustFindVoxplanDir()

	client := uds.NewClient(filepath.Join(voxplanDir, uds.DefaultSocketName))
	resp, err := client.SendCommand(command, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", command, err)
		os.Exit(1)
	}

	if !resp.Success {
		code := ""
		msg := "unknown error"
		if resp.Error != nil {
			code = resp.Error.Code
			msg = resp.Error.Message
		}
		fmt.Fprintf(os.Stderr, "%s failed [%s]: %s\n", command, code, msg)
		switch code {
		case model.ErrCodeUnresolvedDependency, model.ErrCodeUnknownPlan,
			model.ErrCodeInvalidPlanFormat, model.ErrCodeInvalidSessionFormat,
			model.ErrCodeInvalidSequence:
			os.Exit(2)
		}
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(json.RawMessage(resp.Data), "", "  ")
	fmt.Println(string(out))
}

func mustFindVoxplanDir() string {
	dir := findVoxplanDir()
	if dir == "" {
		fmt.Fprintln(os.Stderr, "error: .voxplan/ directory not found. Run 'voxplan setup <dir>' first.")
		os.Exit(1)
	}
	return dir
}

// findVoxplanDir searches for .voxplan/ in the current directory and ancestors.
func findVoxplanDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ".voxplan")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func loadConfig(voxplanDir string) (model.Config, error) {
	data, err := os.ReadFile(filepath.Join(voxplanDir, "config.yaml"))
	if err != nil {
		return model.Config{}, fmt.Errorf("read config.yaml: %w", err)
	}
	var cfg model.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return model.Config{}, fmt.Errorf("parse config.yaml: %w", err)
	}
	return cfg, nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `voxplan %s — Hierarchical identifier issuance for plan orchestration

Usage: voxplan <command> [options]

Project:
  setup <dir> [--name <n>]   Initialize .voxplan/ directory
  daemon                     Run daemon process
  down                       Graceful daemon shutdown
  status [--json]            Show daemon and document status

Sessions:
  session open [--session-id <id>]   Mint or resume a session
  session clear --session-id <id>    Retire a session's history

Planning:
  plan submit --session-id <id> [--goals-file <path>]
                             Normalize a raw goal tree (stdin by default)
  scan                       Force an inbox scan

Execution:
  command next --plan-id <id> [--attempt-of <command_id>]
                             Issue the plan's next command ID
  command peek --plan-id <id>
                             Show a plan's counter without advancing it
  command reset --plan-id <id>
                             Retire a plan's counter

  version                    Show version
  help                       Show this help

`, version)
}
