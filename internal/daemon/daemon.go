// Package daemon runs the voxplan pipeline: it watches the planner inbox,
// normalizes raw trees against their sessions, and serves identifier
// issuance to the rendering client and the execution layer over UDS.
package daemon

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/msageha/voxplan/internal/events"
	"github.com/msageha/voxplan/internal/lock"
	"github.com/msageha/voxplan/internal/model"
	"github.com/msageha/voxplan/internal/normalize"
	"github.com/msageha/voxplan/internal/registry"
	"github.com/msageha/voxplan/internal/session"
	"github.com/msageha/voxplan/internal/uds"
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func parseLogLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LogLevelDebug
	case "info":
		return LogLevelInfo
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Daemon is the main voxplan daemon process.
type Daemon struct {
	voxplanDir string
	config     model.Config
	logLevel   LogLevel
	logger     *log.Logger
	logFile    io.Closer

	fileLock *lock.FileLock
	server   *uds.Server
	watcher  *fsnotify.Watcher
	ticker   *time.Ticker

	sessions *session.Manager
	registry *registry.Registry
	pipeline *Pipeline
	inbox    *InboxHandler
	bus      *events.Bus
	audit    *events.AuditLogger

	started  time.Time
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown sync.Once
}

// New creates a new Daemon instance.
func New(voxplanDir string, cfg model.Config) (*Daemon, error) {
	logPath := filepath.Join(voxplanDir, "logs", "daemon.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open daemon log: %w", err)
	}

	return newDaemon(voxplanDir, cfg, logFile, logFile)
}

// newDaemon is the internal constructor for testing.
func newDaemon(voxplanDir string, cfg model.Config, w io.Writer, closer io.Closer) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	socketPath := filepath.Join(voxplanDir, uds.DefaultSocketName)
	server := uds.NewServer(socketPath)

	scanInterval := cfg.Watcher.ScanIntervalSec
	if scanInterval <= 0 {
		scanInterval = 10
	}

	audit, err := events.NewAuditLogger(filepath.Join(voxplanDir, "logs", "audit"+events.LogFileExtension), 0)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	logger := log.New(w, "", 0)
	logLevel := parseLogLevel(cfg.Logging.Level)

	sessions := session.NewManager(cfg.Session, cfg.Limits.MaxSessions)
	bus := events.NewBus(0)

	pipeline := NewPipeline(voxplanDir, cfg, sessions, normalize.NewEngine(), bus, audit, logger, logLevel)

	d := &Daemon{
		voxplanDir: voxplanDir,
		config:     cfg,
		logLevel:   logLevel,
		logger:     logger,
		logFile:    closer,
		fileLock:   lock.NewFileLock(filepath.Join(voxplanDir, "locks", "daemon.lock")),
		server:     server,
		ticker:     time.NewTicker(time.Duration(scanInterval) * time.Second),
		sessions:   sessions,
		registry:   registry.New(),
		pipeline:   pipeline,
		bus:        bus,
		audit:      audit,
		started:    time.Now(),
		ctx:        ctx,
		cancel:     cancel,
	}

	d.inbox = NewInboxHandler(voxplanDir, cfg, pipeline, logger, logLevel)

	return d, nil
}

// Run starts the daemon and blocks until shutdown completes.
func (d *Daemon) Run() error {
	// Step 1: Acquire file lock
	if err := d.fileLock.TryLock(); err != nil {
		return fmt.Errorf("daemon lock: %w", err)
	}
	d.log(LogLevelInfo, "daemon starting pid=%d", os.Getpid())

	// Step 2: Init fsnotify watcher on the planner inbox
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.fileLock.Unlock()
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	d.watcher = watcher

	inboxDir := filepath.Join(d.voxplanDir, d.config.Planner.InboxDir)
	if err := os.MkdirAll(inboxDir, 0755); err != nil {
		d.cleanup()
		return fmt.Errorf("ensure dir %s: %w", inboxDir, err)
	}
	if err := watcher.Add(inboxDir); err != nil {
		d.cleanup()
		return fmt.Errorf("watch %s: %w", inboxDir, err)
	}

	// Step 3: Register UDS handlers
	d.registerHandlers()

	// Step 4: Start UDS server
	if err := d.server.Start(); err != nil {
		d.cleanup()
		return fmt.Errorf("start UDS server: %w", err)
	}
	d.log(LogLevelInfo, "UDS server listening on %s", filepath.Join(d.voxplanDir, uds.DefaultSocketName))

	// Step 5: Start background loops
	d.wg.Add(2)
	go d.fsnotifyLoop()
	go d.tickerLoop()

	// Step 6: Process anything already waiting in the inbox
	d.inbox.PeriodicScan()
	d.log(LogLevelInfo, "daemon ready")

	// Step 7: Wait for signals
	d.waitSignals()

	return nil
}

// fsnotifyLoop processes filesystem change events.
func (d *Daemon) fsnotifyLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				d.log(LogLevelDebug, "fsnotify event=%s file=%s", event.Op, event.Name)
				d.inbox.HandleFileEvent(event.Name)
			}
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.log(LogLevelError, "fsnotify error=%v", err)
		}
	}
}

// tickerLoop triggers periodic inbox scans at configured intervals.
func (d *Daemon) tickerLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-d.ticker.C:
			d.log(LogLevelDebug, "periodic scan triggered")
			d.inbox.PeriodicScan()
		}
	}
}

// waitSignals blocks until a shutdown signal is received.
func (d *Daemon) waitSignals() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigCh
	d.log(LogLevelInfo, "received signal=%s, initiating graceful shutdown", sig)

	// Second signal forces exit
	go func() {
		<-sigCh
		d.log(LogLevelWarn, "received second signal, forcing exit")
		os.Exit(1)
	}()

	d.Shutdown()
}

// Shutdown performs graceful shutdown (idempotent via sync.Once).
func (d *Daemon) Shutdown() {
	d.shutdown.Do(func() {
		d.log(LogLevelInfo, "shutdown started")

		// 1. Cancel context (stops accepting new work)
		d.cancel()

		// 2. Stop producers
		d.ticker.Stop()
		if d.watcher != nil {
			d.watcher.Close()
		}
		if d.server != nil {
			d.server.Stop()
		}

		// 3. Drain in-flight with timeout
		timeout := d.config.Daemon.ShutdownTimeoutSec
		if timeout <= 0 {
			timeout = 30
		}

		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			d.log(LogLevelInfo, "all goroutines drained")
		case <-time.After(time.Duration(timeout) * time.Second):
			d.log(LogLevelWarn, "shutdown timeout after %ds, some operations may be incomplete", timeout)
		}

		// 4. Cleanup
		d.bus.Close()
		d.cleanup()
		d.log(LogLevelInfo, "daemon stopped")
	})
}

// cleanup releases resources.
func (d *Daemon) cleanup() {
	socketPath := filepath.Join(d.voxplanDir, uds.DefaultSocketName)
	os.Remove(socketPath)
	d.fileLock.Unlock()
	if d.audit != nil {
		d.audit.Close()
	}
	if d.logFile != nil {
		d.logFile.Close()
	}
}

func (d *Daemon) log(level LogLevel, format string, args ...any) {
	if level < d.logLevel {
		return
	}
	levelStr := "INFO"
	switch level {
	case LogLevelDebug:
		levelStr = "DEBUG"
	case LogLevelWarn:
		levelStr = "WARN"
	case LogLevelError:
		levelStr = "ERROR"
	}
	msg := fmt.Sprintf(format, args...)
	d.logger.Printf("%s %s daemon: %s", time.Now().Format(time.RFC3339), levelStr, msg)
}
