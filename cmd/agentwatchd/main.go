package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/agentwatch/agentwatch/internal/audit"
	"github.com/agentwatch/agentwatch/internal/config"
	"github.com/agentwatch/agentwatch/internal/enrich"
	"github.com/agentwatch/agentwatch/internal/hookstore"
	"github.com/agentwatch/agentwatch/internal/httpapi"
	"github.com/agentwatch/agentwatch/internal/livestore"
	"github.com/agentwatch/agentwatch/internal/scanport"
	"github.com/agentwatch/agentwatch/internal/scanprocess"
	"github.com/agentwatch/agentwatch/internal/scanrepo"
	"github.com/agentwatch/agentwatch/internal/wshub"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "daemon":
		runDaemon(os.Args[2:])
	case "tui", "web", "run":
		fmt.Printf("%s is part of the separate agentwatch-ui module; this binary implements only the daemon subcommand.\n", os.Args[1])
		os.Exit(0)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: agentwatchd <daemon|tui|web|run> [flags]")
}

func runDaemon(args []string) {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (defaults to "+config.DefaultConfigPath()+")")
	stateDir := fs.String("state-dir", "", "path to state directory (defaults to "+config.DefaultStateDir()+")")
	port := fs.Int("port", 0, "override the configured server port")
	fs.Parse(args)

	debug := os.Getenv("DEBUG") != ""

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("[agentwatchd] loading config: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	dir := *stateDir
	if dir == "" {
		dir = config.DefaultStateDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatalf("[agentwatchd] creating state dir %s: %v", dir, err)
	}

	lockPath := filepath.Join(dir, "watcher.pid.lock")
	fileLock := flock.New(lockPath)
	locked, err := fileLock.TryLock()
	if err != nil {
		log.Fatalf("[agentwatchd] acquiring lock %s: %v", lockPath, err)
	}
	if !locked {
		log.Fatalf("[agentwatchd] another agentwatchd instance is already running against %s", dir)
	}
	defer fileLock.Unlock()

	pidPath := filepath.Join(dir, "watcher.pid")
	if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
		log.Fatalf("[agentwatchd] writing pid file %s: %v", pidPath, err)
	}
	defer os.Remove(pidPath)

	hub := wshub.New()

	live := livestore.New(
		func(snapshot any) { hub.BroadcastJSON(map[string]any{"type": "repos", "data": snapshot}) },
		func(snapshot any) { hub.BroadcastJSON(map[string]any{"type": "agents", "data": snapshot}) },
		func(snapshot any) { hub.BroadcastJSON(map[string]any{"type": "ports", "data": snapshot}) },
	)

	auditLogger := audit.NewLogger(
		filepath.Join(dir, "events.jsonl"),
		filepath.Join(dir, "audit.jsonl"),
	)

	hooks := hookstore.New(hookstore.Config{
		SessionsPattern:   filepath.Join(dir, "hooks", "sessions_*.jsonl"),
		ToolUsagesPattern: filepath.Join(dir, "hooks", "tool_usages_*.jsonl"),
		CommitsPattern:    filepath.Join(dir, "hooks", "commits_*.jsonl"),
		StatsPath:         filepath.Join(dir, "hooks", "stats.json"),
	},
		func(sess *hookstore.Session) { hub.BroadcastJSON(map[string]any{"type": "session", "data": sess}) },
		func(usage *hookstore.ToolUsage) { hub.BroadcastJSON(map[string]any{"type": "toolUsage", "data": usage}) },
	)
	if err := hooks.LoadStats(); err != nil {
		log.Printf("[agentwatchd] loading hook stats: %v", err)
	}
	if err := hooks.LoadRecent(); err != nil {
		log.Printf("[agentwatchd] loading recent tool usages: %v", err)
	}

	enrichStore, err := enrich.NewStore(filepath.Join(dir, "enrichments", "store.json"))
	if err != nil {
		log.Fatalf("[agentwatchd] opening enrichment store: %v", err)
	}

	timeline := audit.NewTimeline(auditLogger, sessionLifecycleProvider(hooks))

	procCfg, err := cfg.ScanProcessConfig()
	if err != nil {
		log.Fatalf("[agentwatchd] compiling process matchers: %v", err)
	}
	procScanner := scanprocess.New(procCfg, live, nil)
	// Runs every tick, not just when a PID disappears: §4.H's staleness
	// reconciliation and session↔process PID binding both need to observe
	// the live agent set on every tick (a session can go stale, or gain a
	// unique cwd match, with the process fleet otherwise unchanged).
	procScanner.SetOnTick(func(agents map[int]*livestore.Agent) {
		liveAgents := toLiveAgents(agents)
		hooks.MatchSessionsToAgents(liveAgents)
		closed := hooks.ReconcileDeadSessions(liveAgents)
		for _, id := range closed {
			auditLogger.Log("session", "dead_process_reconcile", id, nil)
		}
	})
	repoScanner := scanrepo.New(cfg.ScanRepoConfig(), live)
	portScanner := scanport.New(cfg.ScanPortConfig(), live)

	srv := httpapi.New(live, hooks, timeline, auditLogger, enrichStore, hub, httpapi.Config{
		AuthToken:      cfg.Server.AuthToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	mux := http.NewServeMux()
	srv.Routes(mux)

	var handler http.Handler = mux
	if debug {
		log.Printf("[agentwatchd] debug request logging enabled")
		handler = withRequestLog(mux)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	procScanner.Start(ctx)
	repoScanner.Start(ctx)
	portScanner.Start(ctx)

	go runCleanupLoop(ctx, hooks, cfg.Hook.MaxSessionDays, cfg.Hook.MaxToolUsages, cleanupInterval)

	config.Watch(cfgPath, func(next *config.Config, changes []string) {
		if len(changes) == 0 {
			return
		}
		log.Printf("[agentwatchd] config reloaded: %v", changes)
		// Config reloads have no natural entity id, so mint one to give
		// each reload event its own audit merge key.
		auditLogger.Log("config", "reloaded", uuid.NewString(), changes)
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: handler}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("[agentwatchd] shutting down")
		cancel()
		procScanner.Stop()
		repoScanner.Stop()
		portScanner.Stop()
		httpServer.Close()
	}()

	log.Printf("[agentwatchd] listening on %s (state dir %s)", addr, dir)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("[agentwatchd] server error: %v", err)
	}
}

// cleanupInterval is how often the daemon enforces the hook store's
// retention rules (§4.H: maxSessionDays session eviction, maxToolUsages
// cap on the in-memory usage window).
const cleanupInterval = 1 * time.Hour

// runCleanupLoop periodically calls hooks.CleanupOldData so the
// documented retention limits actually get enforced in a running daemon,
// not just in tests. It runs once at startup and then on every interval
// tick until ctx is cancelled. interval is a parameter (rather than always
// reading the cleanupInterval constant) so tests can drive it on a fast
// ticker.
func runCleanupLoop(ctx context.Context, hooks *hookstore.Store, maxDays, maxToolUsages int, interval time.Duration) {
	cleanup := func() {
		if evicted := hooks.CleanupOldData(maxDays, maxToolUsages); evicted > 0 {
			log.Printf("[agentwatchd] cleanup: evicted %d stale sessions", evicted)
		}
	}
	cleanup()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cleanup()
		}
	}
}

// sessionLifecycleProvider reconstructs session start/end audit events from
// the hook store's session records, so the inferred timeline can surface
// lifecycle history even for events older than the audit log's retention.
func sessionLifecycleProvider(hooks *hookstore.Store) audit.InferredProvider {
	return func(since, until time.Time) []audit.Event {
		var events []audit.Event
		for _, sess := range hooks.GetAllSessions() {
			if !sess.StartTime.Before(since) && !sess.StartTime.After(until) {
				events = append(events, audit.Event{
					Timestamp: sess.StartTime,
					Category:  "session",
					Action:    "start",
					EntityID:  sess.ID,
					Source:    "inferred",
				})
			}
			if sess.EndTime != nil && !sess.EndTime.Before(since) && !sess.EndTime.After(until) {
				events = append(events, audit.Event{
					Timestamp: *sess.EndTime,
					Category:  "session",
					Action:    "end",
					EntityID:  sess.ID,
					Source:    "inferred",
				})
			}
		}
		return events
	}
}

func toLiveAgents(agents map[int]*livestore.Agent) map[int]hookstore.LiveAgent {
	out := make(map[int]hookstore.LiveAgent, len(agents))
	for pid, a := range agents {
		out[pid] = hookstore.LiveAgent{PID: a.PID, Cwd: a.Cwd, Label: a.Label}
	}
	return out
}

func withRequestLog(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[agentwatchd] %s %s", r.Method, r.URL.Path)
		h.ServeHTTP(w, r)
	})
}
