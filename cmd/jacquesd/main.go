// Command jacquesd runs the Jacques control-plane server: the session
// registry, its background watchers, the hook ingestion endpoint, and the
// dashboard WebSocket broker, wired together and served until SIGINT or
// SIGTERM.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gregory-lime/jacques/internal/config"
	"github.com/gregory-lime/jacques/internal/focuswatch"
	"github.com/gregory-lime/jacques/internal/gitdiverge"
	"github.com/gregory-lime/jacques/internal/hook"
	"github.com/gregory-lime/jacques/internal/modedetect"
	"github.com/gregory-lime/jacques/internal/notify"
	"github.com/gregory-lime/jacques/internal/procscan"
	"github.com/gregory-lime/jacques/internal/session"
	"github.com/gregory-lime/jacques/internal/shell"
	"github.com/gregory-lime/jacques/internal/ws"
)

// broadcastingDispatcher hands a notification to the OS dispatcher and
// fans it out to every connected dashboard client, so a notification shows
// up whether or not its OS-level toast is visible.
type broadcastingDispatcher struct {
	inner       notify.Dispatcher
	broadcaster *ws.Broadcaster
}

func (d *broadcastingDispatcher) Dispatch(n notify.Notification) string {
	d.broadcaster.BroadcastNotificationFired(n)
	return d.inner.Dispatch(n)
}

// atomicBool backs the broadcaster's scanning flag, flipped once the
// startup process-table sweep finishes.
type atomicBool struct{ v atomic.Bool }

func (a *atomicBool) set(val bool) { a.v.Store(val) }
func (a *atomicBool) get() bool    { return a.v.Load() }

func main() {
	configPath := flag.String("config", "", "path to config file (defaults to the XDG config dir)")
	port := flag.Int("port", 0, "override the configured server port")
	flag.Parse()

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}

	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("jacques: failed to load config: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	runner := shell.NewRunner()
	scanner := procscan.New()
	detector := modedetect.New()

	var broadcaster *ws.Broadcaster
	var notifyEngine *notify.Engine
	onEvent := func(ev session.Event) {
		switch ev.Type {
		case session.EventRemoved:
			broadcaster.BroadcastSessionRemoved(ev.ID)
			notifyEngine.OnSessionRemoved(ev.ID)
		case session.EventFocused:
			broadcaster.BroadcastFocusChanged(ev.ID, ev.State)
		default:
			broadcaster.QueueSessionUpdate(ev.State)
			if ev.State != nil && ev.State.ContextMetrics != nil {
				notifyEngine.OnContextUpdate(notify.ContextSource{
					SessionID:      ev.State.SessionID,
					UsedPercentage: ev.State.ContextMetrics.UsedPercentage,
				})
			}
		}
	}

	registry := session.NewRegistry(onEvent, nil, detector)
	broadcaster = ws.NewBroadcaster(registry, 50*time.Millisecond, 30*time.Second, cfg.Server.MaxConnections)

	notifyStore := notify.NewConfigStore(notify.DefaultConfigPath())
	notifyCfg, err := notifyStore.Load()
	if err != nil {
		log.Printf("jacques: notify config load failed, using defaults: %v", err)
		defaults := notify.DefaultConfig()
		notifyCfg = &defaults
	}
	notifyEngine = notify.New(*notifyCfg, notifyStore, &broadcastingDispatcher{inner: notify.NewDesktopDispatcher(), broadcaster: broadcaster}, func(sessionID string) error {
		sess := registry.GetSession(sessionID)
		if sess == nil {
			return nil
		}
		broadcaster.BroadcastFocusChanged(sess.SessionID, sess)
		return nil
	})

	broadcaster.SetNotificationHistory(notifyEngine.History)

	focusWatcher := focuswatch.New(focuswatch.DefaultConfig(), registry)

	divergence := gitdiverge.New(runner, gitdiverge.Config{
		PollInterval: cfg.Divergence.PollInterval,
		Debounce:     cfg.Divergence.Debounce,
	}, func(repoRoot, branch string, result gitdiverge.Result) {
		log.Printf("jacques: divergence %s@%s: +%d/-%d dirty=%v", repoRoot, branch, result.Ahead, result.Behind, result.Dirty)
	})

	hookHandler := hook.New(registry, func(sess *session.Session) {
		broadcaster.QueueSessionUpdate(sess)
	})

	server := ws.NewServer(cfg, registry, broadcaster, "", false, nil, cfg.Server.AllowedOrigins, cfg.Server.AuthToken)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var scanning atomicBool
	scanning.set(true)
	broadcaster.SetScanning(scanning.get)

	go func() {
		log.Println("jacques: running initial process scan")
		defer scanning.set(false)
		discovered, derr := scanner.Discover(ctx)
		if derr != nil {
			log.Printf("jacques: initial process scan failed: %v", derr)
			return
		}
		for _, d := range discovered {
			registry.RegisterDiscovered(d)
		}
		broadcaster.BroadcastServerStatus("ok")
	}()

	registry.StartCleanup(ctx, session.CleanupConfig{
		SweepInterval: cfg.Registry.CleanupSweepInterval,
		MaxIdle:       cfg.Registry.MaxIdle,
	}, scanner)

	focusWatcher.Start(ctx)
	divergence.Start(ctx)

	mux := http.NewServeMux()
	server.SetupRoutes(mux)
	mux.Handle(cfg.Hook.Path, hookHandler)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("jacques: shutting down")
		cancel()
		broadcaster.Stop()
		os.Exit(0)
	}()

	if err := ws.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux); err != nil {
		log.Fatalf("jacques: server error: %v", err)
	}
}
