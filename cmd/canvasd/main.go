package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/miriamsimone/collab-canvas-sub000/internal/command"
	"github.com/miriamsimone/collab-canvas-sub000/internal/config"
	"github.com/miriamsimone/collab-canvas-sub000/internal/ephemeral"
	"github.com/miriamsimone/collab-canvas-sub000/internal/gateway"
	"github.com/miriamsimone/collab-canvas-sub000/internal/lock"
	"github.com/miriamsimone/collab-canvas-sub000/internal/presence"
	"github.com/miriamsimone/collab-canvas-sub000/internal/reconcile"
	"github.com/miriamsimone/collab-canvas-sub000/internal/session"
	"github.com/miriamsimone/collab-canvas-sub000/pkg/canvas"
)

func main() {
	// 1. Load configuration: canvas.yml if CANVAS_CONFIG is set, otherwise
	// environment-driven defaults (CANVAS_BOARD, REDIS_URL).
	var cfg *config.Config
	if path := os.Getenv("CANVAS_CONFIG"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to load %s: %v\n", path, err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	// 2. Parse Redis URL
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid Redis URL: %v\n", err)
		os.Exit(1)
	}

	// 3. Local participant identity
	user := session.User{
		ID:    os.Getenv("CANVAS_USER_ID"),
		Name:  cfg.User.Name,
		Color: cfg.User.Color,
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Name == "" {
		user.Name = "canvasd"
	}
	if user.Color == "" {
		user.Color = "#7f8c8d"
	}

	// 4. Create the durable store client and verify connectivity
	store, err := canvas.NewClient(redisOpts, cfg.Board)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create store client: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Redis not accessible: %v\n", err)
		os.Exit(1)
	}

	// 5. Assemble the services the session owns
	movements, err := ephemeral.NewStore(redisOpts, cfg.Board, cfg.ActiveTTL())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create movement store: %v\n", err)
		os.Exit(1)
	}
	defer movements.Close()

	locks, err := lock.NewManager(redisOpts, cfg.Board)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create lock manager: %v\n", err)
		os.Exit(1)
	}
	defer locks.Close()

	presenceChannel, err := presence.NewChannel(redisOpts, cfg.Board, cfg.PresenceTTL())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create presence channel: %v\n", err)
		os.Exit(1)
	}
	defer presenceChannel.Close()

	heartbeat := presence.NewHeartbeat(presenceChannel, canvas.Presence{
		UserID:      user.ID,
		DisplayName: user.Name,
		Color:       user.Color,
	}, cfg.HeartbeatInterval())

	engine := reconcile.NewEngine(user.ID, cfg.GraceTTL())
	history := command.NewHistory(user.ID)
	sess := session.New(user, store, movements, locks, heartbeat, engine, history)
	hub := gateway.NewHub(sess)
	engine.Subscribe(hub.OnView)

	fmt.Printf("canvasd starting for board '%s' as %s (%s)\n", cfg.Board, user.Name, user.ID)

	// 6. Graceful shutdown wiring
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	errCh := make(chan error, 1)
	go func() {
		errCh <- engine.Run(runCtx, store, movements, locks)
	}()
	go heartbeat.Run(runCtx)
	go hub.Run(runCtx)

	presenceSub, err := presenceChannel.SubscribeAll(runCtx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to subscribe to presence: %v\n", err)
		os.Exit(1)
	}
	defer presenceSub.Close()
	go func() {
		for snapshot := range presenceSub.Snapshots() {
			hub.OnPresence(snapshot)
		}
	}()

	// 7. Websocket endpoint for rendering clients
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	server := &http.Server{Addr: cfg.Gateway.Listen, Handler: mux}
	go func() {
		fmt.Printf("Gateway listening on %s\n", cfg.Gateway.Listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// 8. Wait for shutdown signal or fatal error
	select {
	case sig := <-sigCh:
		fmt.Printf("Received signal %v, shutting down gracefully...\n", sig)
	case runErr := <-errCh:
		if runErr != nil {
			fmt.Fprintf(os.Stderr, "canvasd error: %v\n", runErr)
			cancel()
			sess.Close(context.Background())
			server.Shutdown(context.Background())
			os.Exit(1)
		}
	}

	cancel()
	sess.Close(context.Background())
	server.Shutdown(context.Background())

	fmt.Println("canvasd stopped")
}
