package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/miriamsimone/collab-canvas-sub000/internal/ephemeral"
	"github.com/miriamsimone/collab-canvas-sub000/internal/lock"
	"github.com/miriamsimone/collab-canvas-sub000/internal/printer"
	"github.com/miriamsimone/collab-canvas-sub000/internal/reconcile"
	"github.com/miriamsimone/collab-canvas-sub000/pkg/canvas"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the merged view of a board in real time",
	Long: `Watch a board as a read-only observer: subscribe to durable shape
events, live drag broadcasts, and lock changes, and print the merged
view every time it changes.

This is the same reconciliation rendering clients consume, so what
scrolls past is exactly what collaborators see - including transient
drag positions and grace-period continuations.

Stop with Ctrl+C.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	opts, board, err := resolveTarget()
	if err != nil {
		return err
	}

	store, err := canvas.NewClient(opts, board)
	if err != nil {
		return err
	}
	defer store.Close()

	movements, err := ephemeral.NewStore(opts, board, 0)
	if err != nil {
		return err
	}
	defer movements.Close()

	locks, err := lock.NewManager(opts, board)
	if err != nil {
		return err
	}
	defer locks.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		cancel()
	}()

	// An observer holds no locks and drags nothing, so the empty user ID
	// renders every overlay.
	engine := reconcile.NewEngine("", 0)
	engine.Subscribe(func(view []reconcile.MergedShape) {
		printer.Info("\n--- %d shapes ---\n", len(view))
		for _, s := range view {
			printer.Shape(s)
		}
	})

	printer.Step("Watching board %q (Ctrl+C to stop)\n", board)
	return engine.Run(ctx, store, movements, locks)
}
