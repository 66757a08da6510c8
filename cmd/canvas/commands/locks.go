package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/miriamsimone/collab-canvas-sub000/internal/lock"
	"github.com/miriamsimone/collab-canvas-sub000/internal/printer"
)

var (
	locksReleaseUser string
)

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "Show or clean up advisory editing locks",
	Long: `Show the advisory editing locks currently held on a board.

Locks are informational only - they never block a write - but a crashed
client can leave stale records behind. Use --release-user to drop every
lock a disconnected user still holds, the same cleanup a client performs
on tab close.`,
	RunE: runLocks,
}

func init() {
	locksCmd.Flags().StringVar(&locksReleaseUser, "release-user", "", "Release every lock held by this user ID")
	rootCmd.AddCommand(locksCmd)
}

func runLocks(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	opts, board, err := resolveTarget()
	if err != nil {
		return err
	}

	locks, err := lock.NewManager(opts, board)
	if err != nil {
		return err
	}
	defer locks.Close()

	if locksReleaseUser != "" {
		locks.ReleaseAll(ctx, locksReleaseUser)
		printer.Success("Released all locks held by %s on board %q\n", locksReleaseUser, board)
		return nil
	}

	lockMap, err := locks.Snapshot(ctx)
	if err != nil {
		return printer.ErrorWithContext(
			"Cannot read locks",
			"The lock hash could not be read from Redis.",
			map[string]string{"board": board},
			[]string{"Check that Redis is running and REDIS_URL / --redis points at it"},
		)
	}

	if len(lockMap) == 0 {
		printer.Info("No locks held on board %q\n", board)
		return nil
	}

	printer.Info("Board %q: %d locks\n\n", board, len(lockMap))
	for shapeID, l := range lockMap {
		age := time.Since(time.UnixMilli(l.TimestampMs)).Round(time.Second)
		printer.Printf("  %-24s  %s (%s)  held %s\n", shapeID, l.UserName, l.UserID, age)
	}
	return nil
}
