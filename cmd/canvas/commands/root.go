package commands

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/miriamsimone/collab-canvas-sub000/internal/config"
)

var (
	version string
	commit  string
	date    string

	boardName string
	redisURL  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "canvas",
	Short: "Canvas - collaborative drawing board tooling",
	Long: `Canvas is the operator tooling for the collaborative drawing board.

It inspects and watches the shared board state: durable shapes, live
drag broadcasts, advisory editing locks, and user presence, all held in
Redis and merged into the view rendering clients consume.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&boardName, "board", "", "Board name (defaults to CANVAS_BOARD or 'default')")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis", "", "Redis URL (defaults to REDIS_URL or redis://localhost:6379)")
}

// resolveTarget merges flags with the environment-driven defaults and returns
// the Redis options and board name shared by all subcommands.
func resolveTarget() (*redis.Options, string, error) {
	cfg := config.Default()
	if boardName != "" {
		cfg.Board = boardName
	}
	if redisURL != "" {
		cfg.Redis.URL = redisURL
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid Redis URL %q: %w", cfg.Redis.URL, err)
	}
	return opts, cfg.Board, nil
}
