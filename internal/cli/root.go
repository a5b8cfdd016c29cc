package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"whiteboard/internal/config"
)

type App struct {
	ConfigPath string
	Board      string
	Store      string
	DataDir    string
	ServerURL  string
	Debug      bool

	cfg     config.Config
	log     *log.Logger
	logFile io.Closer
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "whiteboard",
		Short:        "Infinite whiteboard in the terminal, backed by a Block Store",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Open the default board
  whiteboard

  # Open another board against a remote server
  whiteboard --board roadmap --store http --server http://boards.local:8080

  # Serve the Block Store API
  whiteboard serve --listen :8080

  # Scriptable commands
  whiteboard blocks list
  whiteboard export --png board.png
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runTUI(cmd, app)
			}
			return cmd.Help()
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return app.load(cmd)
	}
	cmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if app.logFile != nil {
			return app.logFile.Close()
		}
		return nil
	}

	cmd.PersistentFlags().StringVar(&app.ConfigPath, "config", envOr("WHITEBOARD_CONFIG", config.DefaultPath()), "Path to the config file")
	cmd.PersistentFlags().StringVar(&app.Board, "board", "", "Board id (overrides config)")
	cmd.PersistentFlags().StringVar(&app.Store, "store", "", "Block Store backend: sqlite|http|aztables")
	cmd.PersistentFlags().StringVar(&app.DataDir, "data-dir", "", "Directory for the sqlite store and media")
	cmd.PersistentFlags().StringVar(&app.ServerURL, "server", "", "Block Store server URL for --store http")
	cmd.PersistentFlags().BoolVar(&app.Debug, "debug", false, "Debug logging")

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newBlocksCmd(app))
	cmd.AddCommand(newExportCmd(app))
	cmd.AddCommand(newConfigCmd(app))
	return cmd
}

// load resolves the config file, then env, then flags.
func (app *App) load(cmd *cobra.Command) error {
	cfg, err := config.Load(app.ConfigPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("board") {
		cfg.Board = app.Board
	}
	if flags.Changed("store") {
		cfg.Store = app.Store
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = app.DataDir
		cfg.MediaDir = filepath.Join(app.DataDir, "media")
	}
	if flags.Changed("server") {
		cfg.ServerURL = app.ServerURL
	}
	if app.Debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	app.cfg = cfg

	logger := log.New()
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("%w: log_level %q", config.ErrInvalid, cfg.LogLevel)
	}
	logger.SetLevel(level)
	logger.SetOutput(cmd.ErrOrStderr())
	app.log = logger
	return nil
}

// logToFile moves logging off the terminal, which the TUI owns.
func (app *App) logToFile() error {
	if app.cfg.LogFile == "" {
		app.log.SetOutput(io.Discard)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(app.cfg.LogFile), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(app.cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	app.log.SetFormatter(&log.JSONFormatter{})
	app.log.SetOutput(f)
	app.logFile = f
	return nil
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
