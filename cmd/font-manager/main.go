package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fontkit/font-manager/internal/config"
	"github.com/fontkit/font-manager/internal/database"
	"github.com/fontkit/font-manager/internal/logging"
	"github.com/fontkit/font-manager/internal/platform"
	"github.com/fontkit/font-manager/pkg/fm"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool

	cfg     *config.Config
	manager *fm.DefaultManager
	logger  *logging.Logger
	cache   *database.Cache
)

// Commands carrying this annotation run without opening the cache.
const noManager = "no-manager"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	shutdown()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "font-manager",
	Short: "font-manager organises the fonts installed on Linux and macOS",
	Long: `A font manager that keeps a metadata cache of installed fonts and
supports collections, disabling families and installing from:
- local files and zip archives
- Nerd Fonts
- FontSource
- Direct URLs

Examples:
  # Show installed families
  font-manager list

  # Install a font from any source
  font-manager install "FiraCode"

  # Install specifically from NerdFonts
  font-manager install "FiraCode@nerdfonts"

  # Install local files
  font-manager install ./Inter.zip ./MyFont.otf

  # Hide a family from every application
  font-manager disable "Comic Sans MS"`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		if _, ok := cmd.Annotations[noManager]; ok {
			return nil
		}
		return setup(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/font-manager/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")
}

func defaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("finding config directory: %w", err)
	}
	return filepath.Join(dir, "font-manager", "config.toml"), nil
}

func loadConfig() error {
	if configPath == "" {
		path, err := defaultConfigPath()
		if err != nil {
			return err
		}
		configPath = path
	}

	dataDir, err := platform.New(platform.Options{}).DataDir()
	if err != nil {
		return fmt.Errorf("finding data directory: %w", err)
	}
	cfg, err = config.Load(configPath, config.Default(dataDir))
	if err != nil {
		return err
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return nil
}

// setup opens the cache and builds the manager, then brings the cache up
// to date.
func setup(ctx context.Context) error {
	var err error
	logger, err = logging.New(cfg.LogDir, logging.ParseLevel(cfg.LogLevel))
	if err != nil {
		return err
	}

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return err
	}
	if dbPath != database.Memory {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}
	cache, err = database.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening font cache: %w", err)
	}

	manager, err = fm.NewManager(fm.Options{
		Platform: platform.New(platform.Options{FcList: cfg.FcList, FcCache: cfg.FcCache}),
		Cache:    cache,
		Logger:   logger,
		Workers:  cfg.Workers,
		DataDir:  cfg.DataDir,
	})
	if err != nil {
		return fmt.Errorf("initializing font manager: %w", err)
	}

	// Register default sources
	if err := manager.RegisterSource(fm.NewNerdFontsSource()); err != nil {
		return fmt.Errorf("registering NerdFonts source: %w", err)
	}
	if err := manager.RegisterSource(fm.NewFontSourceAPI()); err != nil {
		return fmt.Errorf("registering FontSource API: %w", err)
	}

	if _, err := manager.Load(ctx); err != nil {
		return fmt.Errorf("loading font cache: %w", err)
	}
	return nil
}

func shutdown() {
	if cache != nil {
		if err := cache.Close(); err != nil && logger != nil {
			logger.Warn("closing font cache", "error", err)
		}
	}
	if logger != nil {
		logger.Close()
	}
}
