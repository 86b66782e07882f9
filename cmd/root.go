package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/indielab/kaish/core"
	"github.com/indielab/kaish/core/config"
	"github.com/indielab/kaish/core/logger"
	"github.com/indielab/kaish/core/state"
)

var (
	cfgPath     string
	sessionName string
	noPersist   bool
)

func loadConfig() (*config.Configuration, error) {
	configuration, err := config.Load(cfgPath)
	if errors.Is(err, fs.ErrNotExist) {
		// Run with defaults when no config was initialized.
		configuration, err = config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	if sessionName != "" {
		configuration.Session = sessionName
	}
	return configuration, nil
}

// buildKernel assembles a kernel from the configuration: persistent
// store, event log, mounts and tool servers.
func buildKernel(ctx context.Context) (*core.Kernel, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	var opts []core.Option
	if !noPersist {
		store, err := state.OpenSession(cfg.Session)
		if err != nil {
			return nil, fmt.Errorf("open session %q: %w", cfg.Session, err)
		}
		opts = append(opts, core.WithStore(store))
	}
	if cfg.Logging.Path != "" {
		fd, err := os.OpenFile(cfg.Logging.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log: %w", err)
		}
		opts = append(opts, core.WithLogger(logger.NewJSONLinesRecorder(fd)))
	}

	return core.New(ctx, cfg, opts...)
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "kaish [script]",
	Short: "Shell kernel for orchestrating tool invocations",
	Long: `kaish executes a Bourne-lite command language against a registry of
builtin, user-defined and remote tools, with a virtual filesystem and
persistent session state.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		k, err := buildKernel(ctx)
		if err != nil {
			return err
		}
		defer k.Close()

		if len(args) == 1 {
			return runScriptFile(ctx, k, args[0])
		}
		return runREPL(k)
	},
}

func runScriptFile(ctx context.Context, k *core.Kernel, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	res := k.RunStreaming(ctx, string(data), os.Stdout, os.Stderr)
	if !res.Ok {
		k.Close()
		os.Exit(res.Code)
	}
	return nil
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	log.SetFlags(0)
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".", "config path")
	rootCmd.PersistentFlags().StringVar(&sessionName, "session", "", "session name override")
	rootCmd.PersistentFlags().BoolVar(&noPersist, "no-persist", false, "run without a session database")
}
