package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/indielab/kaish/core/remote"
)

var serveAddr string

// serveCmd exposes a kernel over the JSON-lines RPC protocol, either on
// stdio or a TCP listen address. An optional script argument preloads
// tool definitions before serving.
var serveCmd = &cobra.Command{
	Use:   "serve [script]",
	Short: "Serve the kernel over JSON-lines RPC.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Serve.Address = serveAddr
		}

		k, err := buildKernel(ctx)
		if err != nil {
			return err
		}
		defer k.Close()

		if len(args) == 1 {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			res, err := k.RunScript(ctx, args[0], string(data))
			if err != nil {
				return err
			}
			if !res.Ok {
				log.Printf("preload script failed with code %d: %s", res.Code, res.Err)
			}
		}

		srv := remote.NewServer(k, nil)
		if cfg.Serve.Address != "" {
			log.Printf("Listening on %s", cfg.Serve.Address)
			return srv.ServeTCP(ctx, cfg.Serve.Address)
		}
		return srv.Serve(ctx, os.Stdin, os.Stdout)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "address", "", "TCP listen address (default stdio)")
	rootCmd.AddCommand(serveCmd)
}
