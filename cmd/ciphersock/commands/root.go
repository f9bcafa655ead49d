package commands

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"ciphersock/internal/app"
)

var (
	cfg     app.Config
	appWire *app.Wire
)

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "ciphersock",
		Short:        "Encrypted socket transport client",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := app.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogJSON)
			if err != nil {
				return err
			}
			appWire, err = app.NewWire(cfg, logger)
			return err
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&cfg.Home, "home", "", "state dir (default ~/.ciphersock)")
	f.StringVarP(&cfg.Passphrase, "passphrase", "p", "", "passphrase protecting the stored auth secret")
	f.StringVar(&cfg.PSKPassphrase, "psk-passphrase", "", "derive the auth secret from this shared passphrase instead")
	f.StringVar(&cfg.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	f.BoolVar(&cfg.LogJSON, "log-json", false, "emit JSON log records")
	f.DurationVar(&cfg.DialTimeout, "dial-timeout", 5*time.Second, "per-attempt dial timeout")
	f.DurationVar(&cfg.HandshakeTimeout, "handshake-timeout", 10*time.Second, "per-step handshake timeout")

	root.AddCommand(initCmd(), allowCmd(), sendCmd(), pingCmd())
	return root
}

// Execute runs the CLI. An interrupt cancels the running command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return newRoot().ExecuteContext(ctx)
}
