package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ciphersock/internal/app"
	"ciphersock/internal/services/listener"
)

var (
	cfg          app.Config
	listenAddr   string
	verifySource bool
	rejectDelay  time.Duration
	replyPrefix  string
	metricsAddr  string
)

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "ciphersockd",
		Short:        "Encrypted socket echo server",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := app.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogJSON)
			if err != nil {
				return err
			}
			reg := prometheus.NewRegistry()
			if metricsAddr != "" {
				reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
				cfg.Registerer = reg
			}
			w, err := app.NewWire(cfg, logger)
			if err != nil {
				return err
			}
			opts, err := w.ListenerOptions(listenAddr, verifySource)
			if err != nil {
				return err
			}
			opts.RejectDelay = rejectDelay

			if metricsAddr != "" {
				stop := serveMetrics(metricsAddr, reg, logger)
				defer stop()
			}
			return run(cmd.Context(), listener.New(opts), replyPrefix, logger)
		},
	}

	f := root.Flags()
	f.StringVar(&cfg.Home, "home", "", "state dir (default ~/.ciphersock)")
	f.StringVarP(&cfg.Passphrase, "passphrase", "p", "", "passphrase protecting the stored auth secret")
	f.StringVar(&cfg.PSKPassphrase, "psk-passphrase", "", "derive the auth secret from this shared passphrase instead")
	f.StringVar(&cfg.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	f.BoolVar(&cfg.LogJSON, "log-json", false, "emit JSON log records")
	f.DurationVar(&cfg.HandshakeTimeout, "handshake-timeout", 10*time.Second, "per-step handshake timeout")
	f.StringVar(&listenAddr, "listen", "127.0.0.1:7878", "address to accept peers on")
	f.BoolVar(&verifySource, "verify-source", false, "only admit peers on the allow-list")
	f.DurationVar(&rejectDelay, "reject-delay", listener.DefaultRejectDelay, "pause before closing a refused peer")
	f.StringVar(&replyPrefix, "reply-prefix", "", "prefix added to every echoed reply")
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRoot().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// run starts l and echoes every message until ctx ends.
func run(ctx context.Context, l *listener.Listener, prefix string, log zerolog.Logger) error {
	if err := l.Start(ctx); err != nil {
		return err
	}
	defer l.Close()

	for {
		msg, err := l.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, listener.ErrClosed) {
				log.Info().Msg("shutting down")
				return nil
			}
			return err
		}
		log.Debug().Str("peer", msg.Peer.String()).Int("bytes", len(msg.Payload)).Msg("message")
		reply := make([]byte, 0, len(prefix)+len(msg.Payload))
		reply = append(append(reply, prefix...), msg.Payload...)
		if err := l.SendReply(msg.Peer, reply); err != nil {
			log.Warn().Err(err).Str("peer", msg.Peer.String()).Msg("reply failed")
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, log zerolog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	log.Info().Str("addr", addr).Msg("serving metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
