package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/infrawatch/infrawatch/internal/config"
	"github.com/infrawatch/infrawatch/internal/credentials"
	"github.com/infrawatch/infrawatch/internal/metrics"
	"github.com/infrawatch/infrawatch/internal/realtime"
)

// errNoCredential is returned by watch when no token is stored.
var errNoCredential = errors.New("no realtime credential: set " +
	credentials.EnvPrefix + "_AUTH_TOKEN or " + credentials.TokenKey + " in the credentials file")

func watchCmd() *cobra.Command {
	var (
		credentialsPath string
		metricsAddr     string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the realtime stream and print state changes and events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := loadClientConfig(os.LookupEnv)
			if err != nil {
				return err
			}
			if credentialsPath == "" {
				credentialsPath = cfg.Realtime.CredentialsFile
			}
			if credentialsPath == "" {
				credentialsPath = credentials.DefaultPath()
			}
			creds, err := credentials.Load(credentialsPath)
			if err != nil {
				return err
			}

			var m *metrics.Metrics
			if metricsAddr != "" {
				m = metrics.New()
				go serveMetrics(ctx, metricsAddr, m)
			}

			return runWatch(ctx, cmd.OutOrStdout(), cfg.Realtime, creds, m)
		},
	}
	cmd.Flags().StringVar(&credentialsPath, "credentials", "", "credentials file (default: realtime.credentials_file or the user config dir)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address, e.g. :9102")
	return cmd
}

// realtimeConfig maps file settings onto the manager configuration.
func realtimeConfig(rc config.RealtimeConfig) realtime.Config {
	return realtime.Config{
		URL:  rc.URL,
		Path: rc.Path,
		Reconnect: realtime.ReconnectPolicy{
			Enabled:     true,
			Delay:       rc.ReconnectDelay,
			MaxDelay:    rc.ReconnectMaxDelay,
			MaxAttempts: rc.ReconnectAttempts,
		},
		HeartbeatInterval: rc.HeartbeatInterval,
		HandshakeTimeout:  rc.HandshakeTimeout,
	}
}

// runWatch prints until ctx is done. The manager is released on every path.
func runWatch(ctx context.Context, out io.Writer, rc config.RealtimeConfig, creds credentials.Store, m *metrics.Metrics) error {
	token, _ := creds.Token()

	mgr := realtime.NewManager(realtimeConfig(rc), token, logger.With("component", "realtime"),
		realtime.WithStateObserver(func(from, to realtime.State) {
			m.RealtimeTransition(from.String(), to.String())
		}),
	)
	defer mgr.Close()

	if token == "" {
		return errNoCredential
	}

	states := mgr.Subscribe()
	frames := mgr.Events()
	fmt.Fprintf(out, "state %s\n", mgr.State())

	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-states:
			if !ok {
				return nil
			}
			fmt.Fprintf(out, "state %s\n", s)
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			fmt.Fprintf(out, "%s %s %s\n", time.Now().Format(time.RFC3339), f.Event, string(f.Data))
		}
	}
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server error", "error", err)
	}
}
