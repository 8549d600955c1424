package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/orcadeck/orca/internal/config"
	"github.com/orcadeck/orca/internal/web"
)

const shutdownGrace = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var (
		listen string
		token  string
		noPush bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve attention state over HTTP, SSE and WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := a.monitor()
			if err != nil {
				return err
			}
			ws := config.GetWebSettings()
			if listen == "" {
				listen = ws.Listen
			}
			if token == "" {
				token = ws.Token
			}

			cfg := web.Config{
				ListenAddr:   listen,
				Profile:      st.Profile,
				Token:        token,
				Source:       st,
				WatchPaths:   []string{st.Transcripts.Root, filepath.Dir(st.StateDBPath)},
				PollInterval: time.Duration(ws.PollSeconds) * time.Second,
			}
			if !noPush {
				a.configurePush(ctx, &cfg, ws.PushSubject)
			}

			srv := web.NewServer(cfg)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()
			fmt.Fprintf(cmd.OutOrStdout(), "orca serving profile %q on http://%s\n", st.Profile, srv.Addr())

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return <-errCh
		},
	}
	f := cmd.Flags()
	f.StringVar(&listen, "listen", "", "listen address (default from config, 127.0.0.1:8787)")
	f.StringVar(&token, "token", "", "require this token on every request")
	f.BoolVar(&noPush, "no-push", false, "disable Web Push notifications")
	return cmd
}

// configurePush enables Web Push when orca.db is available. Failures leave
// push off and the server running.
func (a *app) configurePush(ctx context.Context, cfg *web.Config, subject string) {
	db, err := a.localDB()
	if err != nil {
		cliLog.Warn("push_store_unavailable", slog.String("error", err.Error()))
		return
	}
	pub, priv, generated, err := web.EnsurePushVAPIDKeys(ctx, db)
	if err != nil {
		cliLog.Warn("push_keys_unavailable", slog.String("error", err.Error()))
		return
	}
	if generated {
		cliLog.Info("push_keys_generated")
	}
	cfg.PushStore = db
	cfg.PushVAPIDPublicKey = pub
	cfg.PushVAPIDPrivateKey = priv
	cfg.PushVAPIDSubject = subject
}
