package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/agrolink-core/internal/adapters/driven/auth"
	httpserver "github.com/custodia-labs/agrolink-core/internal/adapters/driving/http"
	"github.com/custodia-labs/agrolink-core/internal/core/domain"
	"github.com/custodia-labs/agrolink-core/internal/core/ports/driven"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var noWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local HTTP API and run the drain worker",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			defer a.shutdown(ctx)

			var authAdapter driven.AuthAdapter
			if secret := a.cfg.Security.JWTSecret; secret != "" {
				adapter, err := auth.NewAdapter(secret)
				if err != nil {
					return err
				}
				authAdapter = adapter
			} else {
				a.logger.Warn("no jwt secret configured, local API authentication is disabled")
			}

			w := a.newWorker()
			if !noWorker {
				if err := w.Start(ctx); err != nil {
					return err
				}
				defer w.Stop()
			}

			srv := httpserver.NewServer(httpserver.Config{
				Host:           a.cfg.Server.Host,
				Port:           a.cfg.Server.Port,
				Version:        version,
				AllowedOrigins: a.cfg.Server.AllowedOrigins,
				Logger:         a.logger.With("component", "http"),
			}, a.sync, a.entities, a.data, a.analytics, a.cloud, w, authAdapter, a.store)

			return srv.Start(ctx)
		}),
	}
	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "only drain on POST /api/v1/sync/drain")
	return cmd
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		subject string
		scope   string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the local HTTP API",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			adapter, err := auth.NewAdapter(a.cfg.Security.JWTSecret)
			if errors.Is(err, auth.ErrEmptySecret) {
				return errors.New("set security.jwt_secret or AGROLINK_SECURITY_JWT_SECRET to issue tokens")
			}
			if err != nil {
				return err
			}
			if ttl <= 0 {
				return fmt.Errorf("%w: ttl must be positive", domain.ErrInvalidInput)
			}

			now := time.Now()
			token, err := adapter.GenerateToken(&domain.TokenClaims{
				Subject:   subject,
				Scope:     domain.Scope(scope),
				IssuedAt:  now,
				ExpiresAt: now.Add(ttl),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		}),
	}
	cmd.Flags().StringVar(&subject, "subject", "", "who the token is issued to")
	cmd.Flags().StringVar(&scope, "scope", string(domain.ScopeRead), "read or write")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
