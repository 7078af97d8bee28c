package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"valorant-rolesync/internal/config"
	"valorant-rolesync/internal/constants"
	fxmodules "valorant-rolesync/internal/fx"
	"valorant-rolesync/internal/onboarding"
	"valorant-rolesync/internal/server"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.StopTimeout(constants.StopTimeout),
		fx.Invoke(run),
	).Run()
}

func run(
	lc fx.Lifecycle,
	cfg *config.Config,
	fleet *fxmodules.Fleet,
	session *discordgo.Session,
	joins *onboarding.Handler,
	status *server.StatusServer,
	logger zerolog.Logger,
) {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.StatusPort),
		Handler: status.Handler(),
	}

	var (
		cancel       context.CancelFunc
		group        *errgroup.Group
		removeJoins  func()
		sessionReady bool
	)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			removeJoins = joins.Attach(session)
			if err := session.Open(); err != nil {
				// cycles still run; joined members are picked up on the next pass
				logger.Error().Err(err).Msg("failed to open discord gateway session")
			} else {
				sessionReady = true
				logger.Info().Msg("listening for member joins")
			}

			var runCtx context.Context
			runCtx, cancel = context.WithCancel(context.Background())
			group, runCtx = errgroup.WithContext(runCtx)
			for _, loop := range fleet.Loops {
				loop := loop
				group.Go(func() error {
					return loop.Run(runCtx)
				})
			}

			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("status server starting")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error().Err(err).Msg("status server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down, waiting for in-flight members")
			cancel()

			done := make(chan error, 1)
			go func() { done <- group.Wait() }()
			select {
			case err := <-done:
				if err != nil {
					logger.Error().Err(err).Msg("worker loop failed")
				}
			case <-ctx.Done():
				logger.Warn().Msg("workers did not stop in time")
			}

			removeJoins()
			if sessionReady {
				if err := session.Close(); err != nil {
					logger.Warn().Err(err).Msg("error closing discord session")
				}
			}

			shutdownCtx, stop := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer stop()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("status server shutdown failed")
				return err
			}
			logger.Info().Msg("stopped gracefully")
			return nil
		},
	})
}
