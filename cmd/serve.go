package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/BioHazard786/Huddle/internal/config"
	"github.com/BioHazard786/Huddle/internal/directory"
	"github.com/BioHazard786/Huddle/internal/logging"
)

const shutdownTimeout = 5 * time.Second

var flagConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the directory server",
	Long: `Run the directory server that grants room seats and relays WebRTC handshakes.

Configuration comes from huddle.yaml (or --config) and HUDDLE_ environment
variables. Several instances can share one Redis so peers on different
instances still reach each other.

Examples:
  huddle serve
  huddle serve --config /etc/huddle/huddle.yaml
  HUDDLE_REGISTRY_DRIVER=redis HUDDLE_REDIS_ADDRESS=redis:6379 huddle serve`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), flagConfigPath)
	},
}

func serve(ctx context.Context, path string) error {
	cfg, err := config.LoadServer(path)
	if err != nil {
		return err
	}

	closer, err := logging.Init(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()
	logger := log.Logger.With().Str("instance", cfg.InstanceID).Logger()

	opts := directory.HubOptions{
		Instance: cfg.InstanceID,
		Logger:   logger,
	}
	switch cfg.Registry.Driver {
	case config.RegistryRedis:
		client, err := directory.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		opts.Registry = directory.NewRedisRegistry(client, cfg.Registry.TTL)
		opts.Relay = directory.NewRedisRelay(client, logger)
		opts.RefreshEvery = cfg.Registry.TTL / 3
		logger.Info().Str("redis", cfg.Redis.Address).Msg("using redis registry")
	default:
		opts.Registry = directory.NewMemoryRegistry()
	}
	defer opts.Registry.Close()

	hub := directory.NewHub(opts)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           directory.NewRouter(hub, cfg.WebSocket, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		select {
		case <-hub.Ready():
		case <-gctx.Done():
			return nil
		}
		logger.Info().Str("addr", cfg.Addr).Msg("directory listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down directory")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server forced to shutdown")
		}
		return nil
	})

	err = g.Wait()
	logger.Info().Msg("directory exited")
	return err
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&flagConfigPath, "config", "c", "", "Path to huddle.yaml")
}
