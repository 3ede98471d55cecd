package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/ga-techcraft/Online-Chat-Messenger/internal/config"
	"github.com/ga-techcraft/Online-Chat-Messenger/internal/events"
	relaygrpc "github.com/ga-techcraft/Online-Chat-Messenger/internal/grpc"
	"github.com/ga-techcraft/Online-Chat-Messenger/internal/handler"
	"github.com/ga-techcraft/Online-Chat-Messenger/internal/password"
	"github.com/ga-techcraft/Online-Chat-Messenger/internal/registry"
	"github.com/ga-techcraft/Online-Chat-Messenger/internal/service"
	"github.com/ga-techcraft/Online-Chat-Messenger/internal/store"
	"github.com/ga-techcraft/Online-Chat-Messenger/internal/token"
	pkglog "github.com/ga-techcraft/Online-Chat-Messenger/pkg/log"
	"github.com/ga-techcraft/Online-Chat-Messenger/pkg/middleware"
	"github.com/ga-techcraft/Online-Chat-Messenger/pkg/pubsub"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	pkglog.Init(cfg.Logger("relay"))
	logger := pkglog.L()

	watching, err := config.WatchLogLevel("./config", "config", func(level string) {
		pkglog.SetLevel(level)
		logger.Info().Str("level", level).Msg("log level reloaded")
	})
	if err != nil {
		logger.Warn().Err(err).Msg("config watch disabled")
	} else if watching {
		logger.Debug().Msg("watching config file for log level changes")
	}

	logger.Info().
		Int("control_port", cfg.Control.Port).
		Int("data_port", cfg.Data.Port).
		Dur("session_timeout", cfg.Data.SessionTimeout).
		Msg("starting relay")

	// Session store
	gen, err := token.NewNanoIDGenerator(cfg.Token.Size)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create token generator")
	}
	sessions := store.NewMemoryStore(gen, password.NewBcryptHasher(cfg.Password.Cost))

	// Event sinks
	var sinks []events.Sink

	ps, err := pubsub.NewPubSub(cfg.PubSub())
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Events.Driver).Msg("failed to initialize pubsub")
	}
	if ps != nil {
		sinks = append(sinks, events.NewPubSubSink(ps, cfg.Events.Driver))
		logger.Info().Str("driver", cfg.Events.Driver).Msg("room events enabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var directory registry.Directory
	if cfg.Directory.Enabled {
		redisDirectory, err := registry.NewRedisDirectory(cfg.Redis, cfg.Directory, cfg.Control.AdvertiseAddress)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize room directory")
		}
		directory = redisDirectory
		if err := directory.StartHeartbeat(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to start directory heartbeat")
		}
		sinks = append(sinks, directory)
		logger.Info().Str("redis", cfg.Redis.Address).Msg("room directory enabled")
	}

	dispatcher := events.NewDispatcher(cfg.Server.InstanceID, cfg.Events.BufferSize, sinks...)

	// Data channel first: the relay writes through its socket.
	data, err := handler.NewDataServer(
		fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Data.Port),
		cfg.Data.ReadBufferSize,
		cfg.Data.SweepInterval,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start data server")
	}

	roomSvc := service.NewRoomService(sessions, dispatcher)
	relaySvc := service.NewRelayService(sessions, gen, data, dispatcher, cfg.Data.SessionTimeout)

	control, err := handler.NewControlServer(
		fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Control.Port),
		roomSvc,
		cfg.Control.IdleTimeout,
		cfg.Control.MaxPayloadBytes,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start control server")
	}

	// The control and data loops run on the root ctx: the ordered teardown
	// cancels it only after STOP has gone out. gctx ends when any loop fails.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(ctx) })
	g.Go(func() error { return control.Serve(ctx) })
	g.Go(func() error { return data.Serve(ctx, relaySvc) })

	// Admin API
	var adminServer *http.Server
	if cfg.Admin.Enabled {
		if cfg.Log.Level != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}
		router := gin.New()
		router.Use(gin.Recovery())
		router.Use(pkglog.GinMiddleware(logger))
		authMiddleware := middleware.NewAuthMiddleware(cfg.Admin.Token)
		if !authMiddleware.Enabled() {
			logger.Warn().Msg("admin token not set, close-room endpoint is unauthenticated")
		}
		handler.NewHandler(roomSvc, relaySvc, directory, authMiddleware).RegisterRoutes(router)

		adminServer = &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Admin.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str("addr", adminServer.Addr).Msg("admin server listening")
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("admin server error")
				return err
			}
			return nil
		})
	}

	// gRPC health
	var grpcServer *relaygrpc.Server
	if cfg.GRPC.Enabled {
		grpcServer, err = relaygrpc.StartGRPCServer(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.GRPC.Port), logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to start grpc server")
		}
	}

	// A failed loop triggers the same teardown as an operator signal.
	go func() {
		<-gctx.Done()
		if ctx.Err() != nil {
			return
		}
		logger.Error().Err(context.Cause(gctx)).Msg("server loop failed, shutting down")
		if err := signalSelf(syscall.SIGTERM); err != nil {
			logger.Error().Err(err).Msg("failed to signal shutdown")
			cancel()
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.Server.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			// Peers must hear STOP before the data socket closes, and the
			// resulting events must reach the sinks before they close.
			"relay": func(ctx context.Context) error {
				logger.Info().Msg("shutting down relay")
				if grpcServer != nil {
					grpcServer.MarkNotServing()
				}
				if err := control.Shutdown(ctx); err != nil {
					logger.Warn().Err(err).Msg("control server forced to shutdown")
				}
				notified := relaySvc.NotifyShutdown(ctx)
				logger.Info().Int("notified", notified).Msg("clients notified of shutdown")

				cancel()
				if err := data.Close(); err != nil {
					logger.Warn().Err(err).Msg("failed to close data socket")
				}
				if err := dispatcher.Close(ctx); err != nil {
					logger.Warn().Err(err).Uint64("dropped", dispatcher.Dropped()).Msg("event queue not drained")
				}
				if ps != nil {
					if err := ps.Close(); err != nil {
						logger.Warn().Err(err).Msg("failed to close pubsub")
					}
				}
				if directory != nil {
					if err := directory.Close(); err != nil {
						logger.Warn().Err(err).Msg("failed to close room directory")
					}
				}
				return nil
			},
			"admin": func(ctx context.Context) error {
				if adminServer == nil {
					return nil
				}
				return adminServer.Shutdown(ctx)
			},
			"grpc": func(ctx context.Context) error {
				if grpcServer != nil {
					grpcServer.Stop()
				}
				return nil
			},
		},
	)

	exitCode := <-wait
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		if exitCode == 0 {
			exitCode = 1
		}
	}
	logger.Info().Int("exit_code", exitCode).Msg("relay stopped")
	os.Exit(exitCode)
}

func signalSelf(sig os.Signal) error {
	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		return err
	}
	return p.Signal(sig)
}
