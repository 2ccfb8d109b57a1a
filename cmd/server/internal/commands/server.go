package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgmembers/internal/api"
	"github.com/wolfeidau/orgmembers/internal/auth"
	"github.com/wolfeidau/orgmembers/internal/events"
	httpmiddleware "github.com/wolfeidau/orgmembers/internal/http"
	"github.com/wolfeidau/orgmembers/internal/lock"
	"github.com/wolfeidau/orgmembers/internal/logger"
	"github.com/wolfeidau/orgmembers/internal/organization"
	"github.com/wolfeidau/orgmembers/internal/seed"
	"github.com/wolfeidau/orgmembers/internal/store"
	memorystore "github.com/wolfeidau/orgmembers/internal/store/memory"
	postgresstore "github.com/wolfeidau/orgmembers/internal/store/postgres"
	"github.com/wolfeidau/orgmembers/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

type ServeCmd struct {
	// Server configuration
	Listen          string        `help:"HTTP server listen address" default:"localhost:8080" env:"ORGMEMBERS_LISTEN"`
	ShutdownTimeout time.Duration `help:"how long to drain in-flight requests on shutdown" default:"10s"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"http://localhost:3000" env:"ORGMEMBERS_CORS_ORIGINS"`

	Tracing          bool    `help:"enable tracing and metrics export" default:"false" env:"ORGMEMBERS_TRACING"`
	TraceSampleRatio float64 `help:"fraction of traces kept" default:"1"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"ORGMEMBERS_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`

	// Coordination and events
	LockType    string     `help:"organization lock type (memory or redis)" default:"memory" env:"ORGMEMBERS_LOCK_TYPE" enum:"memory,redis"`
	EventsRedis bool       `help:"also publish domain events to redis pub/sub" default:"false" env:"ORGMEMBERS_EVENTS_REDIS"`
	Redis       RedisFlags `embed:"" prefix:"redis-"`

	Auth AuthFlags `embed:"" prefix:"auth-"`

	Seed string `help:"YAML file of users and organizations loaded on startup" type:"path" env:"ORGMEMBERS_SEED"`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Dev)
	zlog.Logger = log

	log.Info().Str("version", globals.Version).Bool("dev", globals.Dev).Msg("Starting server")

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "orgmembers",
			Version:     globals.Version,
			SampleRatio: c.TraceSampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	var (
		organizationStore store.OrganizationStore
		userStore         store.UserStore
	)

	switch c.StoreType {
	case "postgres":
		pool, err := c.PostgresStore.open(ctx, c.PostgresStore.AutoMigrate)
		if err != nil {
			return fmt.Errorf("failed to open postgres: %w", err)
		}
		defer pool.Close()

		organizationStore = postgresstore.NewOrganizationStore(pool)
		userStore = postgresstore.NewUserStore(pool)
		log.Info().Bool("auto_migrate", c.PostgresStore.AutoMigrate).Msg("Using PostgreSQL stores")

	default:
		organizationStore = memorystore.NewOrganizationStore()
		userStore = memorystore.NewUserStore()
		log.Info().Msg("Using in-memory stores")
	}

	if c.Seed != "" {
		doc, err := seed.Load(c.Seed)
		if err != nil {
			return err
		}
		if _, err := seed.Apply(ctx, organizationStore, userStore, doc); err != nil {
			return fmt.Errorf("failed to apply seed: %w", err)
		}
	}

	var redisClient *redis.Client
	if c.LockType == "redis" || c.EventsRedis {
		client, err := c.Redis.client(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := client.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close redis client")
			}
		}()
		redisClient = client
	}

	var locker lock.Locker = lock.NewMemory()
	if c.LockType == "redis" {
		locker = lock.NewRedis(redisClient, lock.RedisOptions{
			Prefix:  c.Redis.LockPrefix,
			TTL:     c.Redis.LockTTL,
			MaxWait: c.Redis.LockWait,
		})
		log.Info().Msg("Using redis organization locks")
	}

	bus := events.NewBus(log)
	bus.SubscribeAll(events.LogSubscriber(log))
	defer bus.Wait()

	publishers := []events.Publisher{bus}
	if c.EventsRedis {
		redisPublisher := events.NewRedisPublisher(redisClient, c.Redis.ChannelPrefix, log)
		// Runs before the client is closed.
		defer redisPublisher.Wait()
		publishers = append(publishers, redisPublisher)
		log.Info().Str("prefix", c.Redis.ChannelPrefix).Msg("Publishing events to redis")
	}

	deps := organization.Dependencies{
		Organizations: organizationStore,
		Users:         userStore,
		Publisher:     events.Multi(publishers...),
		Locker:        locker,
	}

	authenticate, err := c.authenticator(log)
	if err != nil {
		return err
	}

	handler := api.NewHandler(api.Config{
		Organizations:  organization.NewService(deps),
		Admins:         organization.NewAdminService(deps),
		Users:          organization.NewUserService(deps),
		Accounts:       organization.NewAccountService(deps),
		Authenticate:   authenticate,
		Logger:         log,
		AllowedOrigins: c.CORSOrigins,
	})

	srv := configureHTTPServer(c.Listen, handler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", c.Listen).Bool("auth", !c.Auth.NoAuth).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), c.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (c *ServeCmd) authenticator(log zerolog.Logger) (httpmiddleware.Middleware, error) {
	if c.Auth.NoAuth {
		id, err := c.Auth.devUserID()
		if err != nil {
			return nil, err
		}
		log.Warn().Str("user_id", id.String()).Msg("Authentication is disabled (--auth-no-auth). This should only be used in development!")
		return auth.StaticIdentity(auth.Identity{ID: id, Email: c.Auth.DevEmail}), nil
	}

	keyPEM, err := c.Auth.publicKeyPEM()
	if err != nil {
		return nil, err
	}

	opts := []auth.VerifierOption{auth.WithLeeway(c.Auth.Leeway)}
	if c.Auth.Audience != "" {
		opts = append(opts, auth.WithAudience(c.Auth.Audience))
	}

	verifier, err := auth.NewJWTVerifier(keyPEM, c.Auth.Issuer, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT verifier: %w", err)
	}

	return verifier.Middleware(api.WriteAuthError), nil
}
