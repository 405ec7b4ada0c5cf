package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	badgeHandler "guildledger/internal/badge/handler"
	badgeMetrics "guildledger/internal/badge/metrics"
	badgeService "guildledger/internal/badge/service"
	badgeStore "guildledger/internal/badge/store"
	"guildledger/internal/events"
	guildHandler "guildledger/internal/guild/handler"
	guildMetrics "guildledger/internal/guild/metrics"
	guildService "guildledger/internal/guild/service"
	guildStore "guildledger/internal/guild/store/guild"
	memberStore "guildledger/internal/guild/store/member"
	taskStore "guildledger/internal/guild/store/task"
	jwttoken "guildledger/internal/jwt_token"
	permissionHandler "guildledger/internal/permission/handler"
	permissionService "guildledger/internal/permission/service"
	permissionStore "guildledger/internal/permission/store"
	"guildledger/internal/platform/config"
	"guildledger/internal/platform/httpserver"
	"guildledger/internal/platform/kafka"
	"guildledger/internal/platform/logger"
	"guildledger/internal/platform/metrics"
	"guildledger/internal/platform/otel"
	"guildledger/internal/platform/postgres"
	redisclient "guildledger/internal/platform/redis"
	ratelimitMetrics "guildledger/internal/ratelimit/metrics"
	ratelimit "guildledger/internal/ratelimit/middleware"
	"guildledger/internal/ratelimit/store/bucket"
	registryHandler "guildledger/internal/registry/handler"
	registryMetrics "guildledger/internal/registry/metrics"
	registryService "guildledger/internal/registry/service"
	reputationHandler "guildledger/internal/reputation/handler"
	reputationMetrics "guildledger/internal/reputation/metrics"
	reputationService "guildledger/internal/reputation/service"
	reputationStore "guildledger/internal/reputation/store"
	submissionHandler "guildledger/internal/submission/handler"
	submissionMetrics "guildledger/internal/submission/metrics"
	submissionService "guildledger/internal/submission/service"
	submissionStore "guildledger/internal/submission/store"
	httptransport "guildledger/internal/transport/http"
	"guildledger/pkg/domain"
	"guildledger/pkg/platform/tx"
)

// main wires infrastructure, the ledger services and the HTTP surface, and
// keeps the process alive until a signal arrives.
func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("guildledger exited", "error", err)
		os.Exit(1)
	}
}

// infra holds the optional backing services. Nil fields mean the in-memory
// fallback is used.
type infra struct {
	db    *sql.DB
	redis *redisclient.Client
	kafka interface {
		Ping(context.Context) error
		Close()
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	owner, err := domain.ParseAddress(cfg.OwnerAddress)
	if err != nil {
		return fmt.Errorf("owner address: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Backing services.
	var deps infra
	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	if db != nil {
		deps.db = db
		defer db.Close()
		log.Info("using postgres ledger stores")
	} else {
		log.Warn("DATABASE_URL not set, ledger state is in memory")
	}

	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rc != nil {
		deps.redis = rc
		defer rc.Close()
	}

	var publisher events.Publisher = events.NewLogPublisher(log)
	kc, err := kafka.New(ctx, cfg.Kafka)
	if err != nil {
		return err
	}
	if kc != nil {
		deps.kafka = kc
		defer kc.Close()
		publisher = events.NewKafkaPublisher(kc, cfg.Kafka.Topic,
			events.WithFallback(publisher),
			events.WithKafkaLogger(log),
		)
		log.Info("publishing events to kafka", "topic", cfg.Kafka.Topic)
	}

	// Ledger services.
	var (
		runner      tx.Runner
		permissions permissionService.Store
		balances    reputationService.Store
		badges      badgeService.Store
		guilds      registryService.GuildStore
		members     guildService.MemberStore
		tasks       guildService.TaskStore
	)
	if deps.db != nil {
		runner = tx.NewSQL(deps.db)
		permissions = permissionStore.NewPostgres(deps.db)
		balances = reputationStore.NewPostgres(deps.db)
		badges = badgeStore.NewPostgres(deps.db)
		guilds = guildStore.NewPostgres(deps.db)
		members = memberStore.NewPostgres(deps.db)
		tasks = taskStore.NewPostgres(deps.db)
	} else {
		runner = tx.NewMemory()
		permissions = permissionStore.NewInMemory()
		balances = reputationStore.NewInMemory()
		badges = badgeStore.NewInMemory()
		guilds = guildStore.NewInMemory()
		members = memberStore.NewInMemory()
		tasks = taskStore.NewInMemory()
	}

	permissionSvc, err := permissionService.New(permissions, runner, owner,
		permissionService.WithLogger(log),
		permissionService.WithPublisher(publisher),
	)
	if err != nil {
		return err
	}
	reputationSvc, err := reputationService.New(balances, permissionSvc, runner,
		reputationService.WithLogger(log),
		reputationService.WithPublisher(publisher),
		reputationService.WithMetrics(reputationMetrics.New(reg)),
	)
	if err != nil {
		return err
	}
	badgeSvc, err := badgeService.New(badges, permissionSvc, runner,
		badgeService.WithLogger(log),
		badgeService.WithPublisher(publisher),
		badgeService.WithMetrics(badgeMetrics.New(reg)),
		badgeService.WithBaseURI(cfg.Badge.BaseURI),
	)
	if err != nil {
		return err
	}

	self := domain.DeriveAddress(owner, 0)
	registrySvc, err := registryService.New(guilds, permissionSvc, runner, self, owner,
		registryService.WithLogger(log),
		registryService.WithPublisher(publisher),
		registryService.WithMetrics(registryMetrics.New(reg)),
	)
	if err != nil {
		return err
	}
	guildSvc, err := guildService.New(guilds, members, tasks, reputationSvc, badgeSvc, runner,
		guildService.WithLogger(log),
		guildService.WithPublisher(publisher),
		guildService.WithMetrics(guildMetrics.New(reg)),
	)
	if err != nil {
		return err
	}

	// The registry administers both reward assets so it can grant new guilds
	// mint rights. SetAdmin overwrites, so restarts are harmless.
	for _, asset := range domain.RewardAssets() {
		if err := permissionSvc.SetAdmin(ctx, owner, asset, self); err != nil {
			return fmt.Errorf("bootstrap %s admin: %w", asset, err)
		}
	}

	// Submission pipeline.
	var receipts submissionService.Store = submissionStore.NewInMemory()
	if deps.redis != nil {
		receipts = submissionStore.NewRedis(deps.redis.Client, submissionStore.WithTTL(cfg.Submission.ReceiptTTL))
		log.Info("using redis receipt store")
	}
	sequencer, err := submissionService.New(receipts,
		submissionService.WithLogger(log),
		submissionService.WithMetrics(submissionMetrics.New(reg)),
		submissionService.WithQueueSize(cfg.Submission.QueueSize),
		submissionService.WithPollInterval(cfg.Submission.PollInterval),
	)
	if err != nil {
		return err
	}

	// Write throttling shares its window across replicas when Redis is set.
	var writeBuckets ratelimit.Limiter = bucket.NewInMemory()
	if deps.redis != nil {
		writeBuckets = bucket.NewRedis(deps.redis.Client)
	}
	limiter := ratelimit.New(writeBuckets, log, cfg.RateLimit.Writes, cfg.RateLimit.Window,
		ratelimit.WithFallback(bucket.NewInMemory()),
		ratelimit.WithMetrics(ratelimitMetrics.New(reg)),
		ratelimit.WithDisabled(cfg.RateLimit.Disabled),
	)

	// HTTP surface.
	httpMetrics := metrics.New(reg)
	jwtValidator := jwttoken.NewJWTServiceAdapter(
		jwttoken.NewJWTService(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.Audience),
	)
	wait := cfg.Submission.WaitTimeout
	router := httptransport.NewRouter(log, reg, deps.healthChecks(), limiter,
		registryHandler.New(registrySvc, sequencer, log, httpMetrics, jwtValidator, wait),
		guildHandler.New(guildSvc, sequencer, log, httpMetrics, jwtValidator, wait),
		reputationHandler.New(reputationSvc, log, httpMetrics),
		badgeHandler.New(badgeSvc, log, httpMetrics),
		permissionHandler.New(permissionSvc, log, httpMetrics),
		submissionHandler.New(sequencer, log, httpMetrics, jwtValidator, wait),
	)
	srv := httpserver.New(cfg, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sequencer.Run(gctx)
	})
	g.Go(func() error {
		log.Info("starting guildledger", "addr", cfg.Addr, "registry", self.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (d infra) healthChecks() map[string]httptransport.HealthCheck {
	checks := map[string]httptransport.HealthCheck{}
	if d.db != nil {
		checks["postgres"] = d.db.PingContext
	}
	if d.redis != nil {
		checks["redis"] = d.redis.Health
	}
	if d.kafka != nil {
		checks["kafka"] = d.kafka.Ping
	}
	return checks
}
