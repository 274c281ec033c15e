package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mailcore/mailcore/handlers"
	"github.com/mailcore/mailcore/internal/config"
	"github.com/mailcore/mailcore/internal/database"
	"github.com/mailcore/mailcore/internal/document/handler"
	"github.com/mailcore/mailcore/internal/document/repository"
	"github.com/mailcore/mailcore/internal/document/service"
	"github.com/mailcore/mailcore/internal/index"
	"github.com/mailcore/mailcore/internal/oidc"
	"github.com/mailcore/mailcore/internal/reconcile"
	"github.com/mailcore/mailcore/internal/storage"
	"github.com/mailcore/mailcore/internal/tokens"
	"github.com/mailcore/mailcore/internal/users"
	"github.com/mailcore/mailcore/pkg/logger"
	"github.com/mailcore/mailcore/pkg/metrics"
	"github.com/mailcore/mailcore/pkg/middleware"
)

const connectAttempts = 5

var startTime = time.Now()

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	defer func() { _ = logger.Sync() }()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)
	logger.Infof("config loaded: level=%s keycloak=%v mongo=%v redis=%v minio=%v", logger.LevelString(), cfg.Keycloak.URL != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.MinIO.Endpoint != "")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Primary store, identity registry and reconcile queue. Without MongoDB
	// everything lives in memory, which is only suitable for development.
	var (
		mongoClient *mongo.Client
		repo        repository.Repository = repository.NewMemoryRepo()
		userRepo    users.UserRepository  = users.NewMemoryUserRepository()
		queue       reconcile.Queue       = reconcile.NewMemoryQueue()
	)
	if cfg.MongoDB.URI != "" {
		mongoClient, err = database.ConnectMongoRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, connectAttempts)
		if err != nil {
			logger.Fatalf("could not connect to MongoDB after %d attempts: %v", connectAttempts, err)
		}
		db := mongoClient.Database(cfg.MongoDB.Database)
		mongoRepo, err := repository.NewMongoRepo(ctx, db)
		if err != nil {
			logger.Fatalf("failed to prepare document collections: %v", err)
		}
		mongoQueue, err := reconcile.NewMongoQueue(ctx, db.Collection("reconcile"))
		if err != nil {
			logger.Fatalf("failed to prepare reconcile queue: %v", err)
		}
		repo, queue = mongoRepo, mongoQueue
		userRepo = users.NewMongoUserRepository(db.Collection("users"))
		logger.Infof("using MongoDB database %q", cfg.MongoDB.Database)
	} else {
		logger.Warnf("MONGODB_URI not set: using in-memory storage")
	}
	userSvc := users.NewService(userRepo)

	// Search index and rate limiter share Redis.
	var (
		redisClient *redis.Client
		idx         index.Index = index.NewMemoryIndex()
	)
	if cfg.Redis.Host != "" {
		redisClient, err = database.ConnectRedisRetry(ctx, cfg.Redis, cfg.Index.Timeout, connectAttempts)
		if err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", cfg.Redis.Addr(), err)
		} else {
			idx = index.NewRedisIndex(redisClient, cfg.Index.Prefix)
			logger.Infof("connected to Redis at %s", cfg.Redis.Addr())
		}
	}

	var objects storage.ObjectStore = storage.NewMemoryStorage()
	if cfg.MinIO.Endpoint != "" {
		s, err := storage.NewMinIOStorage(ctx, cfg.MinIO)
		if err != nil {
			logger.Fatalf("failed to initialize attachment storage: %v", err)
		}
		objects = s
	}

	var verifier middleware.Verifier
	if cfg.Keycloak.URL != "" {
		ver, err := oidc.NewKeycloakVerifier(ctx, cfg.Keycloak)
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier for %s: %v", oidc.IssuerURL(cfg.Keycloak), err)
		} else {
			verifier = ver
		}
	}
	if verifier == nil && cfg.JWT.Secret != "" {
		ver, err := tokens.NewVerifier(cfg.JWT)
		if err != nil {
			logger.Fatalf("failed to initialize token verifier: %v", err)
		}
		verifier = ver
	}

	engine := service.New(service.Deps{
		Repo:       repo,
		Index:      idx,
		Identities: userSvc,
		Queue:      queue,
		Objects:    objects,
	}, service.OptionsFromConfig(cfg))

	rec := &reconcile.Reconciler{
		Queue:    queue,
		Repo:     repo,
		Index:    idx,
		Interval: cfg.Reconcile.Interval,
		Batch:    cfg.Reconcile.Batch,
	}
	go rec.Run(ctx)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), middleware.CORS(cfg.Server.AllowOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", func(c *gin.Context) {
		rctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		deps := map[string]bool{"auth": verifier != nil}
		if mongoClient != nil {
			deps["mongodb"] = mongoClient.Ping(rctx, nil) == nil
		}
		if redisClient != nil {
			deps["redis"] = redisClient.Ping(rctx).Err() == nil
		}
		status, code := "ready", http.StatusOK
		for _, ok := range deps {
			if !ok {
				status, code = "not_ready", http.StatusServiceUnavailable
			}
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterSwagger(r)

	if verifier != nil {
		api := r.Group("/api/v2",
			middleware.AuthMiddleware(verifier),
			middleware.ProvisionMiddleware(func(ctx context.Context, claims map[string]interface{}) error {
				_, err := userSvc.UpsertFromClaims(ctx, claims)
				return err
			}),
		)
		// after auth so limits are keyed by subject
		if cfg.RateLimit.Enabled {
			if cfg.RateLimit.UseRedis && redisClient != nil {
				api.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.Window))
			} else {
				api.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
			}
		}
		handler.New(engine).Register(api)
		handlers.NewIdentityHandler(userSvc).Register(api)
	} else {
		logger.Warnf("no token verifier configured (KEYCLOAK_URL or JWT_SECRET): document API not registered")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("starting mailcore on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	// pending asynchronous index writes
	engine.Wait()
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if mongoClient != nil {
		_ = mongoClient.Disconnect(shutdownCtx)
	}
}
