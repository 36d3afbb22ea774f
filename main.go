package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/tijuri/cafe24-gateway/handlers"
	"github.com/tijuri/cafe24-gateway/internal/cafe24"
	"github.com/tijuri/cafe24-gateway/internal/config"
	"github.com/tijuri/cafe24-gateway/internal/database"
	"github.com/tijuri/cafe24-gateway/internal/scheduler"
	"github.com/tijuri/cafe24-gateway/internal/storage"
	"github.com/tijuri/cafe24-gateway/internal/tokenstore"
	"github.com/tijuri/cafe24-gateway/pkg/logger"
	"github.com/tijuri/cafe24-gateway/pkg/metrics"
	"github.com/tijuri/cafe24-gateway/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// logging level controlled with LOG_LEVEL env: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: cafe24=%v mongo=%v redis=%v", cfg.Cafe24Configured(), cfg.MongoDB.URI != "", cfg.Redis.Host != "")

	r := gin.New()
	r.Use(middleware.CORS(os.Getenv("CORS_ALLOWED_ORIGIN")))
	r.Use(gin.Logger(), gin.Recovery())

	ctx := context.Background()

	// Connect to Redis early so the rate limiter and the fallback token
	// repository can use it when configured.
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			redisClient = nil
		} else {
			logger.Infof("connected to Redis at %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && redisClient != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	// Token repository: MongoDB is the primary store, Redis serves as the
	// alternate when Mongo is unavailable. With neither, the store runs in
	// "not configured" mode and the status endpoint says so.
	var repo tokenstore.Repository
	if cfg.MongoDB.URI != "" {
		// retry with backoff to tolerate container startup races
		const maxAttempts = 5
		backoff := time.Second
		var mongoClient *mongo.Client
		var errConn error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			mongoClient, errConn = database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
			if errConn == nil {
				break
			}
			logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, errConn)
			if attempt < maxAttempts {
				time.Sleep(backoff)
				backoff *= 2
			}
		}
		if errConn != nil {
			logger.Warnf("could not connect to MongoDB after %d attempts: %v", maxAttempts, errConn)
		} else {
			defer func() { _ = mongoClient.Disconnect(ctx) }()
			col := mongoClient.Database(cfg.MongoDB.Database).Collection(tokenstore.Collection)
			repo = tokenstore.NewMongoRepository(col)
			logger.Infof("token store backed by MongoDB (%s.%s)", cfg.MongoDB.Database, tokenstore.Collection)
		}
	}
	if repo == nil && redisClient != nil {
		repo = tokenstore.NewRedisRepository(redisClient, "")
		logger.Infof("token store backed by Redis")
	}
	if repo == nil {
		logger.Warnf("no token store backend available, token operations will report not configured")
	}

	store := tokenstore.New(repo)
	if err := store.CleanupInvalidTokenData(ctx); err != nil {
		logger.Warnf("token cleanup on startup failed: %v", err)
	}

	client := cafe24.NewClient(cfg.Cafe24, store)

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(client, store, cfg.Scheduler.CheckInterval, cfg.Scheduler.LogInterval)
		sched.Start()
		defer sched.Stop()
	} else {
		logger.Warnf("token refresh scheduler is disabled")
	}

	// Object storage for board attachments; optional, the upload endpoint
	// falls back to the relay function when absent.
	var attachments *storage.AttachmentStore
	if mcfg := storage.LoadMinIOConfig(); mcfg.Endpoint != "" {
		attachments, err = storage.NewAttachmentStore(mcfg)
		if err != nil {
			logger.Warnf("attachment store unavailable: %v", err)
			attachments = nil
		} else {
			logger.Infof("attachment store ready (bucket=%s)", mcfg.Bucket)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	r.GET("/ready", func(c *gin.Context) {
		ready := true
		deps := map[string]bool{
			"tokenStore": repo != nil,
			"cafe24":     cfg.Cafe24Configured(),
		}
		if repo == nil || !cfg.Cafe24Configured() {
			ready = false
		}
		if cfg.RateLimit.UseRedis {
			deps["redis"] = redisClient != nil
			if redisClient == nil {
				ready = false
			}
		}
		status := http.StatusOK
		state := "ready"
		if !ready {
			status = http.StatusServiceUnavailable
			state = "not_ready"
		}
		c.JSON(status, gin.H{"status": state, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	adminGuard := middleware.AdminAuthMiddleware(cfg.Admin.JWTSecret)
	root := r.Group("/")
	handlers.NewAuthHandler(cfg, client, store).Register(root)
	handlers.NewTokenHandler(store, sched).Register(root, adminGuard)
	handlers.NewExternalHandler(client, attachments, cfg.Upload.FunctionURL).Register(root)
	handlers.NewAdminAPIHandler(client).Register(root, adminGuard)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("starting cafe24 gateway on %s", addr)
	// run the server in a goroutine and keep the process alive so the
	// container does not exit silently if Run ever returns
	go func() {
		if err := r.Run(addr); err != nil {
			logger.Fatalf("server failed: %v", err)
		}
	}()
	select {}
}
