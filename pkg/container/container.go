package container

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/config"
	infraCache "github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/infrastructure/cache"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/infrastructure/database"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/infrastructure/kv"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/infrastructure/storage"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared/upload"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/cache"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/crypto"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/jwt"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/downloads"
	modHandler "github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/mod/handler"
	modRepo "github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/mod/repository"
	modService "github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/mod/service"
	variantHandler "github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/variant/handler"
	variantRepo "github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/variant/repository"
	variantService "github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/domains/variant/service"
)

// ========================================
// CONTAINER STRUCT
// ========================================

// Container holds every dependency of the application. It is the
// root of the dependency graph: infrastructure first, then
// repositories, services and handlers layered on top.
type Container struct {
	// ========================================
	// INFRASTRUCTURE LAYER
	// ========================================
	// Shared across all domains. Lifecycle: singleton.

	Config     *config.Config       // Application config
	DB         *database.PostgresDB // Database connection pool
	Cache      cache.Cache          // Redis cache (interface)
	Storage    storage.Storage      // MinIO blob storage (interface)
	Engine     *crypto.Engine       // At-rest encryption engine
	JWTManager *jwt.Manager
	TaskClient *asynq.Client      // Background job enqueuer
	Counter    *downloads.Counter // Serializing download counter

	// ========================================
	// REPOSITORY LAYER (DATA ACCESS)
	// ========================================

	ModRepo     modRepo.ModRepository
	VariantRepo variantRepo.VariantRepository

	// ========================================
	// SERVICE LAYER (BUSINESS LOGIC)
	// ========================================

	ModService     modService.ServiceInterface
	VariantService variantService.ServiceInterface

	// ========================================
	// HANDLER LAYER (HTTP)
	// ========================================

	ModHandler     *modHandler.ModHandler
	VariantHandler *variantHandler.VariantHandler
}

// ========================================
// CONSTRUCTOR: BUILD CONTAINER
// ========================================

// NewContainer creates and initializes the whole dependency graph.
//
// Initialization order matters:
//  1. Config (depends on nothing)
//  2. Infrastructure (DB, Redis, MinIO, crypto, asynq)
//  3. Repositories
//  4. Services (incl. the download counter wired to the repositories)
//  5. Handlers
func NewContainer() (*Container, error) {
	log.Println("🔧 Initializing DI Container...")

	c := &Container{}

	// ========================================
	// STEP 1: LOAD CONFIGURATION
	// ========================================
	log.Println("📋 Loading configuration...")

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	c.Config = cfg
	log.Printf("✅ Config loaded (Environment: %s)", cfg.App.Environment)

	// ========================================
	// STEP 2: INITIALIZE DATABASE
	// ========================================
	log.Println("🗄️  Connecting to PostgreSQL...")

	dbConfig, err := config.LoadDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load database config: %w", err)
	}

	db := database.NewPostgresDB(dbConfig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.HealthCheck(context.Background()); err != nil {
		return nil, fmt.Errorf("database health check failed: %w", err)
	}

	// The entity store and index tables are plain DDL, applied on
	// every boot
	if err := db.EnsureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	c.DB = db
	log.Println("✅ Database connected")

	// ========================================
	// STEP 3: INITIALIZE CACHE
	// ========================================
	log.Println("🔴 Connecting to Redis...")

	redisCache := infraCache.NewRedisCache(
		cfg.Redis.Host,
		cfg.Redis.Password,
		cfg.Redis.DB,
	)

	if err := redisCache.Connect(context.Background()); err != nil {
		// Redis failure is not critical: reads fall through to the
		// database, so log a warning and continue
		log.Printf("⚠️  Redis connection failed (non-critical): %v", err)
	} else {
		log.Println("✅ Redis connected")
	}

	c.Cache = redisCache

	// ========================================
	// STEP 4: INITIALIZE BLOB STORAGE
	// ========================================
	log.Println("📦 Connecting to MinIO...")

	blobs, err := storage.NewMinIOStorage(cfg.MinIO)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to minio: %w", err)
	}
	c.Storage = blobs
	log.Printf("✅ MinIO connected (bucket: %s)", cfg.MinIO.Bucket)

	// ========================================
	// STEP 5: INITIALIZE CRYPTO + AUTH
	// ========================================
	engine, err := crypto.NewEngine(cfg.Encryption.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption engine: %w", err)
	}
	c.Engine = engine
	if !engine.Configured() {
		log.Println("⚠️  ENCRYPTION_KEY not set - uploads and downloads will fail until it is configured")
	}

	c.JWTManager = jwt.NewManager(cfg.JWT.Secret)

	// ========================================
	// STEP 6: INITIALIZE TASK QUEUE CLIENT
	// ========================================
	c.TaskClient = asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Host,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// ========================================
	// STEP 7: INITIALIZE REPOSITORIES
	// ========================================
	log.Println("🗃️  Initializing repositories...")

	if err := c.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}
	log.Println("✅ Repositories initialized")

	// ========================================
	// STEP 8: INITIALIZE SERVICES
	// ========================================
	log.Println("⚙️  Initializing services...")

	if err := c.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}
	log.Println("✅ Services initialized")

	// ========================================
	// STEP 9: INITIALIZE HANDLERS
	// ========================================
	log.Println("🎯 Initializing handlers...")

	if err := c.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}
	log.Println("✅ Handlers initialized")

	log.Println("🎉 DI Container initialized successfully")
	return c, nil
}

// ========================================
// PRIVATE INITIALIZATION METHODS
// ========================================

// initRepositories builds the KV store, the global indexes and the
// domain repositories on top of them
func (c *Container) initRepositories() error {
	pool := c.DB.Pool

	store := kv.NewStore(pool)
	slugs := kv.NewSlugIndex(pool)
	mods := kv.NewModIndex(pool)
	versions := kv.NewVersionIndex(pool)

	c.ModRepo = modRepo.NewModRepository(store, slugs, mods, versions)
	c.VariantRepo = variantRepo.NewVariantRepository(store, versions)

	return nil
}

// initServices builds the download counter and the domain services
func (c *Container) initServices() error {
	// The counter owns one goroutine per active mod; its applier does
	// the read-modify-write against the repositories
	applier := modService.NewDownloadApplier(c.ModRepo, c.VariantRepo, c.Cache)
	c.Counter = downloads.NewCounter(applier)

	policy := upload.Policy{
		MaxSize:           c.Config.Upload.MaxUploadBytes(),
		AllowedExtensions: c.Config.Upload.AllowedExtensions,
	}
	icons := storage.NewIconProcessor(c.Config.Upload.MaxIconBytes())

	c.ModService = modService.NewModService(
		c.ModRepo,
		c.VariantRepo,
		c.Storage,
		c.Engine,
		policy,
		icons,
		c.Counter,
		c.Cache,
		c.TaskClient,
		c.Config.Upload.StorageQuotaMB,
	)

	c.VariantService = variantService.NewVariantService(
		c.VariantRepo,
		c.ModRepo,
		c.Storage,
		c.Engine,
		policy,
		c.Counter,
		c.Cache,
	)

	return nil
}

// initHandlers builds the HTTP handlers
func (c *Container) initHandlers() error {
	c.ModHandler = modHandler.NewModHandler(c.ModService)
	c.VariantHandler = variantHandler.NewVariantHandler(c.VariantService)

	return nil
}

// ========================================
// CLEANUP
// ========================================

// Cleanup releases resources on shutdown. The counter drains first so
// every recorded download lands in the database before the
// connections go away.
func (c *Container) Cleanup() {
	log.Println("🧹 Cleaning up container resources...")

	if c.Counter != nil {
		c.Counter.Close()
		log.Println("✅ Download counter drained")
	}

	if c.TaskClient != nil {
		if err := c.TaskClient.Close(); err != nil {
			log.Printf("⚠️  Failed to close task client: %v", err)
		}
	}

	if c.Cache != nil {
		if rc, ok := c.Cache.(*infraCache.RedisCache); ok {
			if err := rc.Close(); err != nil {
				log.Printf("⚠️  Failed to close Redis: %v", err)
			} else {
				log.Println("✅ Redis connections closed")
			}
		}
	}

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			log.Printf("⚠️  Failed to close database: %v", err)
		} else {
			log.Println("✅ Database connections closed")
		}
	}

	log.Println("✅ Container cleanup completed")
}
