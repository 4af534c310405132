package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Underwood-Inc/strixun-stream-suite-sub010/internal/shared/middleware"
	"github.com/Underwood-Inc/strixun-stream-suite-sub010/pkg/container"
)

func SetupRouter(c *container.Container) *gin.Engine {
	router := gin.New()

	// Global middlewares
	router.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.CORS(),
		middleware.ClientIPMiddleware(),
	)

	v1 := router.Group("/api/v1")
	{
		// Health check
		v1.GET("/health", healthCheckHandler(c))
		v1.GET("/db-test", databaseTestHandler(c))

		setupModRoutes(v1, c)
		setupVariantRoutes(v1, c)
		setupAdminRoutes(v1, c)
	}

	return router
}

// ========================================
// MOD ROUTES
// ========================================
func setupModRoutes(v1 *gin.RouterGroup, c *container.Container) {
	authRequired := middleware.AuthMiddleware(c.JWTManager)
	authOptional := middleware.OptionalAuthMiddleware(c.JWTManager)

	mods := v1.Group("/mods")
	{
		// Public catalog
		mods.GET("", c.ModHandler.ListPublic)
		mods.GET("/slug/:slug", authOptional, c.ModHandler.GetModBySlug)

		// Owner surface
		mods.POST("", authRequired, c.ModHandler.CreateMod)
		mods.GET("/mine", authRequired, c.ModHandler.ListMine)
		mods.GET("/usage", authRequired, c.ModHandler.Usage)

		// Per-mod. Visibility checks live in the service, so reads
		// only need optional auth.
		mods.GET("/:mod_id", authOptional, c.ModHandler.GetMod)
		mods.PUT("/:mod_id", authRequired, c.ModHandler.UpdateMod)
		mods.DELETE("/:mod_id", authRequired, c.ModHandler.DeleteMod)
		mods.POST("/:mod_id/icon", authRequired, c.ModHandler.UploadIcon)

		// Versions and downloads
		mods.POST("/:mod_id/versions", authRequired, c.ModHandler.UploadVersion)
		mods.GET("/:mod_id/versions", authOptional, c.ModHandler.ListVersions)
		mods.GET("/:mod_id/download", authOptional, c.ModHandler.DownloadLatest)
		mods.GET("/:mod_id/versions/:version_id/download", authOptional, c.ModHandler.DownloadVersion)
	}
}

// ========================================
// VARIANT ROUTES
// ========================================
func setupVariantRoutes(v1 *gin.RouterGroup, c *container.Container) {
	authRequired := middleware.AuthMiddleware(c.JWTManager)
	authOptional := middleware.OptionalAuthMiddleware(c.JWTManager)

	variants := v1.Group("/mods/:mod_id/variants")
	{
		variants.POST("", authRequired, c.VariantHandler.CreateVariant)
		variants.DELETE("/:variant_id", authRequired, c.VariantHandler.DeleteVariant)

		variants.POST("/:variant_id/versions", authRequired, c.VariantHandler.UploadVersion)
		variants.GET("/:variant_id/versions", authOptional, c.VariantHandler.ListVersions)
		variants.DELETE("/:variant_id/versions/:version_id", authRequired, c.VariantHandler.DeleteVersion)

		variants.GET("/:variant_id/download", authOptional, c.VariantHandler.DownloadCurrent)
		variants.GET("/:variant_id/versions/:version_id/download", authOptional, c.VariantHandler.DownloadVersion)
	}
}

// ========================================
// ADMIN ROUTES
// ========================================
func setupAdminRoutes(v1 *gin.RouterGroup, c *container.Container) {
	admin := v1.Group("/admin")
	admin.Use(middleware.AuthMiddleware(c.JWTManager), middleware.AdminMiddleware())
	{
		admin.GET("/mods/export", c.ModHandler.AdminExport)
	}
}

// ========================================
// HEALTH CHECK HANDLER
// ========================================
func healthCheckHandler(appCtx *container.Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		health := gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
			"version":   appCtx.Config.App.Version,
			"services":  gin.H{},
		}

		// Check database. Ping is the quiet variant; the verbose
		// HealthCheck runs once at container boot.
		dbStatus := "ok"
		if appCtx.DB == nil || appCtx.DB.Pool == nil {
			dbStatus = "disconnected"
			health["status"] = "degraded"
		} else {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()

			if err := appCtx.DB.Ping(ctx); err != nil {
				dbStatus = fmt.Sprintf("error: %v", err)
				health["status"] = "degraded"
			}
		}

		// Check redis
		redisStatus := "ok"
		if appCtx.Cache == nil {
			redisStatus = "disconnected"
		} else {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()

			if err := appCtx.Cache.Ping(ctx); err != nil {
				redisStatus = fmt.Sprintf("error: %v", err)
			}
		}

		// Check blob storage
		storageStatus := "ok"
		if appCtx.Storage == nil {
			storageStatus = "disconnected"
			health["status"] = "degraded"
		} else {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()

			if err := appCtx.Storage.HealthCheck(ctx); err != nil {
				storageStatus = fmt.Sprintf("error: %v", err)
				health["status"] = "degraded"
			}
		}

		// Encryption state is worth surfacing: without a key every
		// upload and download fails
		encryptionStatus := "ok"
		if appCtx.Engine == nil || !appCtx.Engine.Configured() {
			encryptionStatus = "key not configured"
			health["status"] = "degraded"
		}

		health["services"] = gin.H{
			"database":   dbStatus,
			"redis":      redisStatus,
			"storage":    storageStatus,
			"encryption": encryptionStatus,
		}

		statusCode := http.StatusOK
		if dbStatus != "ok" {
			statusCode = http.StatusServiceUnavailable
		}

		c.JSON(statusCode, health)
	}
}

// ========================================
// DATABASE TEST HANDLER
// ========================================
func databaseTestHandler(appCtx *container.Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		if appCtx.DB == nil || appCtx.DB.Pool == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Database not connected",
			})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		var version string
		err := appCtx.DB.Pool.QueryRow(ctx, "SELECT version()").Scan(&version)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": fmt.Sprintf("Query failed: %v", err),
			})
			return
		}

		stats := appCtx.DB.Pool.Stat()

		redisTest := "not tested"
		if appCtx.Cache != nil {
			testKey := "test:connection"
			testValue := map[string]string{"test": "data", "timestamp": time.Now().Format(time.RFC3339)}

			if err := appCtx.Cache.Set(ctx, testKey, testValue, 10*time.Second); err == nil {
				var retrieved map[string]string
				found, _ := appCtx.Cache.Get(ctx, testKey, &retrieved)
				if found {
					redisTest = "ok - set/get working"
				} else {
					redisTest = "warning - set ok but get failed"
				}
				_ = appCtx.Cache.Delete(ctx, testKey)
			} else {
				redisTest = fmt.Sprintf("error: %v", err)
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Database test successful",
			"database": gin.H{
				"postgres_version": version,
				"pool_stats": gin.H{
					"total_connections":    stats.TotalConns(),
					"idle_connections":     stats.IdleConns(),
					"acquired_connections": stats.AcquiredConns(),
					"max_connections":      stats.MaxConns(),
				},
			},
			"cache": gin.H{
				"status": redisTest,
			},
		})
	}
}
