package main

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/orbitcrm/backend/config"
	"github.com/orbitcrm/backend/internal/audit"
	"github.com/orbitcrm/backend/internal/auth"
	"github.com/orbitcrm/backend/internal/authz"
	"github.com/orbitcrm/backend/internal/isolation"
	"github.com/orbitcrm/backend/internal/members"
	"github.com/orbitcrm/backend/internal/middleware"
	"github.com/orbitcrm/backend/internal/models"
	"github.com/orbitcrm/backend/internal/provisioning"
	"github.com/orbitcrm/backend/internal/roles"
	"github.com/orbitcrm/backend/internal/tenants"
	"github.com/orbitcrm/backend/pkg/queue"
	"github.com/orbitcrm/backend/pkg/redis"
	"github.com/orbitcrm/backend/pkg/response"
)

// buildRouter wires repositories, middleware and routes onto a gin engine.
func buildRouter(cfg *config.Config, pool *pgxpool.Pool, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	engine := isolation.NewEngine()
	tokens := auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.TTLSeconds)
	memberships := authz.NewMembershipResolver(pool)
	perms := authz.NewPermissionResolver(pool)
	recorder := audit.NewRecorder(engine)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	authRepo := auth.NewRepository(pool, engine)
	tenantRepo := tenants.NewRepository(pool, engine)
	memberRepo := members.NewRepository(pool, engine)
	roleRepo := roles.NewRepository(pool, engine)
	auditRepo := audit.NewRepository(pool, engine)

	workflow := provisioning.NewWorkflow(recorder)

	authHandler := auth.NewHandler(authRepo, tokens, tenantRepo, workflow, pool, cfg.Bootstrap.Token, logger)
	tenantHandler := tenants.NewHandler(tenantRepo, workflow, pool, logger)
	memberHandler := members.NewHandler(memberRepo, authRepo, recorder, pool, logger)
	roleHandler := roles.NewHandler(roleRepo, recorder, pool, logger)
	auditHandler := audit.NewHandler(auditRepo, jobQueue, recorder, pool, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/bootstrap", authHandler.Bootstrap)
		authGroup.POST("/login", authHandler.Login)
	}

	// Authenticated but not tenant-scoped
	api := router.Group("")
	api.Use(middleware.Bearer(tokens, authRepo))
	{
		api.GET("/auth/me", authHandler.Me)
		api.PATCH("/auth/me", authHandler.ChangePassword)
		api.GET("/tenants", tenantHandler.List)
		api.POST("/tenants", tenantHandler.Create)
		api.GET("/tenants/:id", tenantHandler.Get)
		api.GET("/permissions", roleHandler.Catalog)
	}

	// Tenant-scoped (X-Tenant-ID required, membership verified)
	scoped := router.Group("")
	scoped.Use(middleware.Bearer(tokens, authRepo))
	scoped.Use(middleware.Tenant(memberships))
	{
		scoped.GET("/members", middleware.RequirePermission(perms, models.PermMembersRead), memberHandler.List)
		scoped.POST("/members", middleware.RequirePermission(perms, models.PermMembersWrite), memberHandler.Create)
		scoped.PATCH("/members/:id", middleware.RequirePermission(perms, models.PermMembersWrite), memberHandler.Update)
		scoped.DELETE("/members/:id", middleware.RequirePermission(perms, models.PermMembersWrite), memberHandler.Delete)

		scoped.GET("/roles", middleware.RequirePermission(perms, models.PermRolesRead), roleHandler.List)
		scoped.POST("/roles", middleware.RequirePermission(perms, models.PermRolesWrite), roleHandler.Create)
		scoped.PATCH("/roles/:id", middleware.RequirePermission(perms, models.PermRolesWrite), roleHandler.Update)
		scoped.DELETE("/roles/:id", middleware.RequirePermission(perms, models.PermRolesWrite), roleHandler.Delete)

		scoped.GET("/audit", middleware.RequirePermission(perms, models.PermAuditRead), auditHandler.List)
		scoped.POST("/audit/export", middleware.RequirePermission(perms, models.PermAuditRead), auditHandler.Export)
	}

	return router
}
