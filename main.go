package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/audit"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/auth"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/common"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/config"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/customers"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/handlers/api"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/middlewares"
	csrfmw "github.com/psyphiuk/marcello-whatsapp-pa-web/internal/middlewares/csrf"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/mfa"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/ratelimit"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/sessions"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/store"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/model"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/params"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

var (
	app       *cli.App
	gitCommit string
	gitDate   string
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "YAML config file",
		Value: "config.yaml",
	}
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug logging",
	}
)

func init() {
	app = cli.NewApp()
	app.EnableBashCompletion = true
	app.Usage = "picortex-secd - security middleware service for PICORTEX AI"
	app.Flags = []cli.Flag{
		configFileFlag,
		debugFlag,
	}
	app.Commands = []*cli.Command{
		{
			Name: "version",
			Action: func(ctx *cli.Context) error {
				fmt.Println(params.VersionWithCommit(gitCommit, gitDate))
				return nil
			},
		},
	}
	app.Action = run
}

func mustInitLogger(debug bool) {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

func mustInitDatabase(dbConfig config.MySQLConfig) *gorm.DB {
	db, err := gorm.Open(mysql.Open(dbConfig.Dsn), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   dbConfig.TablePrefix,
			SingularTable: true,
		},
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := db.AutoMigrate(model.Models...); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}

	return db
}

func mustInitRedis(redisCfg config.RedisConfig) redis.UniversalClient {
	opts, err := redis.ParseURL(redisCfg.URL)
	if err != nil {
		slog.Error("Invalid redis URL", "error", err)
		os.Exit(1)
	}
	if redisCfg.PoolSize > 0 {
		opts.PoolSize = redisCfg.PoolSize
	}
	if redisCfg.ClusterMode {
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    []string{opts.Addr},
			Username: opts.Username,
			Password: opts.Password,
			PoolSize: opts.PoolSize,
		})
	}
	return redis.NewClient(opts)
}

func setupAPIRoutes(
	router fiber.Router,
	security *middlewares.Security,
	authHandler *api.AuthHandler,
	mfaHandler *api.MFAHandler,
	adminHandler *api.AdminHandler) {

	apiGroup := router.Group("/api")

	apiGroup.Get("/csrf-token", security.Wrap(middlewares.Route{
		RateClass: ratelimit.ClassAPI,
	}, authHandler.GetCSRFToken))

	apiGroup.Post("/auth/login", security.Wrap(middlewares.Route{
		RateClass: ratelimit.ClassAuth,
		CSRF:      true,
	}, authHandler.PostLogin))
	apiGroup.Post("/auth/logout", security.Wrap(middlewares.Route{
		RateClass: ratelimit.ClassAPI,
		CSRF:      true,
		Auth:      middlewares.AuthUser,
	}, authHandler.PostLogout))
	apiGroup.Post("/auth/refresh", security.Wrap(middlewares.Route{
		RateClass: ratelimit.ClassAuth,
		CSRF:      true,
		Auth:      middlewares.AuthUser,
	}, authHandler.PostRefresh))
	apiGroup.Get("/auth/session", security.Wrap(middlewares.Route{
		RateClass: ratelimit.ClassAPI,
		Auth:      middlewares.AuthUser,
	}, authHandler.GetSession))

	apiGroup.Get("/mfa/setup", security.Wrap(middlewares.Route{
		RateClass: ratelimit.ClassAPI,
		Auth:      middlewares.AuthUser,
	}, mfaHandler.GetSetup))
	apiGroup.Post("/mfa/setup", security.Wrap(middlewares.Route{
		RateClass: ratelimit.ClassAPI,
		CSRF:      true,
		Auth:      middlewares.AuthUser,
	}, mfaHandler.PostSetup))
	apiGroup.Post("/mfa/verify", security.Wrap(middlewares.Route{
		RateClass: ratelimit.ClassAuth,
		CSRF:      true,
		Auth:      middlewares.AuthUser,
	}, mfaHandler.PostVerify))
	apiGroup.Post("/mfa/disable", security.Wrap(middlewares.Route{
		RateClass: ratelimit.ClassAPI,
		CSRF:      true,
		Auth:      middlewares.AuthMFA,
	}, mfaHandler.PostDisable))
	apiGroup.Post("/mfa/backup-codes", security.Wrap(middlewares.Route{
		RateClass: ratelimit.ClassAPI,
		CSRF:      true,
		Auth:      middlewares.AuthMFA,
	}, mfaHandler.PostBackupCodes))
	apiGroup.Get("/mfa/status", security.Wrap(middlewares.Route{
		RateClass: ratelimit.ClassAPI,
		Auth:      middlewares.AuthUser,
	}, mfaHandler.GetStatus))

	apiGroup.Get("/admin/customers/:id/sessions", security.Wrap(middlewares.Route{
		RateClass:     ratelimit.ClassAdmin,
		Auth:          middlewares.AuthAdmin,
		AuditAction:   audit.ActionDataRead,
		AuditResource: "admin",
	}, adminHandler.GetCustomerSessions))
	apiGroup.Delete("/admin/customers/:id/sessions", security.Wrap(middlewares.Route{
		RateClass:     ratelimit.ClassAdmin,
		CSRF:          true,
		Auth:          middlewares.AuthAdmin,
		AuditAction:   audit.ActionSessionRevoked,
		AuditResource: "admin",
	}, adminHandler.DeleteCustomerSessions))
	apiGroup.Post("/admin/customers", security.Wrap(middlewares.Route{
		RateClass:     ratelimit.ClassAdmin,
		CSRF:          true,
		Auth:          middlewares.AuthAdmin,
		AuditAction:   audit.ActionDataWrite,
		AuditResource: "admin",
	}, adminHandler.PostCustomer))
	apiGroup.Patch("/admin/customers/:id/disabled", security.Wrap(middlewares.Route{
		RateClass:     ratelimit.ClassAdmin,
		CSRF:          true,
		Auth:          middlewares.AuthAdmin,
		AuditAction:   audit.ActionDataWrite,
		AuditResource: "admin",
	}, adminHandler.PatchCustomerDisabled))
}

func startCleanupLoop(ctx context.Context, sessionService *sessions.SessionService) {
	ticker := time.NewTicker(params.SessionCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed, err := sessionService.CleanupExpired(ctx); err != nil {
				slog.Error("Session cleanup failed", "error", err)
			} else if removed > 0 {
				slog.Info("Removed expired sessions", "count", removed)
			}
			audit.PurgeExpired(ctx)
		}
	}
}

func run(ctx *cli.Context) error {
	cfg, err := config.LoadConfig(ctx.String(configFileFlag.Name))
	if err != nil {
		slog.Error("Could not load config file.", "error", err)
		return err
	}

	mustInitLogger(cfg.Debug || ctx.IsSet(debugFlag.Name))

	db := mustInitDatabase(cfg.MySQL)
	rdb := mustInitRedis(cfg.Redis)
	cacheStorage := store.NewRedisStorage(rdb)

	// repositories
	var (
		customerRepo   = customers.NewCustomerRepository(db)
		backupCodeRepo = customers.NewBackupCodeRepository(db)
		sessionRepo    = sessions.NewSessionRepository(db)
		auditRepo      = audit.NewAuditRepository(db)
	)
	audit.Initialize(auditRepo)

	// services
	var (
		customerService = customers.NewCustomerService(customerRepo)
		sessionService  = sessions.NewSessionService(sessionRepo)
		mfaService      = mfa.NewMFAService(customerRepo, backupCodeRepo)
		identityService = auth.NewIdentityService(cfg.MasterKey, sessionService, customerRepo)
		limiter         = ratelimit.NewLimiter(cacheStorage)
		csrfGuard       = csrfmw.NewGuard(cacheStorage)
	)

	security := middlewares.NewSecurity(limiter, csrfGuard, identityService, cfg.CSRF.ExcludePaths)

	// handlers
	var (
		authHandler  = api.NewAuthHandler(customerService, sessionService, csrfGuard, cfg.Session)
		mfaHandler   = api.NewMFAHandler(mfaService, sessionService)
		adminHandler = api.NewAdminHandler(customerService, sessionService)
	)

	router := fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		BodyLimit:     params.ServerBodyLimit,
		IdleTimeout:   params.ServerIdleTimeout,
		ReadTimeout:   params.ServerReadTimeout,
		WriteTimeout:  params.ServerWriteTimeout,
		ErrorHandler:  middlewares.ErrorHandler,
	})

	router.Use(recover.New())
	router.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	router.Use(logger.New())
	router.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, " + params.CSRFHeaderName,
	}))

	setupAPIRoutes(router, security, authHandler, mfaHandler, adminHandler)

	backgroundCtx, term := context.WithCancel(ctx.Context)
	go startCleanupLoop(backgroundCtx, sessionService)

	done := make(chan struct{})
	go common.StartHealthCheckServer(backgroundCtx, done, rdb, db)
	defer func() {
		term()
		<-done
	}()
	return router.Listen(cfg.ListenAddr)
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
