package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/kassa/internal/app"
	"github.com/odyssey-erp/kassa/internal/auth"
	"github.com/odyssey-erp/kassa/internal/borrows"
	"github.com/odyssey-erp/kassa/internal/customers"
	"github.com/odyssey-erp/kassa/internal/employees"
	"github.com/odyssey-erp/kassa/internal/expenses"
	"github.com/odyssey-erp/kassa/internal/inventory"
	"github.com/odyssey-erp/kassa/internal/observability"
	"github.com/odyssey-erp/kassa/internal/payroll"
	"github.com/odyssey-erp/kassa/internal/platform/cache"
	"github.com/odyssey-erp/kassa/internal/platform/db"
	"github.com/odyssey-erp/kassa/internal/rbac"
	"github.com/odyssey-erp/kassa/internal/reports"
	"github.com/odyssey-erp/kassa/internal/sales"
	"github.com/odyssey-erp/kassa/internal/shared"
	"github.com/odyssey-erp/kassa/internal/users"
	"github.com/odyssey-erp/kassa/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.DBMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	rbacMiddleware := rbac.Middleware{Logger: logger}
	reportCache := cache.NewVersioned(redisClient, "kassa:reports", cfg.ReportCacheTTL)

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		logger.Error("init token issuer", slog.Any("error", err))
		os.Exit(1)
	}
	authService := auth.NewService(auth.NewRepository(dbpool), tokens)
	authMiddleware := auth.NewMiddleware(authService, logger)
	authHandler := auth.NewHandler(logger, authService, authMiddleware)

	usersService := users.NewService(users.NewRepository(dbpool))
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)

	inventoryService := inventory.NewService(inventory.NewRepository(dbpool), auditLogger, inventory.ServiceConfig{
		LowStockThreshold: cfg.LowStockThreshold,
	})
	inventoryHandler := inventory.NewHandler(logger, inventoryService, rbacMiddleware)

	salesRepo := sales.NewRepository(dbpool)
	customersService := customers.NewService(customers.NewRepository(dbpool), salesRepo, authService, auditLogger)
	customersHandler := customers.NewHandler(logger, customersService)

	salesService := sales.NewService(salesRepo, sales.Dependencies{
		Customers: customersService,
		Verifier:  authService,
		Queue:     jobClient,
		Cache:     reportCache,
		Events:    metrics,
		Audit:     auditLogger,
		Logger:    logger,
	})
	salesHandler := sales.NewHandler(logger, salesService)

	employeesService := employees.NewService(employees.NewRepository(dbpool), authService, auditLogger)
	employeesHandler := employees.NewHandler(logger, employeesService)

	payrollService := payroll.NewService(payroll.NewRepository(dbpool), employeesService, authService, auditLogger)
	payrollHandler := payroll.NewHandler(logger, payrollService)

	borrowsHandler := borrows.NewHandler(logger, borrows.NewService(borrows.NewRepository(dbpool), auditLogger))
	expensesHandler := expenses.NewHandler(logger, expenses.NewService(expenses.NewRepository(dbpool), auditLogger))

	reportsService := reports.NewService(reports.NewRepository(dbpool), reportCache)
	reportsHandler := reports.NewHandler(logger, reportsService)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		AuthMiddleware:   authMiddleware,
		AuthHandler:      authHandler,
		UsersHandler:     usersHandler,
		InventoryHandler: inventoryHandler,
		SalesHandler:     salesHandler,
		CustomersHandler: customersHandler,
		EmployeesHandler: employeesHandler,
		PayrollHandler:   payrollHandler,
		BorrowsHandler:   borrowsHandler,
		ExpensesHandler:  expensesHandler,
		ReportsHandler:   reportsHandler,
		JobHandler:       jobHandler,
		Database:         dbpool,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
