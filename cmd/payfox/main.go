package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/PayFox/app/controllers"
	"github.com/ManuelReschke/PayFox/app/repository"
	"github.com/ManuelReschke/PayFox/internal/pkg/allocator"
	"github.com/ManuelReschke/PayFox/internal/pkg/audit"
	"github.com/ManuelReschke/PayFox/internal/pkg/cache"
	"github.com/ManuelReschke/PayFox/internal/pkg/database"
	"github.com/ManuelReschke/PayFox/internal/pkg/env"
	"github.com/ManuelReschke/PayFox/internal/pkg/etherscan"
	monitorpkg "github.com/ManuelReschke/PayFox/internal/pkg/monitor"
	"github.com/ManuelReschke/PayFox/internal/pkg/notify"
	"github.com/ManuelReschke/PayFox/internal/pkg/payment"
	"github.com/ManuelReschke/PayFox/internal/pkg/router"
)

func main() {
	app, shutdown := NewApplication()
	defer shutdown()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	if err != nil {
		log.Fatal(err)
	}
}

func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	repos := repository.GetGlobalRepositories()
	auditor := audit.NewLogger(repos.AuditLog)
	alloc := allocator.New(repos.UsedAmount)
	sink := notify.NewWebhookFromEnv()

	svc := payment.NewService(
		repos.Transaction,
		repos.Cooldown,
		alloc,
		auditor,
		sink,
		sink,
		payment.NewRedisCooldownCache(),
	)

	manager := monitorpkg.NewManager(monitorpkg.Deps{
		API:           etherscan.NewClientFromEnv(),
		Sink:          sink,
		Settler:       svc,
		Auditor:       auditor,
		Transactions:  repos.Transaction,
		WalletAddress: env.GetEnv("MERCHANT_ADDRESS", ""),
	}, alloc, repos.MonitorStat)
	svc.AttachMonitor(manager)

	manager.Start()
	if err := manager.ResumePending(); err != nil {
		log.Printf("failed to resume pending transactions: %v", err)
	}

	controllers.InitInvoiceController(svc)

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName: "PayFox",
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: "./public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app)

	shutdown := func() {
		manager.Stop()
		auditor.Close()
	}
	return app, shutdown
}
