package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AzielCF/az-bulk/bulkmessage/domain/job"
	"github.com/AzielCF/az-bulk/bulkmessage/domain/transport"
	"github.com/AzielCF/az-bulk/core/config"
	"github.com/AzielCF/az-bulk/pkg/runmonitor"
	"github.com/AzielCF/az-bulk/ui/rest"
	"github.com/AzielCF/az-bulk/ui/rest/middleware"
	"github.com/AzielCF/az-bulk/ui/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Serve the scheduled message API over http",
	Long: `Serve the scheduled message REST API, the live progress websocket and,
unless SCHEDULER_EMBEDDED=false, a scheduler for browser-mode jobs.`,
	Run: restServer,
}

func init() {
	restCmd.Flags().Bool("embedded-scheduler", true, "run browser-mode jobs inside this process --embedded-scheduler <true/false>")
	rootCmd.AddCommand(restCmd)
}

func restServer(cmd *cobra.Command, _ []string) {
	cfg := config.Global
	if cmd.Flags().Changed("embedded-scheduler") {
		cfg.Scheduler.Embedded, _ = cmd.Flags().GetBool("embedded-scheduler")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hub *websocket.Hub
	monitor := runmonitor.FromEnv()
	initApp(ctx, job.ModeBrowser, func() []job.EventSink {
		if eventRelay != nil {
			hub = websocket.NewHub(eventRelay)
		} else {
			hub = websocket.NewHub(nil)
		}
		return []job.EventSink{hub, monitor}
	})
	go hub.Run(ctx)

	app := fiber.New(fiber.Config{
		Network:      "tcp",
		AppName:      "Az-Bulk Scheduler",
		ServerHeader: "Hidden",
		BodyLimit:    10 * 1024 * 1024,
	})

	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.App.CorsAllowedOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.Recovery())
	if cfg.App.Debug {
		app.Use(logger.New())
	}

	router := app.Group(cfg.App.BasePath)
	rest.InitRestScheduledMessage(router, scheduledUsecase)
	rest.InitRestScheduler(router, scheduledUsecase)
	rest.InitRestHealth(router, healthChecks())
	rest.InitRestMonitoring(router, monitor)
	hub.RegisterRoutes(router, scheduledUsecase)

	if schedulerEnabled(cfg.Scheduler.Embedded) {
		// The poller outlives requests: StartScheduler and Stop drive it.
		poller.Start(ctx)
		listenForWakeUps(ctx)
	} else {
		logrus.Info("[REST] Embedded scheduler stopped; browser-mode jobs wait for POST /api/scheduler/start")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[REST] Reception of termination signal, shutting down gracefully...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logrus.Errorf("[REST] Error during Fiber shutdown: %v", err)
		}
		cancel()
	}()

	addr := ":" + cfg.App.Port
	logrus.Infof("[REST] Listening on %s", addr)
	if err := app.Listen(addr); err != nil {
		logrus.Fatalln("Failed to start: ", err.Error())
	}

	StopApp()
}

func healthChecks() map[string]rest.HealthCheck {
	checks := map[string]rest.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"sms": smsGateway.Ready,
	}
	if r, ok := whatsappSender.(transport.Readiness); ok {
		checks["whatsapp"] = r.Ready
	}
	if vkClient != nil {
		checks["valkey"] = vkClient.Ping
	}
	return checks
}
