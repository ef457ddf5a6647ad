package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/AzielCF/az-bulk/bulkmessage/application"
	"github.com/AzielCF/az-bulk/bulkmessage/domain/job"
	"github.com/AzielCF/az-bulk/bulkmessage/domain/transport"
	"github.com/AzielCF/az-bulk/bulkmessage/repository"
	"github.com/AzielCF/az-bulk/bulkmessage/usecase"
	"github.com/AzielCF/az-bulk/core/config"
	coreDB "github.com/AzielCF/az-bulk/core/database"
	settingsApp "github.com/AzielCF/az-bulk/core/settings/application"
	domainScheduled "github.com/AzielCF/az-bulk/domains/scheduledmessage"
	amqpInfra "github.com/AzielCF/az-bulk/infrastructure/amqp"
	"github.com/AzielCF/az-bulk/infrastructure/sms"
	"github.com/AzielCF/az-bulk/infrastructure/valkey"
	"github.com/AzielCF/az-bulk/infrastructure/whatsapp"
	"github.com/AzielCF/az-bulk/pkg/msgworker"
	"github.com/AzielCF/az-bulk/pkg/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

var (
	serverID string

	db       *gorm.DB
	jobRepo  *repository.JobGormRepository
	settings *settingsApp.SettingsService

	schedulerOverrides settingsApp.SchedulerOverrides

	smsGateway     *sms.Gateway
	whatsappSender transport.WhatsAppSender
	nativeWhatsapp *whatsapp.Native

	vkClient      *valkey.Client
	eventRelay    *valkey.EventRelay
	amqpPublisher *amqpInfra.Publisher

	messagePool *msgworker.Pool
	poolCancel  context.CancelFunc

	executor         *application.Executor
	poller           *application.Poller
	scheduledUsecase domainScheduled.IScheduledMessageUsecase
)

var rootCmd = &cobra.Command{
	Use:   "az-bulk",
	Short: "Scheduled and bulk SMS / WhatsApp messaging",
	Long: `az-bulk stores scheduled SMS and WhatsApp jobs and delivers them to every
recipient with per-recipient templating, anti-ban delays and recurrence.
Run "rest" for the HTTP API (optionally with an embedded scheduler) and
"worker" for a dedicated scheduler process.`,
}

func init() {
	utils.LoadConfig(".")

	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	initFlags()

	cobra.OnInitialize(initEnvConfig)
}

func initFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("port", "p", "3000", "change port number with --port <number> | example: --port=8080")
	flags.BoolP("debug", "d", false, "hide or displaying log with --debug <true/false> | example: --debug=true")
	flags.String("db-driver", "sqlite", `database driver --db-driver <sqlite|postgres>`)
	flags.String("db-name", "", `sqlite file or postgres database name --db-name <string> | example: --db-name="storages/bulk.db"`)
	flags.Duration("scheduler-interval", time.Minute, "how often pollers look for due jobs --scheduler-interval <duration> | example: --scheduler-interval=30s")
	flags.String("whatsapp-driver", "wasender", "WhatsApp transport --whatsapp-driver <wasender|native>")
	flags.Int("message-workers", 4, "number of workers running manual executions --message-workers <number>")
	flags.Int("message-queue-size", 100, "queue size per message worker --message-queue-size <number>")

	_ = viper.BindPFlag("app_port", flags.Lookup("port"))
	_ = viper.BindPFlag("app_debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("db_driver", flags.Lookup("db-driver"))
	_ = viper.BindPFlag("db_name", flags.Lookup("db-name"))
	_ = viper.BindPFlag("scheduler_interval", flags.Lookup("scheduler-interval"))
	_ = viper.BindPFlag("whatsapp_driver", flags.Lookup("whatsapp-driver"))
	_ = viper.BindPFlag("message_worker_pool_size", flags.Lookup("message-workers"))
	_ = viper.BindPFlag("message_worker_queue_size", flags.Lookup("message-queue-size"))
}

// initEnvConfig loads the structured config from the environment, then lets
// explicitly passed flags win.
func initEnvConfig() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("[CONFIG] %v", err)
	}

	flags := rootCmd.PersistentFlags()
	if flags.Changed("port") {
		cfg.App.Port = viper.GetString("app_port")
	}
	if flags.Changed("debug") {
		cfg.App.Debug = viper.GetBool("app_debug")
	}
	if flags.Changed("db-driver") {
		cfg.Database.Driver = viper.GetString("db_driver")
	}
	if flags.Changed("db-name") {
		cfg.Database.Name = viper.GetString("db_name")
	}
	if flags.Changed("scheduler-interval") {
		cfg.Scheduler.Interval = viper.GetDuration("scheduler_interval")
	}
	if flags.Changed("whatsapp-driver") {
		cfg.Whatsapp.Driver = viper.GetString("whatsapp_driver")
	}
	if flags.Changed("message-workers") {
		cfg.WorkerPool.Size = viper.GetInt("message_worker_pool_size")
	}
	if flags.Changed("message-queue-size") {
		cfg.WorkerPool.QueueSize = viper.GetInt("message_worker_queue_size")
	}

	if cfg.App.Debug {
		cfg.Whatsapp.LogLevel = "DEBUG"
		logrus.SetLevel(logrus.DebugLevel)
	}
}

// initStorage opens the database and prepares the job tables.
func initStorage(ctx context.Context) {
	cfg := config.Global

	if err := utils.CreateFolder(cfg.App.StorageDir); err != nil {
		logrus.Errorln(err)
	}

	var err error
	db, err = coreDB.NewDatabase(cfg)
	if err != nil {
		logrus.Fatalf("[DB] %v", err)
	}

	jobRepo = repository.NewJobGormRepository(db)
	if err := jobRepo.Init(ctx); err != nil {
		logrus.Fatalf("[DB] Failed to migrate scheduled message tables: %v", err)
	}

	settings = settingsApp.NewSettingsService(db)
	if err := settings.Init(ctx); err != nil {
		logrus.Fatalf("[DB] Failed to migrate runtime settings: %v", err)
	}
	logrus.Infof("[DB] Using %s database %s", cfg.Database.Driver, cfg.Database.Name)
}

// initApp wires storage, transports, distribution and the poller for the given
// execution mode: the REST process runs browser-mode jobs, the worker server-mode jobs.
// extraSinks runs once Valkey and AMQP are connected.
func initApp(ctx context.Context, mode job.ExecutionMode, extraSinks func() []job.EventSink) {
	cfg := config.Global
	serverID = utils.GetPersistentServerID(cfg.App.ServerID, cfg.App.StorageDir)
	initStorage(ctx)

	initTransports(ctx)
	initDistribution()

	var sinks []job.EventSink
	if extraSinks != nil {
		sinks = extraSinks()
	}
	if amqpPublisher != nil {
		sinks = append(sinks, amqpPublisher)
	}

	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		logrus.Warnf("[CONFIG] Unknown timezone %q, falling back to UTC", cfg.Scheduler.Timezone)
		loc = time.UTC
	}

	executor = application.NewExecutor(
		jobRepo,
		application.NewRenderer(cfg.Scheduler.DateLayout, cfg.Scheduler.TimeLayout, loc),
		application.WithSMSSender(smsGateway),
		application.WithWhatsAppSender(whatsappSender),
		application.WithDelayPolicy(application.NewDelayPolicy(time.Now().UnixNano())),
		application.WithEventSink(job.MultiSink(sinks)),
		application.WithRunnerName(fmt.Sprintf("%s@%s", mode, serverID)),
		application.WithHeartbeatInterval(cfg.Scheduler.HeartbeatInterval),
	)

	interval := cfg.Scheduler.Interval
	schedulerOverrides = loadSchedulerOverrides(ctx, settings, mode)
	if schedulerOverrides.Interval != nil {
		interval = *schedulerOverrides.Interval
		logrus.Infof("[SCHEDULER] Using stored %s interval %s", mode, interval)
	}

	pollerOpts := []application.PollerOption{}
	if vkClient != nil {
		pollerOpts = append(pollerOpts,
			application.WithLocker(valkey.NewLocker(vkClient, serverID)),
			application.WithNotifier(valkey.NewSignal(vkClient)),
		)
	}
	poller = application.NewPoller(jobRepo, executor, application.PollerConfig{
		Mode:       mode,
		Owner:      fmt.Sprintf("%s-poller@%s", mode, serverID),
		Interval:   interval,
		StaleAfter: cfg.Scheduler.StaleAfter,
		LockTTL:    cfg.Scheduler.LockTTL,
	}, pollerOpts...)

	var poolCtx context.Context
	poolCtx, poolCancel = context.WithCancel(context.Background())
	messagePool = msgworker.NewPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize)
	messagePool.Start(poolCtx)
	logrus.Infof("[MSG_WORKER_POOL] Initialized with %d workers, queue size: %d", cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize)

	scheduler := &persistentScheduler{Poller: poller, settings: settings, mode: mode}
	scheduledUsecase = usecase.NewScheduledMessageService(jobRepo, scheduler, messagePool, cfg.Scheduler.Timezone)
}

// listenForWakeUps lets a TriggerCheck issued by any process reach this poller.
func listenForWakeUps(ctx context.Context) {
	if vkClient == nil {
		return
	}
	valkey.NewSignal(vkClient).Listen(ctx, poller.Wake)
}

func initTransports(ctx context.Context) {
	cfg := config.Global

	smsGateway = sms.NewGateway(sms.ConfigFrom(cfg))
	if err := smsGateway.Ready(ctx); err != nil {
		logrus.Warn("[SMS] Gateway credentials missing; SMS jobs will fail until SMS_API_KEY and SMS_API_PASSWORD are set")
	}

	switch cfg.Whatsapp.Driver {
	case "native":
		native, err := whatsapp.NewNative(ctx, cfg.Whatsapp.DBURI, cfg.Whatsapp.LogLevel)
		if err != nil {
			logrus.Fatalf("[WHATSAPP] %v", err)
		}
		nativeWhatsapp = native
		whatsappSender = native
	default:
		wasender := whatsapp.NewWasender(whatsapp.WasenderConfigFrom(cfg))
		if err := wasender.Ready(ctx); err != nil {
			logrus.Warn("[WHATSAPP] API key missing; WhatsApp jobs will fail until WHATSAPP_API_KEY is set")
		}
		whatsappSender = wasender
	}
}

// initDistribution connects the optional Valkey and AMQP backends. Both are
// best effort: a process without them still runs its own jobs.
func initDistribution() {
	cfg := config.Global

	if cfg.Database.ValkeyEnabled {
		client, err := valkey.NewClient(valkey.ConfigFrom(cfg))
		if err != nil {
			logrus.WithError(err).Warn("[VALKEY] Unavailable, continuing with database claims only")
		} else {
			vkClient = client
			eventRelay = valkey.NewEventRelay(client, serverID)
			logrus.Infof("[VALKEY] Connected to %s", cfg.Database.ValkeyAddress)
		}
	}

	if cfg.AMQP.URL != "" {
		publisher, err := amqpInfra.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Queue)
		if err != nil {
			logrus.WithError(err).Warn("[AMQP] Unavailable, execution events stay local")
		} else {
			amqpPublisher = publisher
		}
	}
}

// StopApp releases everything initApp opened. The poller goes first so an
// in-flight run is handed back to storage before the database closes.
func StopApp() {
	if poller != nil {
		poller.Stop()
	}
	if messagePool != nil {
		poolCancel()
		messagePool.Stop()
	}
	if amqpPublisher != nil {
		amqpPublisher.Close()
	}
	if nativeWhatsapp != nil {
		nativeWhatsapp.Close()
	}
	if vkClient != nil {
		vkClient.Close()
	}
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	logrus.Info("[APP] Shutdown complete")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
