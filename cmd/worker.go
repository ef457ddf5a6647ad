package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/AzielCF/az-bulk/bulkmessage/domain/job"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the scheduler for server-mode jobs",
	Long: `Run a dedicated scheduler process. It polls for due server-mode jobs,
claims them and sends them. Several workers can share one database; with
Valkey enabled they also share locks and wake-up signals.`,
	Run: workerServer,
}

func init() {
	workerCmd.Flags().Bool("once", false, "run a single check and exit --once")
	rootCmd.AddCommand(workerCmd)
}

func workerServer(cmd *cobra.Command, _ []string) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	initApp(ctx, job.ModeServer, func() []job.EventSink {
		// No dashboards attach to a worker; relay events to the REST processes.
		if eventRelay != nil {
			return []job.EventSink{eventRelay}
		}
		return nil
	})
	defer StopApp()

	if once, _ := cmd.Flags().GetBool("once"); once {
		res, err := poller.CheckNow(ctx)
		if err != nil {
			logrus.Errorf("[WORKER] Check failed: %v", err)
			return
		}
		logrus.Infof("[WORKER] Check done: %d due, %d executed, %d skipped, %d failed", res.Due, res.Executed, res.Skipped, res.Failed)
		return
	}

	poller.Start(ctx)
	listenForWakeUps(ctx)
	logrus.Infof("[WORKER] %s running, checking every %s", serverID, poller.Status().Interval)

	<-ctx.Done()
	logrus.Info("[WORKER] Reception of termination signal, shutting down gracefully...")
}
