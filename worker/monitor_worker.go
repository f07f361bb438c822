package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"mailrules/monitor"
)

// reconcileInterval is how often the worker compares the monitoring flags
// in the database with the supervisor's running set.
const reconcileInterval = 1 * time.Minute

// MonitorWorker resumes monitors after a restart and keeps the
// supervisor's table aligned with the mailboxes flagged enabled in the
// database. Start/stop through the API takes effect immediately; this
// worker only catches what a crash or an out-of-band flag change left
// behind.
type MonitorWorker struct {
	store      monitor.Store
	supervisor *monitor.Supervisor
	logger     *log.Logger
}

func NewMonitorWorker(store monitor.Store, supervisor *monitor.Supervisor, logger *log.Logger) *MonitorWorker {
	return &MonitorWorker{
		store:      store,
		supervisor: supervisor,
		logger:     logger,
	}
}

func (mw *MonitorWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(10 * time.Second)

	mw.logger.Println("Monitor worker started")
	mw.reconcile(ctx)

	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mw.logger.Println("Monitor worker shutting down...")
			return
		case <-ticker.C:
			mw.reconcile(ctx)
		}
	}
}

func (mw *MonitorWorker) reconcile(ctx context.Context) {
	mailboxes, err := mw.store.EnabledMailboxes()
	if err != nil {
		mw.logger.Printf("Failed to fetch enabled mailboxes: %v", err)
		return
	}

	for _, mb := range mailboxes {
		if mw.supervisor.Running(mb.UserID) {
			continue
		}

		err := mw.supervisor.Start(ctx, mb.UserID)
		if errors.Is(err, monitor.ErrAlreadyRunning) {
			continue
		}
		if err != nil {
			mw.logger.Printf("Failed to resume monitor for user %d: %v", mb.UserID, err)
			// A mailbox whose credentials stopped working would
			// otherwise be retried every minute forever.
			if err := mw.store.SetMonitoring(mb.ID, false); err != nil {
				mw.logger.Printf("Failed to disable monitoring for mailbox %d: %v", mb.ID, err)
			}
			continue
		}
		mw.logger.Printf("Resumed monitoring for user %d", mb.UserID)
	}
}
