// Package monitor owns the per-user monitoring lifecycle: starting and
// stopping monitors, scheduling scans, de-duplicating message processing
// and writing the audit log.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"mailrules/mailsource"
	"mailrules/models"
	"mailrules/rules"
	"mailrules/utils"
)

// ErrAlreadyRunning is the conflict reported when a second start arrives
// for a user whose monitor is active.
var ErrAlreadyRunning = errors.New("monitor: monitoring already active for user")

// AdapterFactory builds the transport for a mailbox. Injected so tests can
// substitute a fake transport.
type AdapterFactory func(mb *models.Mailbox) (mailsource.Adapter, error)

// Options tunes a Supervisor. Zero values fall back to defaults.
type Options struct {
	Interval       time.Duration
	Mode           rules.Mode
	Factory        AdapterFactory
	RecentLogCount int
}

// Status is the externally visible state of one user's monitor.
type Status struct {
	IsActive   bool              `json:"is_active"`
	RecentLogs []models.EmailLog `json:"recent_logs"`
}

// Supervisor owns the table of running monitors, one per user, and the
// scan schedule of each. Constructed once at process start.
type Supervisor struct {
	store    Store
	logger   *log.Logger
	interval time.Duration
	mode     rules.Mode
	factory  AdapterFactory
	recent   int

	mu       sync.Mutex
	monitors map[uint]*monitorState
}

// monitorState is the in-process record for one running monitor.
type monitorState struct {
	userID    uint
	mailboxID uint
	adapter   mailsource.Adapter
	executor  *Executor
	cancel    context.CancelFunc

	// ready closes once Start has finished wiring the state, so a
	// concurrent Stop never observes a half-started monitor.
	ready chan struct{}
	done  chan struct{}

	// scanning guards against overlapping scans for the same user: a
	// tick that fires while a scan is in flight becomes a no-op.
	scanning atomic.Bool
}

func NewSupervisor(store Store, logger *log.Logger, opts Options) *Supervisor {
	if opts.Interval <= 0 {
		opts.Interval = 60 * time.Second
	}
	if opts.RecentLogCount <= 0 {
		opts.RecentLogCount = 10
	}
	return &Supervisor{
		store:    store,
		logger:   logger,
		interval: opts.Interval,
		mode:     opts.Mode,
		factory:  opts.Factory,
		recent:   opts.RecentLogCount,
		monitors: make(map[uint]*monitorState),
	}
}

// Start brings up monitoring for the user: validates the mailbox
// credentials, opens the transport, performs one immediate scan and
// schedules recurring ones. A monitor that is already running is a
// conflict; a transport connect failure leaves the monitor stopped and
// propagates to the caller.
func (s *Supervisor) Start(ctx context.Context, userID uint) error {
	st := &monitorState{
		userID: userID,
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	if _, exists := s.monitors[userID]; exists {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.monitors[userID] = st
	s.mu.Unlock()

	fail := func(err error) error {
		s.mu.Lock()
		// Only remove our own reservation: a Stop that raced this Start
		// may have freed the slot already, and a newer Start may have
		// claimed it since.
		if cur, ok := s.monitors[userID]; ok && cur == st {
			delete(s.monitors, userID)
		}
		s.mu.Unlock()
		close(st.ready)
		close(st.done)
		return err
	}

	mb, err := s.store.Mailbox(userID)
	if err != nil {
		return fail(fmt.Errorf("load mailbox: %w", err))
	}
	if err := mb.Validate(); err != nil {
		return fail(err)
	}

	adapter, err := s.factory(mb)
	if err != nil {
		return fail(err)
	}

	if err := adapter.Connect(ctx); err != nil {
		utils.LogError("monitor_connect_failed", err, map[string]interface{}{
			"user_id":    userID,
			"mailbox_id": mb.ID,
			"provider":   mb.ProviderType,
		})
		_ = s.store.RecordMailboxError(mb.ID, err.Error())
		return fail(err)
	}

	st.mailboxID = mb.ID
	st.adapter = adapter
	st.executor = NewExecutor(adapter, s.logger)

	runCtx, cancel := context.WithCancel(context.Background())
	st.cancel = cancel
	close(st.ready)

	_ = s.store.SetMonitoring(mb.ID, true)
	go s.run(runCtx, st)

	utils.LogEvent("monitor_started", map[string]interface{}{
		"user_id":    userID,
		"mailbox_id": mb.ID,
		"provider":   mb.ProviderType,
	})
	return nil
}

// Stop tears down the user's monitor: cancels the schedule, lets a scan
// already in flight drain, and closes the transport. Stopping a stopped
// monitor is a no-op.
func (s *Supervisor) Stop(userID uint) error {
	s.mu.Lock()
	st, ok := s.monitors[userID]
	if ok {
		delete(s.monitors, userID)
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}

	<-st.ready
	if st.cancel != nil {
		st.cancel()
	}
	<-st.done

	if st.adapter != nil {
		if err := st.adapter.Close(); err != nil {
			s.logger.Printf("closing transport for user %d: %v", userID, err)
		}
	}
	if st.mailboxID != 0 {
		_ = s.store.SetMonitoring(st.mailboxID, false)
	}

	utils.LogEvent("monitor_stopped", map[string]interface{}{"user_id": userID})
	return nil
}

// Running reports whether the user's monitor is active.
func (s *Supervisor) Running(userID uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.monitors[userID]
	return ok
}

// Status is a pure read: lifecycle flag plus the most recent log entries.
func (s *Supervisor) Status(userID uint) (Status, error) {
	recent, err := s.store.RecentLogs(userID, s.recent)
	if err != nil {
		return Status{}, err
	}
	return Status{
		IsActive:   s.Running(userID),
		RecentLogs: recent,
	}, nil
}

// Shutdown stops every running monitor. Called once at process exit.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	userIDs := make([]uint, 0, len(s.monitors))
	for id := range s.monitors {
		userIDs = append(userIDs, id)
	}
	s.mu.Unlock()

	for _, id := range userIDs {
		if err := s.Stop(id); err != nil {
			s.logger.Printf("shutdown of monitor %d: %v", id, err)
		}
	}
}

// run is the per-monitor loop: an immediate scan, then one per tick, plus
// one whenever the transport pushes a new-mail notification.
func (s *Supervisor) run(ctx context.Context, st *monitorState) {
	defer close(st.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Nil for transports without push; a nil channel never fires.
	notify := st.adapter.Notifications()

	// A Stop may have landed before this goroutine was scheduled.
	select {
	case <-ctx.Done():
		return
	default:
	}

	s.scan(ctx, st)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scan(ctx, st)
		case <-notify:
			s.scan(ctx, st)
		}
	}
}

// scan fetches currently unseen messages and processes each, including
// any fetched before a transport failure cut the fetch short. On failure
// the monitor stays running and retries on the next tick rather than
// looping immediately.
func (s *Supervisor) scan(ctx context.Context, st *monitorState) {
	if !st.scanning.CompareAndSwap(false, true) {
		return
	}
	defer st.scanning.Store(false)

	messages, err := st.adapter.FetchUnseen(ctx)
	if err != nil {
		utils.LogError("scan_fetch_failed", err, map[string]interface{}{
			"user_id":    st.userID,
			"mailbox_id": st.mailboxID,
		})
		_ = s.store.RecordMailboxError(st.mailboxID, err.Error())
	} else {
		_ = s.store.TouchScan(st.mailboxID)
	}

	// Messages already fetched are processed even when the fetch failed
	// partway or a stop arrives mid-scan: the transports mark them seen
	// as they are read, so dropping the partial slice would lose them
	// from the unseen set with no log entry.
	for _, msg := range messages {
		s.process(ctx, st, msg)
	}
}

// process runs the log lifecycle for one message: skip if a terminal
// entry exists, otherwise create a processing entry, match rules, execute
// actions, and record the terminal status.
func (s *Supervisor) process(ctx context.Context, st *monitorState, msg mailsource.Message) {
	existing, err := s.store.FindLog(st.mailboxID, msg.ID)
	if err != nil {
		s.logger.Printf("log lookup for message %s: %v", msg.ID, err)
		return
	}

	var entry *models.EmailLog
	if existing != nil {
		if existing.Terminal() {
			// Redelivered message; silent skip.
			return
		}
		// A processing entry left behind by a crash: resume it.
		entry = existing
	} else {
		entry = &models.EmailLog{
			UserID:    st.userID,
			MailboxID: st.mailboxID,
			MessageID: msg.ID,
			FromEmail: msg.From,
			ToEmail:   msg.To,
			Subject:   msg.Subject,
			Body:      msg.Body,
			Status:    models.LogStatusProcessing,
		}
		if err := s.store.CreateLog(entry); err != nil {
			if errors.Is(err, ErrDuplicateLog) {
				return
			}
			s.logger.Printf("log create for message %s: %v", msg.ID, err)
			return
		}
	}

	if msg.ParseErr != nil {
		s.finishWithError(entry, fmt.Sprintf("parse: %v", msg.ParseErr))
		return
	}

	ruleSet, err := s.store.ActiveRules(st.userID)
	if err != nil {
		s.finishWithError(entry, fmt.Sprintf("load rules: %v", err))
		return
	}

	matched := rules.Match(msg, ruleSet, s.mode)
	if len(matched) == 0 {
		entry.Status = models.LogStatusNoRuleMatch
		s.saveLog(entry)
		return
	}

	entry.RuleID = &matched[0].ID

	var failures []*ActionError
	for _, rule := range matched {
		failures = append(failures, st.executor.RunActions(ctx, rule, msg)...)
	}

	if len(failures) > 0 {
		texts := make([]string, len(failures))
		for i, f := range failures {
			texts[i] = f.Error()
		}
		s.finishWithError(entry, strings.Join(texts, "; "))
		return
	}

	entry.Status = models.LogStatusProcessed
	s.saveLog(entry)
}

func (s *Supervisor) finishWithError(entry *models.EmailLog, text string) {
	entry.Status = models.LogStatusError
	entry.Error = &text
	s.saveLog(entry)
}

func (s *Supervisor) saveLog(entry *models.EmailLog) {
	if err := s.store.UpdateLog(entry); err != nil {
		s.logger.Printf("log update for message %s: %v", entry.MessageID, err)
	}
}
