// Package dispatch runs one executor per target repository, concurrently,
// and turns each run into a classified outcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/squad-orchestrator/internal/config"
	"github.com/hochfrequenz/squad-orchestrator/internal/domain"
	"github.com/hochfrequenz/squad-orchestrator/internal/executor"
	"github.com/hochfrequenz/squad-orchestrator/internal/ledger"
	"github.com/hochfrequenz/squad-orchestrator/internal/logging"
	"github.com/hochfrequenz/squad-orchestrator/internal/observer"
	"github.com/hochfrequenz/squad-orchestrator/internal/outcome"
	"github.com/hochfrequenz/squad-orchestrator/internal/quality"
	"github.com/hochfrequenz/squad-orchestrator/internal/runstore"
)

// Dispatcher supervises orchestration passes
type Dispatcher struct {
	cfg       *config.Config
	worktrees *executor.WorktreeManager
	ledger    *ledger.Ledger
	journal   *runstore.Store
	logger    *logging.Logger
	console   *lockedWriter
	baseEnv   []string

	// supervise runs the executor once the workspace is ready
	supervise func(ctx context.Context, p *pass, st *runState)
}

// New creates a Dispatcher. journal may be nil; out receives the streamed
// executor output, progress lines and per-run verdicts.
func New(cfg *config.Config, l *ledger.Ledger, journal *runstore.Store, logger *logging.Logger, out io.Writer) *Dispatcher {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if out == nil {
		out = io.Discard
	}
	d := &Dispatcher{
		cfg:       cfg,
		worktrees: executor.NewWorktreeManager(cfg.General.WorktreeDir),
		ledger:    l,
		journal:   journal,
		logger:    logger.WithComponent("dispatch"),
		console:   &lockedWriter{w: out},
		baseEnv:   os.Environ(),
	}
	d.supervise = d.execute
	return d
}

// pass is the shared, read-only view of one Dispatch call
type pass struct {
	id           string
	req          domain.RunRequest
	briefingHash string
	force        bool
	allowDirty   bool
	observer     *observer.Observer
	runRepos     sync.Map // run id -> repo name, for live audit lines
}

// runState holds everything that belongs to a single repository run.
// Nothing in it is shared with sibling runs.
type runState struct {
	runID        string
	repo         domain.Repository
	briefing     string
	briefingHash string
	mode         domain.ExecutionMode
	task         domain.ResolvedTask
	fingerprint  string
	worktree     *domain.Worktree
	workDir      string
	auditPath    string
	started      time.Time
	logger       *logging.Logger
	outcome      domain.RunOutcome
}

// Dispatch runs the request against every target and returns the aggregated
// report. Per-repository failures end up in the report; an error is only
// returned when the request itself is unusable.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.RunRequest) (*domain.Report, error) {
	repos, err := d.targets(req.Targets)
	if err != nil {
		return nil, err
	}
	if req.Mode == "" {
		req.Mode = domain.ModeRun
	}

	p := &pass{
		id:           uuid.NewString(),
		req:          req,
		briefingHash: ledger.BriefingHash(req.Briefing),
		force:        req.Force || d.cfg.Run.ForceRerun,
		allowDirty:   req.AllowDirty || d.cfg.Run.AllowDirty,
		observer:     observer.New(len(repos)),
	}
	log := d.logger.With("pass_id", p.id, "mode", string(req.Mode))
	log.Info("pass started", "targets", len(repos), "briefing_hash", p.briefingHash)
	d.record(runstore.Event{
		PassID:  p.id,
		TaskID:  firstTaskID(req.Briefing),
		Phase:   runstore.PhaseMultiRunStart,
		Status:  runstore.StatusInProgress,
		Mode:    req.Mode,
		Details: "Briefing: " + req.Briefing,
	})

	if req.Mode == domain.ModeRun {
		if watcher := d.watchAudit(ctx, p); watcher != nil {
			defer watcher.Stop()
		}
	}

	progressCtx, stopProgress := context.WithCancel(ctx)
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		p.observer.Report(progressCtx, d.cfg.Run.ProgressInterval(), d.console)
	}()

	outcomes := make([]domain.RunOutcome, len(repos))
	var g errgroup.Group
	g.SetLimit(len(repos))
	for i, repo := range repos {
		i, repo := i, repo
		g.Go(func() error {
			outcomes[i] = d.runOne(ctx, p, repo)
			return nil
		})
	}
	g.Wait()

	stopProgress()
	<-progressDone

	metrics := p.observer.GetMetrics()
	report := &domain.Report{
		Briefing:       req.Briefing,
		BriefingHash:   p.briefingHash,
		Mode:           req.Mode,
		GeneratedAt:    time.Now(),
		AverageRunTime: metrics.AvgDuration,
		Outcomes:       outcomes,
	}

	done, blocked, skipped := report.Counts()
	status := domain.StatusDone
	if report.ExitCode() != 0 {
		status = domain.StatusBlocked
	}
	d.record(runstore.Event{
		PassID:  p.id,
		TaskID:  firstTaskID(req.Briefing),
		Phase:   runstore.PhaseMultiRunEnd,
		Status:  string(status),
		Mode:    req.Mode,
		Details: fmt.Sprintf("done=%d blocked=%d skipped=%d overall_return_code=%d", done, blocked, skipped, report.ExitCode()),
	})
	log.Info("pass finished", "done", done, "blocked", blocked, "skipped", skipped, "avg_duration", metrics.AvgDuration.String())

	return report, nil
}

// targets maps target names to repository profiles, dropping duplicates
func (d *Dispatcher) targets(names []string) ([]domain.Repository, error) {
	if len(names) == 0 {
		return nil, errors.New("no target repositories given")
	}
	seen := make(map[string]bool, len(names))
	var repos []domain.Repository
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		repo, ok := d.cfg.Repository(name)
		if !ok {
			return nil, fmt.Errorf("unknown repository %q", name)
		}
		repos = append(repos, repo)
	}
	return repos, nil
}

func (d *Dispatcher) newRunState(p *pass, repo domain.Repository) *runState {
	runID := uuid.NewString()
	return &runState{
		runID:        runID,
		repo:         repo,
		briefing:     p.req.Briefing,
		briefingHash: p.briefingHash,
		mode:         p.req.Mode,
		workDir:      repo.Root,
		started:      time.Now(),
		logger:       d.logger.WithRepo(repo.Name, runID),
		outcome: domain.RunOutcome{
			RunID: runID,
			Repo:  repo.Name,
			Mode:  p.req.Mode,
			Task:  domain.ResolvedTask{ID: domain.Unresolved, Source: domain.SourceUnresolved},
		},
	}
}

// runOne drives a single repository from preflight to ledger append.
// It never panics and always returns an outcome.
func (d *Dispatcher) runOne(ctx context.Context, p *pass, repo domain.Repository) (out domain.RunOutcome) {
	st := d.newRunState(p, repo)
	p.observer.RecordStart(repo.Name)

	defer func() {
		if r := recover(); r != nil {
			st.outcome.Blocked(domain.BlockTransport, fmt.Sprintf("supervision failed: %v", r))
			st.outcome.ReturnCode = domain.TransportReturnCode
			st.logger.Error("run panicked", "panic", fmt.Sprint(r))
			if st.auditPath != "" {
				d.appendLedger(st)
			}
			d.record(d.event(p, st, runstore.PhaseRunException, st.outcome.Reason))
		}
		st.outcome.Duration = time.Since(st.started)
		p.observer.RecordCompletion(repo.Name, st.outcome.Status, st.outcome.Duration)
		d.announce(st)
		out = st.outcome
	}()

	if err := d.preflight(st, p.allowDirty); err != nil {
		st.outcome.Blocked(domain.BlockPreflight, err.Error())
		st.logger.Warn("preflight blocked", "error", err.Error())
		d.record(d.event(p, st, runstore.PhaseRunEnd, st.outcome.Reason))
		return
	}

	if st.mode == domain.ModePlanOnly {
		d.plan(ctx, p, st)
		return
	}

	if !p.force {
		if entry, skip := d.alreadyDone(st); skip {
			st.outcome.Status = domain.StatusSkipped
			st.outcome.Commits = append([]string(nil), entry.CommitHashes...)
			st.outcome.SkipReason = fmt.Sprintf("already done at %s (commits %s)",
				entry.Timestamp.Format(time.RFC3339), strings.Join(entry.CommitHashes, ", "))
			st.logger.Info("skipped by ledger", "previous_run_id", entry.RunID)
			d.record(d.event(p, st, runstore.PhaseRunEnd, st.outcome.SkipReason))
			return
		}
	}

	if d.cfg.Run.UseWorktree {
		wt, err := d.worktrees.Prepare(repo)
		if err != nil {
			st.outcome.Blocked(domain.BlockPreflight, "worktree: "+err.Error())
			st.logger.Warn("worktree preparation failed", "error", err.Error())
			return
		}
		st.worktree = wt
		st.workDir = wt.Path
		st.outcome.WorktreePath = wt.Path
		defer func() {
			if err := d.worktrees.Destroy(repo, wt); err != nil {
				st.logger.Error("worktree cleanup failed", "path", wt.Path, "error", err.Error())
				d.console.Printf("[%s] worktree cleanup failed: %v\n", repo.Name, err)
			}
		}()
	}

	d.supervise(ctx, p, st)
	return
}

// alreadyDone consults the ledger for a finished run of the same work
func (d *Dispatcher) alreadyDone(st *runState) (*domain.LedgerEntry, bool) {
	entry, err := d.ledger.LatestRun(st.repo.Name, st.task.ID, st.briefingHash)
	if err != nil {
		// An unreadable ledger only costs a rerun
		st.logger.Warn("reading ledger failed", "error", err.Error())
		return nil, false
	}
	return entry, ledger.ShouldSkip(entry)
}

func (d *Dispatcher) execute(ctx context.Context, p *pass, st *runState) {
	auditPath, err := d.auditPath(st.runID)
	if err != nil {
		st.outcome.Blocked(domain.BlockTransport, "audit log: "+err.Error())
		st.outcome.ReturnCode = domain.TransportReturnCode
		d.appendLedger(st)
		return
	}
	st.auditPath = auditPath
	p.runRepos.Store(st.runID, st.repo.Name)

	env := buildEnv(d.baseEnv, st)
	agent := d.agent(st, env)

	d.record(d.event(p, st, runstore.PhaseRunStart, "workdir: "+st.workDir))
	st.logger.Info("executor started", "workdir", st.workDir, "task", st.task.ID)

	res, err := agent.Run(ctx)
	if err != nil {
		d.transportFailure(p, st, res, err)
		return
	}

	audit, err := outcome.ReadAuditFile(st.auditPath)
	if err != nil {
		st.logger.Warn("reading audit trail failed", "error", err.Error())
	}
	ev := outcome.Collect(st.task, res.ReturnCode, res.TimedOut, res.Stdout, res.Stderr, audit)
	ev.Apply(&st.outcome)
	st.outcome.StdoutTail = outcome.Tail(res.Stdout, outcome.TailLines)
	st.outcome.StderrTail = outcome.Tail(res.Stderr, outcome.TailLines)

	if st.outcome.Status == domain.StatusBlocked && d.cfg.Run.AutoQualityRepair && st.repo.QualityCommand != "" && ev.QualityOnly() {
		d.repair(ctx, st, ev, env)
	}

	if st.outcome.Status == domain.StatusBlocked && st.worktree == nil && d.cfg.Run.AutoRollback {
		if err := executor.Rollback(st.repo.Root); err != nil {
			st.logger.Error("rollback failed", "error", err.Error())
			d.console.Printf("[%s] rollback failed: %v\n", st.repo.Name, err)
		} else {
			st.outcome.RolledBack = true
		}
	}

	d.appendLedger(st)
	d.record(d.event(p, st, runstore.PhaseRunEnd, st.outcome.Reason))
}

func (d *Dispatcher) agent(st *runState, env []string) *executor.Agent {
	return &executor.Agent{
		Name:    st.repo.Name,
		Command: d.cfg.Executor.Command,
		Args:    d.cfg.Executor.Args,
		Dir:     st.workDir,
		Env:     env,
		Timeout: d.cfg.Run.Timeout(),
		OnLine:  d.lineSink(st.repo.Name),
	}
}

func (d *Dispatcher) transportFailure(p *pass, st *runState, res *executor.Result, err error) {
	st.outcome.Blocked(domain.BlockTransport, "executor supervision failed: "+err.Error())
	st.outcome.ReturnCode = domain.TransportReturnCode
	if res != nil {
		st.outcome.StdoutTail = outcome.Tail(res.Stdout, outcome.TailLines)
		st.outcome.StderrTail = outcome.Tail(res.Stderr, outcome.TailLines)
	}
	st.logger.Error("executor supervision failed", "error", err.Error())
	d.appendLedger(st)
	d.record(d.event(p, st, runstore.PhaseRunException, st.outcome.Reason))
}

// repair reruns the quality gate after the repository's repair commands and
// re-classifies the run when the gate passes
func (d *Dispatcher) repair(ctx context.Context, st *runState, ev outcome.Evidence, env []string) {
	repairer := &quality.Repairer{
		Timeout: d.cfg.Run.Timeout(),
		Env:     env,
		OnLine:  d.lineSink(st.repo.Name),
	}
	res, err := repairer.Repair(ctx, st.repo, st.task, st.workDir, d.cfg.Run.QualityRetryMax)
	if err != nil {
		st.logger.Warn("quality repair failed", "error", err.Error())
		return
	}
	if !res.Passed {
		st.logger.Info("quality repair did not pass", "attempts", res.Attempts, "return_code", res.ReturnCode)
		return
	}

	repaired := ev.WithQualityPassed(true)
	if res.Commit != "" {
		repaired.Commits = append(repaired.Commits, res.Commit)
	}
	repaired.Apply(&st.outcome)
	st.logger.Info("quality repaired", "attempts", res.Attempts, "commit", res.Commit)
}

func (d *Dispatcher) appendLedger(st *runState) {
	commits := st.outcome.Commits
	if commits == nil {
		commits = []string{}
	}
	entry := domain.LedgerEntry{
		Timestamp:       time.Now().UTC(),
		RunID:           st.runID,
		Repo:            st.repo.Name,
		TaskID:          st.task.String(),
		BriefingHash:    st.briefingHash,
		ExecutionMode:   st.mode,
		Status:          st.outcome.Status,
		ReturnCode:      st.outcome.ReturnCode,
		DurationSeconds: time.Since(st.started).Seconds(),
		CommitHashes:    commits,
		Quality:         st.outcome.Quality,
		BranchGuardrail: st.outcome.Branch,
	}
	if err := d.ledger.Append(entry); err != nil {
		st.logger.Error("appending ledger entry failed", "error", err.Error())
		d.console.Printf("[%s] ledger append failed: %v\n", st.repo.Name, err)
	}
}

func (d *Dispatcher) auditPath(runID string) (string, error) {
	dir := filepath.Join(d.cfg.General.ReportsDir, "audit")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return filepath.Join(dir, runID+".jsonl"), nil
}

// watchAudit prints audit records live while runs are in flight
func (d *Dispatcher) watchAudit(ctx context.Context, p *pass) *observer.AuditWatcher {
	dir := filepath.Join(d.cfg.General.ReportsDir, "audit")
	watcher, err := observer.NewAuditWatcher(dir, func(runID string, records []domain.AuditRecord) {
		repo, ok := p.runRepos.Load(runID)
		if !ok {
			return
		}
		for _, rec := range records {
			d.console.Printf("[%s] audit %s %s\n", repo, rec.Tool, rec.Status)
		}
	})
	if err != nil {
		d.logger.Warn("live audit output disabled", "error", err.Error())
		return nil
	}
	watcher.Start(ctx)
	return watcher
}

func (d *Dispatcher) lineSink(repo string) executor.LineFunc {
	return func(stream executor.Stream, line string) {
		if stream == executor.StreamStderr {
			d.console.Printf("[%s] stderr: %s\n", repo, line)
			return
		}
		d.console.Printf("[%s] %s\n", repo, line)
	}
}

// announce prints the run's verdict line
func (d *Dispatcher) announce(st *runState) {
	o := st.outcome
	switch o.Status {
	case domain.StatusSkipped:
		d.console.Printf("[%s] skipped: %s\n", o.Repo, o.SkipReason)
	case domain.StatusBlocked:
		d.console.Printf("[%s] blocked (%s): %s\n", o.Repo, o.BlockKind, o.Reason)
	default:
		d.console.Printf("[%s] %s in %s\n", o.Repo, o.Status, o.Duration.Round(time.Second))
	}
	st.logger.Info("run finished",
		"status", string(o.Status),
		"block_kind", string(o.BlockKind),
		"return_code", o.ReturnCode,
		"task", o.Task.String(),
		"duration", o.Duration.String(),
	)
}

func (d *Dispatcher) event(p *pass, st *runState, phase runstore.Phase, details string) runstore.Event {
	status := string(st.outcome.Status)
	if phase == runstore.PhaseRunStart {
		status = runstore.StatusInProgress
	}
	return runstore.Event{
		PassID:  p.id,
		RunID:   st.runID,
		Repo:    st.repo.Name,
		TaskID:  st.task.String(),
		Phase:   phase,
		Status:  status,
		Mode:    st.mode,
		Details: details,
	}
}

func (d *Dispatcher) record(ev runstore.Event) {
	if d.journal == nil {
		return
	}
	if err := d.journal.Record(ev); err != nil {
		d.logger.Warn("journal write failed", "phase", string(ev.Phase), "error", err.Error())
	}
}

func firstTaskID(briefing string) string {
	if id, ok := domain.FindTaskID(briefing); ok {
		return id
	}
	return domain.Unresolved
}

// lockedWriter serializes console writes from concurrent runs so lines never interleave
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func (l *lockedWriter) Printf(format string, args ...any) {
	fmt.Fprintf(l, format, args...)
}
