package download

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/wintopic/iDanmu-Speed/internal/danmu"
	"github.com/wintopic/iDanmu-Speed/internal/gate"
	dhttp "github.com/wintopic/iDanmu-Speed/internal/http"
	ioutils "github.com/wintopic/iDanmu-Speed/internal/io"
	"github.com/wintopic/iDanmu-Speed/internal/metrics"
	"github.com/wintopic/iDanmu-Speed/internal/model"
	"github.com/wintopic/iDanmu-Speed/internal/naming"
	"github.com/wintopic/iDanmu-Speed/internal/resolve"
)

// ReportFileName is the run summary written into the output directory.
const ReportFileName = "download-report.json"

// ProgressLevel indicates the severity/type of a progress message.
type ProgressLevel int

const (
	LevelInfo ProgressLevel = iota
	LevelVerbose
	LevelWarning
	LevelError
	LevelSuccess
)

// ProgressEvent is one human-readable progress line.
//
// Front-ends parse Message, so the markers "Total tasks: <n>",
// "OK -> <file>" and "FAILED -> <error>" must stay stable.
type ProgressEvent struct {
	Message string
	Level   ProgressLevel
}

// Options configures a run.
type Options struct {
	APIRoot     string
	InputPath   string
	OutputDir   string
	NamingRule  *naming.Template
	Format      model.Format
	Concurrency int

	// Throttle is the minimum spacing between task starts across all
	// workers. Zero disables pacing.
	Throttle time.Duration

	Clock gate.Clock
}

// Manager runs a task list through a fixed pool of workers.
type Manager struct {
	api      *danmu.API
	resolver *resolve.Resolver
	opts     Options

	onProgress func(ProgressEvent)
}

// NewManager creates a new download Manager.
func NewManager(api *danmu.API, opts Options, onProgress func(ProgressEvent)) *Manager {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Format == model.FormatDefault {
		opts.Format = model.FormatXML
	}
	if opts.NamingRule == nil {
		opts.NamingRule, _ = naming.Parse(naming.DefaultRule)
	}
	if opts.Clock == nil {
		opts.Clock = gate.RealClock
	}
	return &Manager{
		api:        api,
		resolver:   resolve.New(opts.Format),
		opts:       opts,
		onProgress: onProgress,
	}
}

// Run processes the enabled tasks and writes the run report.
//
// Per-task failures are recorded in the report and never abort the run.
// Cancelling ctx stops workers from claiming new tasks; the report is still
// written and marked cancelled. Run returns an error only when the output
// directory or the report cannot be written. An empty task list returns an
// empty report without writing anything.
func (m *Manager) Run(ctx context.Context, tasks []model.Task) (*model.Report, error) {
	outputDir, err := filepath.Abs(m.opts.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output directory: %w", err)
	}
	if err := ioutils.EnsureDir(outputDir); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	tasks = model.Enabled(tasks)
	if len(tasks) == 0 {
		m.progress(ProgressEvent{Message: "No tasks to run.", Level: LevelInfo})
		return &model.Report{Items: []model.ItemResult{}}, nil
	}

	inputPath := m.opts.InputPath
	if inputPath != "" {
		if abs, err := filepath.Abs(inputPath); err == nil {
			inputPath = abs
		}
	}

	m.progress(ProgressEvent{Message: "API: " + m.opts.APIRoot, Level: LevelInfo})
	if inputPath != "" {
		m.progress(ProgressEvent{Message: "Input: " + inputPath, Level: LevelInfo})
	}
	m.progress(ProgressEvent{Message: "Output: " + outputDir, Level: LevelInfo})
	m.progress(ProgressEvent{Message: "Naming rule: " + m.opts.NamingRule.Rule(), Level: LevelInfo})
	m.progress(ProgressEvent{Message: fmt.Sprintf("Total tasks: %d", len(tasks)), Level: LevelInfo})
	m.progress(ProgressEvent{Message: fmt.Sprintf("Concurrency: %d", m.opts.Concurrency), Level: LevelInfo})

	report := &model.Report{
		RunID:      uuid.NewString(),
		StartedAt:  model.Timestamp(m.opts.Clock.Now()),
		APIRoot:    m.opts.APIRoot,
		InputPath:  inputPath,
		OutputDir:  outputDir,
		NamingRule: m.opts.NamingRule.Rule(),
		Total:      len(tasks),
	}

	r := &run{
		manager:   m,
		tasks:     tasks,
		outputDir: outputDir,
		report:    report,
		claims:    naming.NewClaims(),
		pacer:     newPacer(m.opts.Throttle, m.opts.Clock),
	}

	log.Debug().
		Str("run_id", report.RunID).
		Int("tasks", len(tasks)).
		Int("workers", m.opts.Concurrency).
		Msg("Starting run")

	var g errgroup.Group
	for range min(m.opts.Concurrency, len(tasks)) {
		g.Go(func() error {
			r.worker(ctx)
			return nil
		})
	}
	_ = g.Wait()

	report.Finish(ctx.Err() != nil, m.opts.Clock.Now())

	reportPath := filepath.Join(outputDir, ReportFileName)
	if err := ioutils.WriteJSON(reportPath, report); err != nil {
		return report, fmt.Errorf("write report: %w", err)
	}

	success, failed := report.Counts()
	m.progress(ProgressEvent{Message: "Done.", Level: LevelInfo})
	m.progress(ProgressEvent{Message: fmt.Sprintf("Success: %d", success), Level: LevelSuccess})
	m.progress(ProgressEvent{Message: fmt.Sprintf("Failed: %d", failed), Level: failedLevel(failed)})
	m.progress(ProgressEvent{Message: "Report: " + reportPath, Level: LevelInfo})

	return report, nil
}

func failedLevel(failed int) ProgressLevel {
	if failed > 0 {
		return LevelError
	}
	return LevelInfo
}

// run is the shared state of one Run call.
type run struct {
	manager   *Manager
	tasks     []model.Task
	outputDir string
	report    *model.Report
	claims    *naming.Claims
	pacer     *pacer

	cursor atomic.Int64
}

// next claims the next task. It returns false when the queue is drained.
func (r *run) next() (model.Task, bool) {
	i := r.cursor.Add(1) - 1
	if i >= int64(len(r.tasks)) {
		return model.Task{}, false
	}
	return r.tasks[i], true
}

func (r *run) worker(ctx context.Context) {
	metrics.WorkerStarted()
	defer metrics.WorkerStopped()

	sess := dhttp.NewSession()
	defer sess.Close()
	conn := r.manager.api.Bind(sess)

	for {
		if ctx.Err() != nil {
			return
		}
		task, ok := r.next()
		if !ok {
			return
		}
		r.runTask(ctx, conn, task)
	}
}

func (r *run) runTask(ctx context.Context, conn *danmu.Conn, task model.Task) {
	m := r.manager
	if err := r.pacer.wait(ctx); err != nil {
		return
	}
	if ctx.Err() != nil {
		return
	}

	total := len(r.tasks)
	m.progress(ProgressEvent{Message: fmt.Sprintf("[%d/%d] Start...", task.Index, total), Level: LevelVerbose})

	started := m.opts.Clock.Now()
	item, err := r.process(ctx, conn, task)
	elapsed := m.opts.Clock.Now().Sub(started)

	if err != nil {
		msg := describe(err)
		r.report.Add(model.ItemResult{
			Index:  task.Index,
			Status: model.ItemFailed,
			Error:  msg,
		})
		metrics.RecordTask(string(task.Mode()), string(model.ItemFailed), elapsed)
		log.Debug().Err(err).Int("task", task.Index).Str("label", task.Label()).Msg("Task failed")
		m.progress(ProgressEvent{Message: fmt.Sprintf("[%d/%d] FAILED -> %s", task.Index, total, msg), Level: LevelError})
		return
	}

	r.report.Add(item)
	metrics.RecordTask(string(item.Mode), string(model.ItemSuccess), elapsed)
	m.progress(ProgressEvent{Message: fmt.Sprintf("[%d/%d] OK -> %s", task.Index, total, filepath.Base(item.Output)), Level: LevelSuccess})
}

func (r *run) process(ctx context.Context, conn *danmu.Conn, task model.Task) (model.ItemResult, error) {
	m := r.manager

	res, err := m.resolver.Resolve(ctx, conn, task)
	if err != nil {
		return model.ItemResult{}, err
	}

	stem, err := m.opts.NamingRule.Stem(naming.Input{
		Task:       task,
		Mode:       res.Mode,
		Format:     res.Format,
		Resolution: res.Resolution,
	})
	if err != nil {
		return model.ItemResult{}, err
	}
	stem = r.claims.Claim(stem, task.Index)

	output := filepath.Join(r.outputDir, stem+"."+res.Format.Extension())
	if err := ioutils.WriteFile(output, res.Payload.Content()); err != nil {
		return model.ItemResult{}, err
	}

	commentID := res.Resolution.CommentID
	if commentID == 0 {
		commentID = task.CommentID
	}

	return model.ItemResult{
		Index:        task.Index,
		Status:       model.ItemSuccess,
		Mode:         res.Mode,
		Output:       output,
		Count:        res.Payload.Count(),
		Format:       res.Format,
		CommentID:    commentID,
		AnimeTitle:   res.Resolution.AnimeTitle,
		EpisodeTitle: res.Resolution.EpisodeTitle,
	}, nil
}

// describe renders a task failure for the report and progress line.
func describe(err error) string {
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	return dhttp.Describe(err)
}

func (m *Manager) progress(event ProgressEvent) {
	if m.onProgress != nil {
		m.onProgress(event)
	}
}

// pacer spaces task starts by a fixed interval across all workers.
type pacer struct {
	mu       sync.Mutex
	next     time.Time
	interval time.Duration
	clock    gate.Clock
}

func newPacer(interval time.Duration, clock gate.Clock) *pacer {
	return &pacer{interval: interval, clock: clock}
}

// wait reserves the next start slot and sleeps until it.
func (p *pacer) wait(ctx context.Context) error {
	if p.interval <= 0 {
		return nil
	}

	p.mu.Lock()
	now := p.clock.Now()
	wait := p.next.Sub(now)
	if p.next.Before(now) {
		p.next = now
	}
	p.next = p.next.Add(p.interval)
	p.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	return p.clock.Sleep(ctx, wait)
}
