package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/aibatch/internal/ai"
	"github.com/local/aibatch/internal/config"
	"github.com/local/aibatch/internal/imaging"
	"github.com/local/aibatch/internal/metrics"
	"github.com/local/aibatch/internal/parse"
	"github.com/local/aibatch/internal/progress"
	"github.com/local/aibatch/internal/table"
)

// RunState tracks where the dispatch loop is.
type RunState string

const (
	StateIdle        RunState = "idle"
	StateLoading     RunState = "loading"
	StateRunning     RunState = "running"
	StateDraining    RunState = "draining"
	StateCompleted   RunState = "completed"
	StateInterrupted RunState = "interrupted"
)

// Executor issues one request with retry; satisfied by executor.Executor.
type Executor interface {
	Execute(ctx context.Context, adapter ai.Adapter, p ai.Prompt) (string, int, error)
}

// Options wires the scheduler's collaborators. No globals: everything a
// worker touches comes in here.
type Options struct {
	RunID        string
	Model        string
	SystemPrompt string
	Cfg          config.Run
	Adapter      ai.Adapter
	Exec         Executor
	Store        progress.Store
	Table        *table.Table
}

// Summary is the end-of-run accounting.
type Summary struct {
	Total       int
	Succeeded   int
	Degraded    int
	Failed      int
	SkippedDone int // already done before this run
	SkippedPerm int // failed too often, not retried
	Interrupted bool
}

// Scheduler drives the batch: bounded worker pool, paced dispatch, progress
// recording, clean draining on interrupt.
type Scheduler struct {
	opts  Options
	state RunState

	succeeded atomic.Int64
	degraded  atomic.Int64
	failed    atomic.Int64

	fatalOnce sync.Once
	fatalErr  error
	abort     context.CancelFunc
}

func New(opts Options) *Scheduler {
	return &Scheduler{opts: opts, state: StateIdle}
}

func (s *Scheduler) State() RunState { return s.state }

// fatal records the first unrecoverable error (persistence) and stops
// further dispatching; in-flight workers still drain.
func (s *Scheduler) fatal(err error) {
	s.fatalOnce.Do(func() {
		s.fatalErr = err
		if s.abort != nil {
			s.abort()
		}
	})
}

// Run executes the batch until all rows are settled, the context is
// cancelled, or the progress store fails. Completion order of rows is not
// defined; the progress store carries the row identity.
func (s *Scheduler) Run(ctx context.Context) (Summary, error) {
	s.state = StateLoading

	statuses, err := s.opts.Store.Load(ctx)
	if err != nil {
		s.state = StateInterrupted
		return Summary{}, err
	}

	rows := s.opts.Table.Rows()
	summary := Summary{Total: len(rows)}

	retryFailed := s.opts.Cfg.AutoRetryFailed()
	threshold := s.opts.Cfg.FailureThreshold

	var pending []workItem
	for _, row := range rows {
		st, ok := statuses[row.ID]
		if !ok || st.State == progress.StatePending {
			pending = append(pending, workItem{row: row, prior: st})
			continue
		}
		switch st.State {
		case progress.StateDone:
			summary.SkippedDone++
		case progress.StateFailed:
			if retryFailed && (threshold <= 0 || st.Attempts < threshold) {
				pending = append(pending, workItem{row: row, prior: st})
			} else {
				summary.SkippedPerm++
				metrics.IncRow("skipped")
				log.Warn().
					Int("row_id", row.ID).
					Int("attempts", st.Attempts).
					Str("last_error", st.LastError).
					Msg("row exceeded permanent failure threshold; skipping")
			}
		}
	}

	log.Info().
		Str("run_id", s.opts.RunID).
		Str("model", s.opts.Model).
		Int("total", summary.Total).
		Int("pending", len(pending)).
		Int("already_done", summary.SkippedDone).
		Int("skipped_permanent", summary.SkippedPerm).
		Msg("batch loaded")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.abort = cancel

	s.state = StateRunning

	sem := make(chan struct{}, s.opts.Cfg.Workers)
	var wg sync.WaitGroup
	delay := s.opts.Cfg.RequestDelay.Duration()

	var completed atomic.Int64
	total := int64(len(pending))

dispatch:
	for i, item := range pending {
		// pace request issuance, not completion
		if i > 0 && delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-runCtx.Done():
				t.Stop()
				break dispatch
			case <-t.C:
			}
		}

		if runCtx.Err() != nil {
			break dispatch
		}
		select {
		case <-runCtx.Done():
			break dispatch
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(item workItem) {
			defer wg.Done()
			defer func() { <-sem }()
			metrics.RowStarted()
			defer metrics.RowFinished()

			s.processRow(runCtx, item)

			n := completed.Add(1)
			if n%25 == 0 || n == total {
				log.Info().Int64("completed", n).Int64("dispatched", total).Msg("batch progress")
			}
		}(item)
	}

	s.state = StateDraining
	log.Debug().Msg("dispatch loop done; draining in-flight workers")
	wg.Wait()

	summary.Succeeded = int(s.succeeded.Load())
	summary.Degraded = int(s.degraded.Load())
	summary.Failed = int(s.failed.Load())
	summary.Interrupted = ctx.Err() != nil

	if s.fatalErr != nil {
		s.state = StateInterrupted
		return summary, s.fatalErr
	}
	if summary.Interrupted {
		s.state = StateInterrupted
	} else {
		s.state = StateCompleted
	}

	log.Info().
		Str("run_id", s.opts.RunID).
		Int("succeeded", summary.Succeeded).
		Int("degraded_parse", summary.Degraded).
		Int("failed", summary.Failed).
		Int("already_done", summary.SkippedDone).
		Int("skipped_permanent", summary.SkippedPerm).
		Bool("interrupted", summary.Interrupted).
		Msg("batch finished")

	return summary, nil
}

type workItem struct {
	row   table.Row
	prior progress.RowStatus
}

// processRow runs one row end to end: prompt assembly, execution with
// retry, parsing, durable status update. Row-level failures never abort
// the batch; only a store failure is fatal.
func (s *Scheduler) processRow(ctx context.Context, item workItem) {
	row := item.row

	p := ai.Prompt{
		Model:       s.opts.Model,
		System:      s.opts.SystemPrompt,
		Text:        row.Prompt,
		Temperature: s.opts.Cfg.Temperature,
		MaxTokens:   s.opts.Cfg.MaxTokens,
	}

	if row.ImagePath != "" {
		part, err := imaging.LoadPart(row.ImagePath, s.opts.Cfg.ImageBasePath)
		if err != nil {
			// degrade to text-only rather than failing the row
			log.Warn().Int("row_id", row.ID).Err(err).Msg("image unavailable; sending text only")
		} else {
			p.ImageBase64 = part.Base64
			p.ImageMIME = part.MIME
		}
	}

	start := time.Now()
	text, attempts, err := s.opts.Exec.Execute(ctx, s.opts.Adapter, p)
	totalAttempts := item.prior.Attempts + attempts

	if err != nil {
		if ctx.Err() != nil {
			// interrupted mid-request: leave the row pending for the next run
			log.Warn().Int("row_id", row.ID).Msg("row interrupted; will be retried on next run")
			return
		}
		st := progress.RowStatus{
			State:     progress.StateFailed,
			LastError: err.Error(),
			Attempts:  totalAttempts,
		}
		if rerr := s.opts.Store.Record(context.WithoutCancel(ctx), row.ID, st); rerr != nil {
			s.fatal(rerr)
			return
		}
		s.failed.Add(1)
		metrics.IncRow("failed")
		log.Error().
			Int("row_id", row.ID).
			Int("attempts", totalAttempts).
			Dur("duration", time.Since(start)).
			Err(err).
			Msg("row failed after retries")
		return
	}

	res := parse.Parse(text)
	now := time.Now().UTC()
	st := progress.RowStatus{
		State:          progress.StateDone,
		Reasoning:      res.Reasoning,
		Classification: res.Classification,
		Degraded:       res.Degraded,
		CompletedAt:    &now,
		Attempts:       totalAttempts,
	}
	// results of draining workers must land even if the run was cancelled
	if rerr := s.opts.Store.Record(context.WithoutCancel(ctx), row.ID, st); rerr != nil {
		s.fatal(rerr)
		return
	}

	s.succeeded.Add(1)
	if res.Degraded {
		s.degraded.Add(1)
		metrics.IncRow("done_degraded")
		log.Warn().
			Int("row_id", row.ID).
			Msg("response did not parse cleanly; kept raw text as reasoning")
	} else {
		metrics.IncRow("done")
	}

	log.Info().
		Int("row_id", row.ID).
		Str("classification", res.Classification).
		Int("attempts", totalAttempts).
		Dur("duration", time.Since(start)).
		Msg("row done")
}
