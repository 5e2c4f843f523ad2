package moderation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"whiteboardAPI/internal/apperr"
	"whiteboardAPI/internal/metrics"
	"whiteboardAPI/internal/types/element"
	"whiteboardAPI/internal/types/policy"
)

// Source is the element store the engine reads from and writes verdicts into.
type Source interface {
	Get(id string) (element.Element, error)
	ListAll() []element.Element
	CompareAndSetModeration(id string, epoch int64, status element.ModerationStatus, reason element.ModerationReason) (element.Element, bool, error)
	ForceModeration(id string, status element.ModerationStatus, reason element.ModerationReason) (element.Element, error)
}

const (
	SourceAuto   = "auto"
	SourceManual = "manual"
)

// Decision is an applied moderation change, delivered to the OnDecision hook.
type Decision struct {
	Element element.Element
	Source  string
	Term    string
}

type Options struct {
	Workers    int
	QueueSize  int
	Timeout    time.Duration
	Classifier Classifier
	OnDecision func(Decision)
}

// Outcome is what happened to one element in a moderation pass.
type Outcome uint8

const (
	OutcomeUnchanged Outcome = iota
	OutcomeApplied
	OutcomeDiscarded
	OutcomeFailed
)

// Summary counts the outcomes of ModerateAllPending.
type Summary struct {
	Processed int `json:"processed"`
	Approved  int `json:"approved"`
	Flagged   int `json:"flagged"`
	Rejected  int `json:"rejected"`
	Pending   int `json:"pending"`
	Failed    int `json:"failed"`
	Discarded int `json:"discarded"`
}

type job struct {
	el  element.Element
	cfg policy.Config
}

type result struct {
	id      string
	epoch   int64
	verdict Verdict
	err     error
}

// Engine classifies elements off the caller's goroutine. Workers classify,
// and a single applier goroutine writes verdicts back with compare-and-set,
// so a reviewer's manual action or a text edit always beats a verdict computed
// for an older moderation epoch of the element.
type Engine struct {
	source     Source
	classifier Classifier
	log        *zap.Logger
	onDecision func(Decision)
	timeout    time.Duration

	jobs    chan job
	results chan result
	wg      sync.WaitGroup
	applied chan struct{}

	mu      sync.RWMutex
	stopped bool
}

func NewEngine(source Source, log *zap.Logger, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Classifier == nil {
		opts.Classifier = Heuristic{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	e := &Engine{
		source:     source,
		classifier: opts.Classifier,
		log:        log.With(zap.String("module", "moderation")),
		onDecision: opts.OnDecision,
		timeout:    opts.Timeout,
		jobs:       make(chan job, opts.QueueSize),
		results:    make(chan result, opts.QueueSize),
		applied:    make(chan struct{}),
	}

	for i := 0; i < opts.Workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	go e.applier()
	return e
}

// Schedule queues el for classification and returns immediately. When the
// queue is full the element simply stays Pending until the next sweep.
func (e *Engine) Schedule(el element.Element, cfg policy.Config) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		return
	}

	select {
	case e.jobs <- job{el: el, cfg: cfg}:
	default:
		metrics.ModerationQueueDropped.Inc()
		e.log.Warn("moderation queue full, leaving element pending", zap.String("element_id", el.ID))
	}
}

// Approve is the reviewer override to Approved. Repeating it only refreshes updatedAt.
func (e *Engine) Approve(id string) (element.Element, error) {
	el, err := e.source.ForceModeration(id, element.StatusApproved, element.ReasonNone)
	if err != nil {
		return element.Element{}, fmt.Errorf("approve %s: %w", id, err)
	}
	e.decided(Decision{Element: el, Source: SourceManual})
	return el, nil
}

// Reject is the reviewer override to Rejected. A missing reason is recorded as Other.
func (e *Engine) Reject(id string, reason element.ModerationReason) (element.Element, error) {
	if reason == element.ReasonNone {
		reason = element.ReasonOther
	}
	el, err := e.source.ForceModeration(id, element.StatusRejected, reason)
	if err != nil {
		return element.Element{}, fmt.Errorf("reject %s: %w", id, err)
	}
	e.decided(Decision{Element: el, Source: SourceManual})
	return el, nil
}

// ModerateAllPending classifies every Pending element in creation order on the
// calling goroutine. Elements that leave Pending meanwhile are not touched.
func (e *Engine) ModerateAllPending(ctx context.Context, cfg policy.Config) (Summary, error) {
	var sum Summary
	for _, el := range e.source.ListAll() {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if el.ModerationStatus != element.StatusPending {
			continue
		}
		sum.Processed++

		res := e.classify(job{el: el, cfg: cfg})
		switch e.apply(res) {
		case OutcomeApplied:
			switch res.verdict.Status {
			case element.StatusApproved:
				sum.Approved++
			case element.StatusFlagged:
				sum.Flagged++
			case element.StatusRejected:
				sum.Rejected++
			case element.StatusPending, element.StatusUnmoderated:
			}
		case OutcomeUnchanged:
			sum.Pending++
		case OutcomeFailed:
			sum.Failed++
		case OutcomeDiscarded:
			sum.Discarded++
		}
	}
	return sum, nil
}

// RunSweeper re-runs ModerateAllPending every interval until ctx is done. It
// picks up elements whose job was dropped or whose classification failed.
func (e *Engine) RunSweeper(ctx context.Context, every time.Duration, cfg func() policy.Config) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sum, err := e.ModerateAllPending(ctx, cfg())
			if err != nil && !errors.Is(err, context.Canceled) {
				e.log.Warn("moderation sweep interrupted", zap.Error(err))
			}
			if sum.Processed > 0 {
				e.log.Info("moderation sweep finished",
					zap.Int("processed", sum.Processed),
					zap.Int("approved", sum.Approved),
					zap.Int("flagged", sum.Flagged),
					zap.Int("failed", sum.Failed),
				)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Stop drains queued jobs, applies their verdicts and shuts the engine down.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.jobs)
	e.mu.Unlock()

	e.wg.Wait()
	close(e.results)
	<-e.applied
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for j := range e.jobs {
		e.results <- e.classify(j)
	}
}

func (e *Engine) applier() {
	defer close(e.applied)
	for r := range e.results {
		e.apply(r)
	}
}

func (e *Engine) classify(j job) result {
	start := time.Now()
	defer func() { metrics.ClassificationDuration.Observe(time.Since(start).Seconds()) }()

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	type outcome struct {
		verdict Verdict
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("classifier panic: %v", r)}
			}
		}()
		v, err := e.classifier.Classify(ctx, j.el, j.cfg)
		done <- outcome{verdict: v, err: err}
	}()

	res := result{id: j.el.ID, epoch: j.el.ModerationEpoch}
	select {
	case o := <-done:
		res.verdict, res.err = o.verdict, o.err
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	if res.err != nil {
		res.err = fmt.Errorf("%w: %v", apperr.ErrClassificationFailure, res.err)
	}
	return res
}

func (e *Engine) apply(r result) Outcome {
	if r.err != nil {
		metrics.ModerationFailures.Inc()
		e.log.Warn("classification failed, element left pending for manual review",
			zap.String("element_id", r.id), zap.Error(r.err))
		return OutcomeFailed
	}
	if !r.verdict.Terminal() {
		return OutcomeUnchanged
	}

	el, ok, err := e.source.CompareAndSetModeration(r.id, r.epoch, r.verdict.Status, r.verdict.Reason)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return OutcomeDiscarded
		}
		e.log.Error("failed to apply moderation verdict", zap.String("element_id", r.id), zap.Error(err))
		return OutcomeFailed
	}
	if !ok {
		metrics.ModerationDiscarded.Inc()
		e.log.Debug("verdict discarded, moderation state changed during classification",
			zap.String("element_id", r.id),
			zap.Int64("classified_epoch", r.epoch),
			zap.Int64("current_epoch", el.ModerationEpoch),
		)
		return OutcomeDiscarded
	}

	e.decided(Decision{Element: el, Source: SourceAuto, Term: r.verdict.Term})
	return OutcomeApplied
}

func (e *Engine) decided(d Decision) {
	metrics.ModerationDecisions.WithLabelValues(
		d.Element.ModerationStatus.String(), d.Element.ModerationReason.String(), d.Source,
	).Inc()
	if e.onDecision != nil {
		e.onDecision(d)
	}
}
