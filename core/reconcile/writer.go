package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/trezcool/carematrix/core"
	"github.com/trezcool/carematrix/core/training"
)

// Write kinds
const (
	// WriteUpsert goes through the conditional upsert.
	WriteUpsert WriteKind = iota + 1
	// WriteExpiry only rewrites the expiry of an existing record.
	WriteExpiry
)

type WriteKind int

// Write is one decided change to a TrainingRecord.
type Write struct {
	Kind   WriteKind
	Record training.TrainingRecord
	Reason string

	// source cell, zero for re-derivations
	StaffName  string
	CourseName string
	Row        int
	Column     int
}

// writer issues independent writes concurrently, paced and bounded, retrying
// transient failures. Writes that still fail are reported, never returned as errors.
type writer struct {
	store       training.RecordStore
	logger      core.Logger
	limiter     *rate.Limiter // nil: unpaced
	concurrency int
	retries     int
	backoff     time.Duration
}

func newWriter(store training.RecordStore, logger core.Logger, opts Options) *writer {
	w := &writer{
		store:       store,
		logger:      logger,
		concurrency: opts.WriteConcurrency,
		retries:     opts.WriteRetries,
		backoff:     opts.RetryBackoff,
	}
	if w.concurrency < 1 {
		w.concurrency = 1
	}
	if opts.WritesPerSecond > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(opts.WritesPerSecond), w.concurrency)
	}
	return w
}

// apply returns the number of writes applied and one anomaly per write that was not.
// Anomalies come back in the order of writes.
func (w *writer) apply(ctx context.Context, locationID string, writes []Write) (int, []training.Anomaly) {
	errs := make([]error, len(writes))

	var g errgroup.Group
	g.SetLimit(w.concurrency)
	for i := range writes {
		i := i
		g.Go(func() error {
			errs[i] = w.write(ctx, writes[i])
			return nil
		})
	}
	_ = g.Wait()

	var (
		applied   int
		anomalies []training.Anomaly
	)
	for i, err := range errs {
		if err == nil {
			applied++
			continue
		}
		wr := writes[i]
		a := training.Anomaly{
			LocationID: locationID,
			StaffID:    wr.Record.StaffID,
			CourseID:   wr.Record.CourseID,
			StaffName:  wr.StaffName,
			CourseName: wr.CourseName,
			Row:        wr.Row,
			Column:     wr.Column,
		}
		if a.LocationID == "" {
			a.LocationID = wr.Record.LocationID
		}
		if errors.Is(err, training.ErrWriteConflict) {
			a.Kind = training.AnomalyDateConflict
			a.Detail = fmt.Sprintf("%s not applied: the stored record changed since it was read", wr.Reason)
		} else {
			a.Kind = training.AnomalyWriteFailure
			a.Detail = fmt.Sprintf("%s not applied after %d attempts: %v", wr.Reason, w.retries+1, err)
		}
		anomalies = append(anomalies, a)
	}
	return applied, anomalies
}

func (w *writer) write(ctx context.Context, wr Write) error {
	for attempt := 0; ; attempt++ {
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		err := w.do(ctx, wr)
		if err == nil || errors.Is(err, training.ErrWriteConflict) || attempt >= w.retries {
			return err
		}
		w.logger.Warn("retrying training record write", map[string]interface{}{
			"key":     wr.Record.Key.String(),
			"attempt": attempt + 1,
			"error":   err.Error(),
		})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.backoff * time.Duration(attempt+1)):
		}
	}
}

func (w *writer) do(ctx context.Context, wr Write) error {
	switch wr.Kind {
	case WriteExpiry:
		return w.store.UpdateExpiry(ctx, wr.Record.Key, wr.Record.CompletionDate, wr.Record.ExpiryDate)
	default:
		return w.store.UpsertRecord(ctx, wr.Record)
	}
}
