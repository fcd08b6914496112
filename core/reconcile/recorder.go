package reconcile

import (
	"time"

	"github.com/trezcool/carematrix/core/training"
)

// Recorder receives pipeline measurements.
type Recorder interface {
	RunFinished(dryRun bool, d time.Duration)
	LocationFinished(locationID string, status LocationStatus)
	WritesApplied(locationID string, n int)
	WritesHeld(n int)
	AnomaliesFound(kind training.AnomalyKind, n int)
}

type nopRecorder struct{}

// NopRecorder discards every measurement.
func NopRecorder() Recorder { return nopRecorder{} }

func (nopRecorder) RunFinished(bool, time.Duration) {}
func (nopRecorder) LocationFinished(string, LocationStatus) {}
func (nopRecorder) WritesApplied(string, int) {}
func (nopRecorder) WritesHeld(int) {}
func (nopRecorder) AnomaliesFound(training.AnomalyKind, int) {}
