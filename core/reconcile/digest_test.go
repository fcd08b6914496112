package reconcile

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/trezcool/carematrix/core"
	"github.com/trezcool/carematrix/core/training"
	"github.com/trezcool/carematrix/tests"
)

type mailbox struct {
	messages []*core.EmailMessage
	err      error
}

func (m *mailbox) SendMessages(messages ...*core.EmailMessage) error {
	m.messages = append(m.messages, messages...)
	return m.err
}

func notifyConfig(limit int, reviewers ...string) *core.Config {
	return &core.Config{
		AppName: "CareMatrix",
		Notify:  core.NotifyConfig{Reviewers: reviewers, DigestLimit: limit},
	}
}

func TestReviewNotifier_Digest(t *testing.T) {
	anomalies := []training.Anomaly{
		{Kind: training.AnomalyUnparsedCell},
		{Kind: training.AnomalyDateConflict},
		{Kind: training.AnomalyDateConflict},
		{Kind: training.AnomalyInvalidDate},
	}
	res := &RunResult{RunID: "r1", WritesApplied: 2, Anomalies: anomalies}
	n := NewReviewNotifier(&mailbox{}, notifyConfig(3, "qa@oak.example"))

	msg := n.Digest(res)
	if msg == nil {
		t.Fatal("Digest() = nil, want a message")
	}
	if msg.Subject != "4 training anomalies to review" || msg.TemplateName != "anomaly_digest" || len(msg.To) != 1 {
		t.Errorf("Digest() = %+v", msg)
	}
	data := msg.TemplateData.(digestData)
	if len(data.Anomalies) != 3 || data.More != 1 || data.Total != 4 {
		t.Errorf("digest lists %d anomalies, %d more of %d", len(data.Anomalies), data.More, data.Total)
	}
	wantCounts := []kindCount{
		{Kind: training.AnomalyDateConflict, Count: 2},
		{Kind: training.AnomalyUnparsedCell, Count: 1},
		{Kind: training.AnomalyInvalidDate, Count: 1},
	}
	if diff := cmp.Diff(wantCounts, data.Counts); diff != "" {
		t.Errorf("kind counts mismatch (-want +got):\n%s", diff)
	}

	dry := *res
	dry.DryRun = true
	clean := *res
	clean.Anomalies = nil
	var nilNotifier *ReviewNotifier

	tests := []struct {
		name string
		n    *ReviewNotifier
		res  *RunResult
	}{
		{name: "dry run", n: n, res: &dry},
		{name: "no anomalies", n: n, res: &clean},
		{name: "no result", n: n},
		{name: "no reviewers", n: NewReviewNotifier(&mailbox{}, notifyConfig(3, "not an address")), res: res},
		{name: "nil notifier", n: nilNotifier, res: res},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if msg := tt.n.Digest(tt.res); msg != nil {
				t.Errorf("Digest() = %+v, want nil", msg)
			}
		})
	}
}

func TestReviewNotifier_Notify(t *testing.T) {
	box := &mailbox{err: errors.New("smtp down")}
	n := NewReviewNotifier(box, notifyConfig(10, "qa@oak.example"))

	err := n.Notify(&RunResult{Anomalies: []training.Anomaly{{Kind: training.AnomalySkippedRow}}})
	if err == nil || errors.Cause(err) != box.err {
		t.Errorf("Notify() error = %v, want %v", err, box.err)
	}
	if err = n.Notify(&RunResult{}); err != nil || len(box.messages) != 1 {
		t.Errorf("Notify() without anomalies: error = %v, %d messages sent", err, len(box.messages))
	}
}

func TestPipeline_Run_notifiesReviewers(t *testing.T) {
	ctx := context.Background()
	box := &mailbox{}
	p := NewPipeline(newTestStore(t), testutil.Logger{}, nil, testConfig()).
		NotifyReviewers(NewReviewNotifier(box, notifyConfig(10, "qa@oak.example")))
	inputs := []MatrixInput{
		{Location: "oak", Grid: oakGrid()},
		{Location: "elm", Grid: elmGrid("2 years")},
	}

	if _, err := p.Run(ctx, inputs, RunOptions{DryRun: true}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(box.messages) != 0 {
		t.Fatalf("dry run sent %d digests, want 0", len(box.messages))
	}

	res, err := p.Run(ctx, inputs, RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(box.messages) != 1 {
		t.Fatalf("Run() sent %d digests, want 1", len(box.messages))
	}
	data := box.messages[0].TemplateData.(digestData)
	if data.RunID != res.RunID || data.Total != len(res.Anomalies) || countKind(data.Anomalies, training.AnomalyConflictingValidityPeriod) == 0 {
		t.Errorf("digest = %+v, want the conflicting validity of run %s", data, res.RunID)
	}

	// a failing mail service does not fail the run
	box.err = errors.New("smtp down")
	if _, err = p.Run(ctx, inputs, RunOptions{}); err != nil {
		t.Errorf("Run() error = %v, want nil", err)
	}
}
