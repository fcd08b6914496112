package reconcile

import (
	"fmt"
	"net/mail"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/carematrix/core"
	"github.com/trezcool/carematrix/core/training"
)

const digestTemplate = "anomaly_digest"

type (
	kindCount struct {
		Kind  training.AnomalyKind
		Count int
	}

	digestData struct {
		AppName       string
		RunID         string
		FinishedAt    string
		WritesApplied int
		Held          int
		Total         int
		Locations     []LocationResult
		Counts        []kindCount
		Anomalies     []training.Anomaly
		More          int
	}
)

// ReviewNotifier emails reviewers a digest of the anomalies a run left for review.
type ReviewNotifier struct {
	mail      core.EmailService
	reviewers []mail.Address
	appName   string
	limit     int
}

func NewReviewNotifier(svc core.EmailService, conf *core.Config) *ReviewNotifier {
	return &ReviewNotifier{
		mail:      svc,
		reviewers: conf.Notify.ReviewerAddresses(),
		appName:   conf.AppName,
		limit:     conf.Notify.DigestLimit,
	}
}

// Notify sends the digest of res. Dry runs, runs without anomalies and a notifier
// without reviewers send nothing.
func (n *ReviewNotifier) Notify(res *RunResult) error {
	msg := n.Digest(res)
	if msg == nil {
		return nil
	}
	if err := n.mail.SendMessages(msg); err != nil {
		return errors.Wrap(err, "sending anomaly digest")
	}
	return nil
}

// Digest builds the digest email of res, or nil when there is nothing to send.
func (n *ReviewNotifier) Digest(res *RunResult) *core.EmailMessage {
	if n == nil || len(n.reviewers) == 0 || res == nil || res.DryRun || len(res.Anomalies) == 0 {
		return nil
	}

	data := digestData{
		AppName:       n.appName,
		RunID:         res.RunID,
		FinishedAt:    res.FinishedAt.UTC().Format(time.RFC1123),
		WritesApplied: res.WritesApplied,
		Held:          res.Held,
		Total:         len(res.Anomalies),
		Locations:     res.Locations,
		Counts:        countKinds(res.Anomalies),
		Anomalies:     res.Anomalies,
	}
	if n.limit > 0 && len(data.Anomalies) > n.limit {
		data.Anomalies = data.Anomalies[:n.limit]
		data.More = data.Total - n.limit
	}

	return &core.EmailMessage{
		To:           n.reviewers,
		Subject:      fmt.Sprintf("%d training anomalies to review", data.Total),
		TemplateName: digestTemplate,
		TemplateData: data,
	}
}

// countKinds counts anomalies per kind, most frequent first.
func countKinds(anomalies []training.Anomaly) []kindCount {
	idx := make(map[training.AnomalyKind]int)
	var counts []kindCount
	for _, a := range anomalies {
		i, ok := idx[a.Kind]
		if !ok {
			i = len(counts)
			idx[a.Kind] = i
			counts = append(counts, kindCount{Kind: a.Kind})
		}
		counts[i].Count++
	}
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].Count > counts[j].Count })
	return counts
}
