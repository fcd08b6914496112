package emailsvc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/sendgrid/rest"

	"github.com/trezcool/carematrix/core"
	"github.com/trezcool/carematrix/core/reconcile"
	"github.com/trezcool/carematrix/core/training"
	"github.com/trezcool/carematrix/tests"
)

func testConfig() *core.Config {
	return &core.Config{
		AppName: "CareMatrix",
		Notify: core.NotifyConfig{
			FromEmail:   "Training Desk <training@oak.example>",
			Reviewers:   []string{"qa@oak.example", "not an address"},
			DigestLimit: 1,
		},
	}
}

func runResult() *reconcile.RunResult {
	return &reconcile.RunResult{
		RunID:         "run-1",
		FinishedAt:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		WritesApplied: 3,
		Locations: []reconcile.LocationResult{
			{Input: "OAK", LocationID: "oak", Status: reconcile.StatusReconciled, WritesApplied: 3, Anomalies: 2},
		},
		Anomalies: []training.Anomaly{
			{Kind: training.AnomalyDateConflict, LocationID: "oak", Row: 6, Column: 2, Detail: "15/03/2024 <> 16/03/2024"},
			{Kind: training.AnomalyUnparsedCell, LocationID: "oak", Row: 7, Column: 3, Detail: "unrecognized value"},
		},
	}
}

func TestConsoleService_SendMessages(t *testing.T) {
	var out bytes.Buffer
	conf := testConfig()
	svc := NewConsoleService(conf, &out)

	if err := reconcile.NewReviewNotifier(svc, conf).Notify(runResult()); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	sent := svc.Sent()
	if len(sent) != 1 {
		t.Fatalf("Sent() got %d messages, want 1", len(sent))
	}
	if want := []mail.Address{{Address: "qa@oak.example"}}; len(sent[0].To) != 1 || sent[0].To[0] != want[0] {
		t.Errorf("To = %v, want %v", sent[0].To, want)
	}

	text := sent[0].TextContent
	for _, want := range []string{
		"Reconciliation run run-1 finished",
		"3 writes applied, 0 held, 2 anomalies awaiting review",
		"OAK: reconciled, 3 writes, 2 anomalies",
		"DateConflict: 1",
		"[DateConflict] oak row 6 col 2 15/03/2024 <> 16/03/2024",
		"... and 1 more.",
		"This message was sent by CareMatrix.",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("text content is missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "[UnparsedCell]") {
		t.Error("text content lists anomalies beyond the digest limit")
	}
	if !strings.Contains(sent[0].HTMLContent, "15/03/2024 &lt;&gt; 16/03/2024") {
		t.Errorf("html content is not escaped:\n%s", sent[0].HTMLContent)
	}

	for _, want := range []string{
		`From: "Training Desk" <training@oak.example>`,
		"Subject: [CareMatrix] 2 training anomalies to review",
		"Content-Type: text/html; charset=utf-8",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("console output is missing %q", want)
		}
	}
}

func TestConsoleService_nothingToSend(t *testing.T) {
	conf := testConfig()
	svc := NewConsoleService(conf, nil)
	notifier := reconcile.NewReviewNotifier(svc, conf)

	dry := runResult()
	dry.DryRun = true
	clean := runResult()
	clean.Anomalies = nil

	for _, res := range []*reconcile.RunResult{dry, clean, nil} {
		if err := notifier.Notify(res); err != nil {
			t.Errorf("Notify() error = %v", err)
		}
	}
	conf.Notify.Reviewers = nil
	if err := reconcile.NewReviewNotifier(svc, conf).Notify(runResult()); err != nil {
		t.Errorf("Notify() error = %v", err)
	}
	if n := len(svc.Sent()); n != 0 {
		t.Errorf("Sent() got %d messages, want 0", n)
	}
}

func TestSendgridService_SendMessages(t *testing.T) {
	apiFunc := sendgridAPIFunc
	t.Cleanup(func() { sendgridAPIFunc = apiFunc })

	var requests []rest.Request
	status := http.StatusAccepted
	sendgridAPIFunc = func(req rest.Request) (*rest.Response, error) {
		requests = append(requests, req)
		return &rest.Response{StatusCode: status, Body: "boom"}, nil
	}

	svc := NewSendgridService(testConfig(), testutil.Logger{})
	msg := &core.EmailMessage{
		To:      []mail.Address{{Name: "Quality Lead", Address: "qa@oak.example"}},
		Subject: "hello",
		BodyStr: "plain body",
	}
	if err := svc.SendMessages(msg); err != nil {
		t.Fatalf("SendMessages() error = %v", err)
	}
	if len(requests) != 1 {
		t.Fatalf("got %d requests, want 1", len(requests))
	}

	var body struct {
		From struct {
			Email string `json:"email"`
		} `json:"from"`
		Personalizations []struct {
			Subject string `json:"subject"`
			To      []struct {
				Email string `json:"email"`
			} `json:"to"`
		} `json:"personalizations"`
		Content []struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"content"`
	}
	if err := json.Unmarshal(requests[0].Body, &body); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if body.From.Email != "training@oak.example" || len(body.Personalizations) != 1 ||
		body.Personalizations[0].Subject != "[CareMatrix] hello" || body.Personalizations[0].To[0].Email != "qa@oak.example" {
		t.Errorf("request body = %s", requests[0].Body)
	}
	if len(body.Content) != 1 || body.Content[0].Value != "plain body" {
		t.Errorf("content = %+v, want the plain body only", body.Content)
	}

	// rejected by the API
	status = http.StatusUnauthorized
	if err := svc.SendMessages(msg); err == nil || !strings.Contains(err.Error(), "1 of 1 emails not sent") {
		t.Errorf("SendMessages() error = %v", err)
	}

	// nobody to send to
	if err := svc.SendMessages(&core.EmailMessage{Subject: "nobody", BodyStr: "x"}); err != nil || len(requests) != 2 {
		t.Errorf("SendMessages() without recipients: error = %v, %d requests", err, len(requests))
	}
}
