package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/custodia-app/custodia/internal/audit"
	"github.com/custodia-app/custodia/internal/auth"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeTokenSweep is the task type for removing orphaned session tokens.
	TaskTypeTokenSweep = "auth:sweep_tokens"
	// TaskTypeAuditDigest is the task type for the daily audit-trail digest.
	TaskTypeAuditDigest = "audit:digest"
)

// NewTokenSweepTask constructs an Asynq task for the token sweep.
func NewTokenSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeTokenSweep, nil)
}

// AuditDigestPayload configures the digest window.
type AuditDigestPayload struct {
	WindowHours int `json:"window_hours"`
}

// NewAuditDigestTask constructs an Asynq task for the audit digest.
func NewAuditDigestTask(payload AuditDigestPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAuditDigest, data), nil
}

// TokenSweepJob removes session token keys whose TTL was lost.
type TokenSweepJob struct {
	tokens *auth.TokenManager
	logger *slog.Logger
}

// NewTokenSweepJob constructs a TokenSweepJob.
func NewTokenSweepJob(tokens *auth.TokenManager, logger *slog.Logger) *TokenSweepJob {
	return &TokenSweepJob{tokens: tokens, logger: logger}
}

// Handle processes TaskTypeTokenSweep tasks.
func (j *TokenSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	removed, err := j.tokens.SweepOrphans(ctx)
	if err != nil {
		return err
	}
	if removed > 0 {
		j.logger.Info("token sweep", slog.Int("removed", removed))
	}
	return nil
}

// AuditDigestJob summarizes recent trail activity and writes the summary back
// as a system entry.
type AuditDigestJob struct {
	service  *audit.Service
	recorder audit.Recorder
	logger   *slog.Logger
}

// NewAuditDigestJob constructs an AuditDigestJob.
func NewAuditDigestJob(service *audit.Service, recorder audit.Recorder, logger *slog.Logger) *AuditDigestJob {
	return &AuditDigestJob{service: service, recorder: recorder, logger: logger}
}

// Handle processes TaskTypeAuditDigest tasks.
func (j *AuditDigestJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload AuditDigestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	window := 24
	if payload.WindowHours > 0 {
		window = payload.WindowHours
	}
	from := time.Now().Add(-time.Duration(window) * time.Hour)

	counts := map[string]int{}
	total := 0
	for page := 1; ; page++ {
		result, err := j.service.List(ctx, audit.Filters{From: from, Page: page, PageSize: 100})
		if err != nil {
			return err
		}
		for _, entry := range result.Rows {
			counts[entry.Action]++
			total++
		}
		if !result.Paging.HasNext {
			break
		}
	}

	detail := map[string]any{
		"ventana_horas": window,
		"total":         total,
	}
	for action, n := range counts {
		detail[action] = n
	}
	entry := audit.Entry{
		Action: audit.ActionInsert,
		Table:  "auditoria",
		Detail: detail,
	}
	if err := j.recorder.Record(ctx, entry); err != nil {
		return err
	}
	j.logger.Info("audit digest", slog.Int("entries", total), slog.Int("window_hours", window))
	return nil
}
