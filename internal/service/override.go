package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tophand/backend/internal/metrics"
	"github.com/tophand/backend/internal/models"
	"github.com/tophand/backend/internal/ports"
)

const (
	DefaultSLASeconds       = 30
	NotificationKitOverride = "kit_override"
)

type OverrideParams struct {
	TenantID     string `json:"-"`
	JobID        string `json:"job_id" validate:"required"`
	KitID        string `json:"kit_id" validate:"required"`
	ItemID       string `json:"item_id" validate:"required"`
	TechnicianID string `json:"technician_id" validate:"required"`
	SupervisorID string `json:"supervisor_id" validate:"required"`
	Reason       string `json:"override_reason" validate:"required"`
	Priority     string `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	SLASeconds   int    `json:"sla_seconds" validate:"gte=0"`
}

type VoiceOverrideParams struct {
	OverrideParams
	SessionID  string  `json:"voice_session_id" validate:"required"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
	Transcript string  `json:"transcript"`
}

// OverrideWorkflow records kit override exceptions and escalates each one to
// the supervisor. The log row is written before any delivery attempt and the
// notification outcome is attached once escalation resolves.
type OverrideWorkflow struct {
	Store      ports.OverrideStore
	Audit      ports.AuditSink
	Notifier   Notifier
	Logger     zerolog.Logger
	Metrics    metrics.Recorder
	SLASeconds int

	now func() time.Time
}

func NewOverrideWorkflow(store ports.OverrideStore, audit ports.AuditSink, notifier Notifier, logger zerolog.Logger, rec metrics.Recorder, slaSeconds int) *OverrideWorkflow {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if slaSeconds <= 0 {
		slaSeconds = DefaultSLASeconds
	}
	return &OverrideWorkflow{
		Store:      store,
		Audit:      audit,
		Notifier:   notifier,
		Logger:     logger,
		Metrics:    rec,
		SLASeconds: slaSeconds,
		now:        time.Now,
	}
}

func (w *OverrideWorkflow) CreateOverride(ctx context.Context, p OverrideParams) (models.OverrideLog, error) {
	if err := checkStruct(p); err != nil {
		return models.OverrideLog{}, err
	}
	return w.create(ctx, p, nil)
}

func (w *OverrideWorkflow) CreateOverrideFromVoice(ctx context.Context, p VoiceOverrideParams) (models.OverrideLog, error) {
	if err := checkStruct(p); err != nil {
		return models.OverrideLog{}, err
	}
	return w.create(ctx, p.OverrideParams, &models.VoiceMetadata{
		SessionID:  p.SessionID,
		Confidence: p.Confidence,
		Transcript: p.Transcript,
	})
}

func (w *OverrideWorkflow) GetOverride(ctx context.Context, id string) (models.OverrideLog, error) {
	return w.Store.GetOverrideLog(ctx, id)
}

func (w *OverrideWorkflow) create(ctx context.Context, p OverrideParams, voice *models.VoiceMetadata) (models.OverrideLog, error) {
	if p.Priority == "" {
		p.Priority = models.PriorityHigh
	}
	if p.SLASeconds <= 0 {
		p.SLASeconds = w.SLASeconds
	}
	log := models.OverrideLog{
		ID:             uuid.NewString(),
		TenantID:       p.TenantID,
		JobID:          p.JobID,
		KitID:          p.KitID,
		ItemID:         p.ItemID,
		TechnicianID:   p.TechnicianID,
		SupervisorID:   p.SupervisorID,
		OverrideReason: p.Reason,
		Priority:       p.Priority,
		CreatedAt:      w.now().UTC(),
		Attempts:       []models.NotificationAttempt{},
		SLASeconds:     p.SLASeconds,
		VoiceInitiated: voice != nil,
		Voice:          voice,
	}
	if err := w.Store.InsertOverrideLog(ctx, log); err != nil {
		return models.OverrideLog{}, fmt.Errorf("insert override log: %w", err)
	}
	if w.Audit != nil {
		err := w.Audit.Record(ctx, models.AuditEntry{
			ID:         uuid.NewString(),
			TenantID:   log.TenantID,
			Action:     "kit_override.created",
			ActorID:    log.TechnicianID,
			EntityType: "kit_override",
			EntityID:   log.ID,
			Metadata: map[string]any{
				"job_id":          log.JobID,
				"kit_id":          log.KitID,
				"item_id":         log.ItemID,
				"supervisor_id":   log.SupervisorID,
				"override_reason": log.OverrideReason,
				"voice_initiated": log.VoiceInitiated,
			},
			CreatedAt: log.CreatedAt,
		})
		if err != nil {
			return models.OverrideLog{}, fmt.Errorf("audit override: %w", err)
		}
	}

	message := OverrideMessage(log)
	if voice != nil {
		message = "Voice command: " + message
	}
	res := w.Notifier.Escalate(ctx, log.SupervisorID, models.Notification{
		Type:     NotificationKitOverride,
		Priority: log.Priority,
		Title:    "Kit override requires review",
		Message:  message,
		Data: map[string]any{
			"override_id":   log.ID,
			"job_id":        log.JobID,
			"kit_id":        log.KitID,
			"item_id":       log.ItemID,
			"technician_id": log.TechnicianID,
		},
	})

	resolved := w.now().UTC()
	log.NotificationMethod = res.Method
	log.NotificationStatus = res.Status
	log.Attempts = res.Attempts
	log.LatencyMs = res.LatencyMs()
	log.SLAMet = SLAMet(log.LatencyMs, log.SLASeconds)
	log.ResolvedAt = &resolved

	if !log.SLAMet {
		w.Metrics.SLABreach()
		w.Logger.Warn().
			Str("override_id", log.ID).
			Int64("latency_ms", log.LatencyMs).
			Int("sla_seconds", log.SLASeconds).
			Msg("override notification missed SLA")
	}
	// The override itself is committed; losing the outcome update is logged
	// rather than surfaced as a failed override.
	if err := w.Store.UpdateOverrideNotification(ctx, log); err != nil {
		w.Logger.Error().Err(err).Str("override_id", log.ID).Msg("persist notification outcome failed")
	}
	if w.Audit != nil {
		err := w.Audit.Record(ctx, models.AuditEntry{
			ID:         uuid.NewString(),
			TenantID:   log.TenantID,
			Action:     "kit_override.notification_resolved",
			ActorID:    log.TechnicianID,
			EntityType: "kit_override",
			EntityID:   log.ID,
			Metadata: map[string]any{
				"method":     log.NotificationMethod,
				"status":     log.NotificationStatus,
				"attempts":   len(log.Attempts),
				"latency_ms": log.LatencyMs,
				"sla_met":    log.SLAMet,
			},
			CreatedAt: resolved,
		})
		if err != nil {
			w.Logger.Error().Err(err).Str("override_id", log.ID).Msg("audit write failed")
		}
	}
	w.Logger.Info().
		Str("override_id", log.ID).
		Str("job_id", log.JobID).
		Str("item_id", log.ItemID).
		Str("method", log.NotificationMethod).
		Str("status", log.NotificationStatus).
		Bool("sla_met", log.SLAMet).
		Bool("voice", log.VoiceInitiated).
		Msg("kit override recorded")
	return log, nil
}

// OverrideMessage is the supervisor-facing text for an override.
func OverrideMessage(log models.OverrideLog) string {
	return fmt.Sprintf("Technician %s is proceeding on job %s without %s from kit %s. Reason: %s",
		log.TechnicianID, log.JobID, log.ItemID, log.KitID, log.OverrideReason)
}

// SLAMet reports whether a delivery latency is within the SLA. The bound is
// inclusive.
func SLAMet(latencyMs int64, slaSeconds int) bool {
	return latencyMs <= int64(slaSeconds)*1000
}
