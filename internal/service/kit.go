package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tophand/backend/internal/apperr"
	"github.com/tophand/backend/internal/metrics"
	"github.com/tophand/backend/internal/models"
	"github.com/tophand/backend/internal/ports"
)

type VerifyKitRequest struct {
	TenantID        string                  `json:"-"`
	JobID           string                  `json:"job_id" validate:"required"`
	KitID           string                  `json:"kit_id" validate:"required"`
	VerifiedBy      string                  `json:"verified_by" validate:"required"`
	Method          string                  `json:"verification_method" validate:"omitempty,oneof=manual automated"`
	Checklist       []models.ChecklistEntry `json:"checklist" validate:"required,min=1,dive"`
	OverrideMissing bool                    `json:"override_missing"`
	SupervisorID    string                  `json:"supervisor_id"`
	Priority        string                  `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
}

// Overrider creates a single kit override. *OverrideWorkflow satisfies it.
type Overrider interface {
	CreateOverride(ctx context.Context, p OverrideParams) (models.OverrideLog, error)
}

type KitVerificationCoordinator struct {
	Kits      ports.KitStore
	Overrides Overrider
	Audit     ports.AuditSink
	Logger    zerolog.Logger
	Metrics   metrics.Recorder

	now func() time.Time
}

func NewKitVerificationCoordinator(kits ports.KitStore, overrides Overrider, audit ports.AuditSink, logger zerolog.Logger, rec metrics.Recorder) *KitVerificationCoordinator {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &KitVerificationCoordinator{
		Kits:      kits,
		Overrides: overrides,
		Audit:     audit,
		Logger:    logger,
		Metrics:   rec,
		now:       time.Now,
	}
}

// VerifyKit checks a technician's checklist against the kit definition. A
// required item that is missing or damaged blocks the job unless the caller
// overrides it, in which case one override is recorded per such item before
// the verification is stored.
func (k *KitVerificationCoordinator) VerifyKit(ctx context.Context, req VerifyKitRequest) (models.KitVerification, error) {
	if err := checkStruct(req); err != nil {
		return models.KitVerification{}, err
	}
	if req.OverrideMissing && req.SupervisorID == "" {
		return models.KitVerification{}, apperr.Invalid("supervisor_id", "is required when override_missing is set")
	}

	kit, err := k.Kits.GetKit(ctx, req.KitID)
	if err != nil {
		return models.KitVerification{}, err
	}
	if req.TenantID != "" && kit.TenantID != "" && kit.TenantID != req.TenantID {
		return models.KitVerification{}, apperr.NotFound("kit", req.KitID)
	}

	items := make(map[string]models.KitItem, len(kit.Items))
	for _, it := range kit.Items {
		items[it.ItemID] = it
	}
	seen := make(map[string]struct{}, len(req.Checklist))
	results := make([]models.ChecklistResult, 0, len(req.Checklist))
	var (
		missing      []string
		needOverride []int
	)
	for _, entry := range req.Checklist {
		item, ok := items[entry.ItemID]
		if !ok {
			return models.KitVerification{}, apperr.NotFound("kit item", entry.ItemID)
		}
		if _, dup := seen[entry.ItemID]; dup {
			return models.KitVerification{}, apperr.Invalid("checklist", fmt.Sprintf("item %s listed twice", entry.ItemID))
		}
		seen[entry.ItemID] = struct{}{}

		results = append(results, models.ChecklistResult{
			ItemID:     entry.ItemID,
			Status:     entry.Status,
			IsRequired: item.IsRequired,
		})
		if entry.Status == models.ItemPresent {
			continue
		}
		missing = append(missing, entry.ItemID)
		if item.IsRequired {
			needOverride = append(needOverride, len(results)-1)
		}
	}
	for _, it := range kit.Items {
		if _, ok := seen[it.ItemID]; it.IsRequired && !ok {
			return models.KitVerification{}, apperr.Invalid("checklist", fmt.Sprintf("required item %s not checked", it.ItemID))
		}
	}

	if len(needOverride) > 0 && !req.OverrideMissing {
		ids := make([]string, 0, len(needOverride))
		for _, i := range needOverride {
			ids = append(ids, results[i].ItemID)
		}
		k.Logger.Warn().Str("job_id", req.JobID).Strs("items", ids).Msg("kit verification blocked")
		return models.KitVerification{}, &apperr.MissingRequiredItemError{ItemIDs: ids}
	}
	reasons := make(map[string]string, len(req.Checklist))
	for _, entry := range req.Checklist {
		reasons[entry.ItemID] = entry.OverrideReason
	}
	for _, i := range needOverride {
		if reasons[results[i].ItemID] == "" {
			return models.KitVerification{}, apperr.Invalid("override_reason", fmt.Sprintf("is required for item %s", results[i].ItemID))
		}
	}

	var overrideIDs []string
	for _, i := range needOverride {
		log, err := k.Overrides.CreateOverride(ctx, OverrideParams{
			TenantID:     req.TenantID,
			JobID:        req.JobID,
			KitID:        req.KitID,
			ItemID:       results[i].ItemID,
			TechnicianID: req.VerifiedBy,
			SupervisorID: req.SupervisorID,
			Reason:       reasons[results[i].ItemID],
			Priority:     req.Priority,
		})
		if err != nil {
			return models.KitVerification{}, fmt.Errorf("override %s: %w", results[i].ItemID, err)
		}
		id := log.ID
		results[i].OverrideID = &id
		overrideIDs = append(overrideIDs, id)
	}

	method := req.Method
	if method == "" {
		method = "manual"
	}
	status := models.VerificationComplete
	if len(overrideIDs) > 0 {
		status = models.VerificationPartial
	}
	v := models.KitVerification{
		ID:           uuid.NewString(),
		TenantID:     req.TenantID,
		JobID:        req.JobID,
		KitID:        req.KitID,
		VerifiedBy:   req.VerifiedBy,
		Method:       method,
		Checklist:    results,
		Status:       status,
		MissingItems: nonNilStrings(missing),
		OverrideIDs:  nonNilStrings(overrideIDs),
		HasOverrides: len(overrideIDs) > 0,
		CreatedAt:    k.now().UTC(),
	}
	if err := k.Kits.InsertKitVerification(ctx, v); err != nil {
		return models.KitVerification{}, fmt.Errorf("insert kit verification: %w", err)
	}
	k.Metrics.KitVerification(string(status))
	if k.Audit != nil {
		err := k.Audit.Record(ctx, models.AuditEntry{
			ID:         uuid.NewString(),
			TenantID:   v.TenantID,
			Action:     "kit_verification.created",
			ActorID:    v.VerifiedBy,
			EntityType: "kit_verification",
			EntityID:   v.ID,
			Metadata: map[string]any{
				"job_id":        v.JobID,
				"kit_id":        v.KitID,
				"status":        string(v.Status),
				"missing_items": v.MissingItems,
				"override_ids":  v.OverrideIDs,
			},
			CreatedAt: v.CreatedAt,
		})
		if err != nil {
			k.Logger.Error().Err(err).Str("verification_id", v.ID).Msg("audit write failed")
		}
	}
	return v, nil
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
