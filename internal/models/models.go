package models

import "time"

type EventType string

const (
	EventJob    EventType = "job"
	EventBreak  EventType = "break"
	EventTravel EventType = "travel"
)

type DayPlan struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	TechnicianID string          `json:"technician_id"`
	PlanDate     time.Time       `json:"plan_date"`
	Events       []ScheduleEvent `json:"events"`
	Route        *RouteSummary   `json:"route_summary,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type RouteSummary struct {
	DistanceKm      float64 `json:"distance_km"`
	DurationMinutes int     `json:"duration_minutes"`
	StopCount       int     `json:"stop_count"`
}

type ScheduleEvent struct {
	ID              string     `json:"id"`
	DayPlanID       string     `json:"day_plan_id"`
	EventType       EventType  `json:"event_type" validate:"required,oneof=job break travel"`
	SequenceOrder   int        `json:"sequence_order" validate:"gte=0"`
	ScheduledStart  *time.Time `json:"scheduled_start,omitempty"`
	DurationMinutes int        `json:"duration_minutes" validate:"gte=0"`
	JobID           *string    `json:"job_id,omitempty"`
	Address         string     `json:"address,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type CrewRole string

const (
	CrewLead   CrewRole = "lead"
	CrewHelper CrewRole = "helper"
)

type CrewAssignment struct {
	ID              string    `json:"id"`
	ScheduleEventID string    `json:"schedule_event_id"`
	TechnicianID    string    `json:"technician_id"`
	Role            CrewRole  `json:"role"`
	VoiceConfirmed  bool      `json:"voice_confirmed"`
	AssignedAt      time.Time `json:"assigned_at"`
}

type Kit struct {
	ID       string    `json:"id"`
	TenantID string    `json:"tenant_id"`
	Name     string    `json:"name"`
	Items    []KitItem `json:"items"`
}

type KitItem struct {
	ItemID     string `json:"item_id"`
	Quantity   int    `json:"quantity"`
	IsRequired bool   `json:"is_required"`
}

type ItemStatus string

const (
	ItemPresent ItemStatus = "present"
	ItemMissing ItemStatus = "missing"
	ItemDamaged ItemStatus = "damaged"
)

type ChecklistEntry struct {
	ItemID         string     `json:"item_id" validate:"required"`
	Status         ItemStatus `json:"status" validate:"required,oneof=present missing damaged"`
	OverrideReason string     `json:"override_reason,omitempty"`
}

type ChecklistResult struct {
	ItemID     string     `json:"item_id"`
	Status     ItemStatus `json:"status"`
	IsRequired bool       `json:"is_required"`
	OverrideID *string    `json:"override_id,omitempty"`
}

type VerificationStatus string

const (
	VerificationComplete VerificationStatus = "complete"
	VerificationPartial  VerificationStatus = "partial"
)

type KitVerification struct {
	ID           string             `json:"id"`
	TenantID     string             `json:"tenant_id"`
	JobID        string             `json:"job_id"`
	KitID        string             `json:"kit_id"`
	VerifiedBy   string             `json:"verified_by"`
	Method       string             `json:"verification_method"`
	Checklist    []ChecklistResult  `json:"checklist"`
	Status       VerificationStatus `json:"verification_status"`
	MissingItems []string           `json:"missing_items"`
	OverrideIDs  []string           `json:"override_ids"`
	HasOverrides bool               `json:"has_overrides"`
	CreatedAt    time.Time          `json:"created_at"`
}

const (
	AttemptDelivered = "delivered"
	AttemptFailed    = "failed"
)

type NotificationAttempt struct {
	Method    string    `json:"method"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

type VoiceMetadata struct {
	SessionID  string  `json:"voice_session_id"`
	Confidence float64 `json:"confidence"`
	Transcript string  `json:"transcript,omitempty"`
}

type OverrideLog struct {
	ID                 string                `json:"id"`
	TenantID           string                `json:"tenant_id"`
	JobID              string                `json:"job_id"`
	KitID              string                `json:"kit_id"`
	ItemID             string                `json:"item_id"`
	TechnicianID       string                `json:"technician_id"`
	SupervisorID       string                `json:"supervisor_id"`
	OverrideReason     string                `json:"override_reason"`
	Priority           string                `json:"priority"`
	CreatedAt          time.Time             `json:"created_at"`
	NotificationMethod string                `json:"notification_method,omitempty"`
	NotificationStatus string                `json:"notification_status,omitempty"`
	Attempts           []NotificationAttempt `json:"notification_attempts"`
	LatencyMs          int64                 `json:"notification_latency_ms"`
	SLASeconds         int                   `json:"sla_seconds"`
	SLAMet             bool                  `json:"sla_met"`
	VoiceInitiated     bool                  `json:"voice_initiated"`
	Voice              *VoiceMetadata        `json:"metadata,omitempty"`
	ResolvedAt         *time.Time            `json:"resolved_at,omitempty"`
}

type AuditEntry struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	Action     string         `json:"action"`
	ActorID    string         `json:"actor_id"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

type Notification struct {
	Type     string         `json:"type"`
	Priority string         `json:"priority"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Data     map[string]any `json:"data,omitempty"`
}

type QuietHours struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone,omitempty"`
}

type RecipientPreferences struct {
	UserID     string            `json:"user_id"`
	Channels   []string          `json:"channels"`
	Contacts   map[string]string `json:"contacts,omitempty"`
	QuietHours *QuietHours       `json:"quiet_hours,omitempty"`
}
