package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MilestoneType tags the clinical purpose of a milestone.
type MilestoneType string

const (
	MilestoneBaselineAssessment MilestoneType = "BASELINE_ASSESSMENT"
	MilestoneCheckin            MilestoneType = "CHECKIN"
	MilestoneMidpointAssessment MilestoneType = "MIDPOINT_ASSESSMENT"
	MilestoneProgramCompletion  MilestoneType = "PROGRAM_COMPLETION"
)

// MilestoneStatus type for the milestone lifecycle
type MilestoneStatus string

const (
	MilestonePending   MilestoneStatus = "PENDING"
	MilestoneCompleted MilestoneStatus = "COMPLETED"
	MilestoneSkipped   MilestoneStatus = "SKIPPED"
)

// TriggerType is the mechanism by which a milestone transitions to completed.
type TriggerType string

const (
	TriggerFormCompleted  TriggerType = "FORM_COMPLETED"
	TriggerVisitCompleted TriggerType = "VISIT_COMPLETED"
	TriggerManual         TriggerType = "MANUAL"
)

// FormTriggerConfig parameterizes a FORM_COMPLETED trigger.
type FormTriggerConfig struct {
	FormType string `bson:"formType" json:"formType"`
}

// VisitTriggerConfig parameterizes a VISIT_COMPLETED trigger.
type VisitTriggerConfig struct {
	VisitTypes []string `bson:"visitTypes" json:"visitTypes"`
}

// TriggerConfig is a tagged union keyed by TriggerType: exactly the variant
// matching the trigger type is populated, the others stay nil. MANUAL
// triggers carry no config at all.
type TriggerConfig struct {
	Form  *FormTriggerConfig  `bson:"form,omitempty" json:"form,omitempty"`
	Visit *VisitTriggerConfig `bson:"visit,omitempty" json:"visit,omitempty"`
}

// MilestoneTemplate is a reusable, system-defined blueprint from which
// concrete episode milestones are generated. Read-only at runtime.
type MilestoneTemplate struct {
	ID primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	// Key is a stable identifier for seeding/upserting system defaults.
	Key         string        `bson:"key" json:"key"`
	Type        MilestoneType `bson:"type" json:"type"`
	Name        LocalizedText `bson:"name" json:"name"`
	Description LocalizedText `bson:"description" json:"description"`
	DefaultWeek int           `bson:"defaultWeek" json:"defaultWeek"` // 1-based
	IsRecurring bool          `bson:"isRecurring" json:"isRecurring"`
	// RecurrenceWeeks is the interval between instances; only meaningful
	// when IsRecurring is set.
	RecurrenceWeeks int            `bson:"recurrenceWeeks,omitempty" json:"recurrenceWeeks,omitempty"`
	TriggerType     TriggerType    `bson:"triggerType" json:"triggerType"`
	TriggerConfig   *TriggerConfig `bson:"triggerConfig,omitempty" json:"triggerConfig,omitempty"`
	// Discipline scopes the template; nil means discipline-agnostic.
	Discipline      *Discipline `bson:"discipline,omitempty" json:"discipline,omitempty"`
	IsSystemDefault bool        `bson:"isSystemDefault" json:"isSystemDefault"`
	CreatedAt       time.Time   `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time   `bson:"updatedAt" json:"updatedAt"`
}

// EpisodeMilestone is a scheduled clinical checkpoint within an episode.
// Template fields are copied at instantiation time and independently
// editable thereafter.
type EpisodeMilestone struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	EpisodeID     primitive.ObjectID  `bson:"episodeId" json:"episodeId"`
	TemplateID    *primitive.ObjectID `bson:"templateId,omitempty" json:"templateId,omitempty"`
	Type          MilestoneType       `bson:"type" json:"type"`
	Name          LocalizedText       `bson:"name" json:"name"`
	Description   LocalizedText       `bson:"description" json:"description"`
	TargetWeek    int                 `bson:"targetWeek" json:"targetWeek"` // 1-based
	TargetDate    *time.Time          `bson:"targetDate,omitempty" json:"targetDate,omitempty"`
	Status        MilestoneStatus     `bson:"status" json:"status"`
	TriggerType   TriggerType         `bson:"triggerType" json:"triggerType"`
	TriggerConfig *TriggerConfig      `bson:"triggerConfig,omitempty" json:"triggerConfig,omitempty"`
	// LinkedSessionID references the session that satisfied the milestone.
	LinkedSessionID *primitive.ObjectID `bson:"linkedSessionId,omitempty" json:"linkedSessionId,omitempty"`
	CompletedAt     *time.Time          `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	// OrderIndex is targetWeek*10 unless explicitly overridden, giving a
	// week-major then insertion-order sort.
	OrderIndex int `bson:"orderIndex" json:"orderIndex"`
	// TherapistName is denormalized at creation for read-side display.
	TherapistName string    `bson:"therapistName,omitempty" json:"therapistName,omitempty"`
	CreatedAt     time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt" json:"updatedAt"`
}

// MilestoneTargetDate computes a milestone's concrete date from the owning
// episode's start date: startDate + 7*(week-1) days. Weeks are 1-based.
func MilestoneTargetDate(startDate time.Time, week int) time.Time {
	return startDate.AddDate(0, 0, (week-1)*7)
}

// DefaultOrderIndex returns the order index assigned when none is supplied.
func DefaultOrderIndex(week int) int {
	return week * 10
}

// DefaultMilestoneTemplates returns the system-default template catalog.
// Upserted by key at startup; the catalog is never generated from user input.
func DefaultMilestoneTemplates() []MilestoneTemplate {
	return []MilestoneTemplate{
		{
			Key:  "baseline",
			Type: MilestoneBaselineAssessment,
			Name: LocalizedText{En: "Baseline Assessment", He: "הערכה בסיסית"},
			Description: LocalizedText{
				En: "Initial evaluation to establish starting point and goals",
				He: "הערכה ראשונית לקביעת נקודת מוצא ומטרות",
			},
			DefaultWeek: 1,
			TriggerType: TriggerFormCompleted,
			TriggerConfig: &TriggerConfig{
				Form: &FormTriggerConfig{FormType: "FIRST_SESSION_FORM"},
			},
			IsSystemDefault: true,
		},
		{
			Key:  "checkin-biweekly",
			Type: MilestoneCheckin,
			Name: LocalizedText{En: "Bi-weekly Check-in", He: "מעקב דו-שבועי"},
			Description: LocalizedText{
				En: "Progress review and plan adjustment",
				He: "סקירת התקדמות והתאמת תוכנית",
			},
			DefaultWeek:     2,
			IsRecurring:     true,
			RecurrenceWeeks: 2,
			TriggerType:     TriggerVisitCompleted,
			TriggerConfig: &TriggerConfig{
				Visit: &VisitTriggerConfig{VisitTypes: []string{"VIDEO", "IN_PERSON"}},
			},
			IsSystemDefault: true,
		},
		{
			Key:  "midpoint",
			Type: MilestoneMidpointAssessment,
			Name: LocalizedText{En: "Midpoint Assessment", He: "הערכת אמצע תוכנית"},
			Description: LocalizedText{
				En: "Mid-program evaluation to measure progress and adjust goals",
				He: "הערכה באמצע התוכנית למדידת התקדמות והתאמת מטרות",
			},
			DefaultWeek: 6,
			TriggerType: TriggerVisitCompleted,
			TriggerConfig: &TriggerConfig{
				Visit: &VisitTriggerConfig{VisitTypes: []string{"VIDEO", "IN_PERSON"}},
			},
			IsSystemDefault: true,
		},
		{
			Key:  "completion",
			Type: MilestoneProgramCompletion,
			Name: LocalizedText{En: "Program Completion", He: "סיום תוכנית"},
			Description: LocalizedText{
				En: "Final evaluation and decision on next steps",
				He: "הערכה סופית והחלטה על המשך",
			},
			DefaultWeek:     12,
			TriggerType:     TriggerManual,
			IsSystemDefault: true,
		},
	}
}
