package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FormStatus type for the first-encounter form workflow
type FormStatus string

const (
	FormDraft     FormStatus = "DRAFT"
	FormCompleted FormStatus = "COMPLETED"
)

// BasicDataSection holds the patient's intake basics.
type BasicDataSection struct {
	Age                int      `bson:"age,omitempty" json:"age,omitempty"`
	HeightCm           float64  `bson:"heightCm,omitempty" json:"heightCm,omitempty"`
	WeightKg           float64  `bson:"weightKg,omitempty" json:"weightKg,omitempty"`
	MedicalHistory     string   `bson:"medicalHistory,omitempty" json:"medicalHistory,omitempty"`
	Medications        []string `bson:"medications,omitempty" json:"medications,omitempty"`
	Allergies          []string `bson:"allergies,omitempty" json:"allergies,omitempty"`
	PreviousTreatments string   `bson:"previousTreatments,omitempty" json:"previousTreatments,omitempty"`
}

// PerformanceTestItem is one functional test administered during intake.
type PerformanceTestItem struct {
	TestName string `bson:"testName" json:"testName"`
	Result   string `bson:"result,omitempty" json:"result,omitempty"`
	Notes    string `bson:"notes,omitempty" json:"notes,omitempty"`
}

// PerformanceTestsSection groups the administered tests.
type PerformanceTestsSection struct {
	Tests []PerformanceTestItem `bson:"tests" json:"tests"`
}

// TherapyGoalsSection holds the agreed goals; copied to the episode on
// completion.
type TherapyGoalsSection struct {
	Goals            []TherapyGoal `bson:"goals" json:"goals"`
	ExpectedOutcomes string        `bson:"expectedOutcomes,omitempty" json:"expectedOutcomes,omitempty"`
}

// OnboardingSection records the app walkthrough acknowledgements.
type OnboardingSection struct {
	RatingExercises   bool   `bson:"ratingExercises" json:"ratingExercises"`
	AdherenceTracking bool   `bson:"adherenceTracking" json:"adherenceTracking"`
	AppUsage          bool   `bson:"appUsage" json:"appUsage"`
	Notes             string `bson:"notes,omitempty" json:"notes,omitempty"`
}

// SelectedExercise is one exercise chosen for the initial program, with
// optional per-exercise overrides.
type SelectedExercise struct {
	ExerciseID     primitive.ObjectID `bson:"exerciseId" json:"exerciseId"`
	Order          int                `bson:"order" json:"order"`
	CustomSets     int                `bson:"customSets,omitempty" json:"customSets,omitempty"`
	CustomReps     int                `bson:"customReps,omitempty" json:"customReps,omitempty"`
	CustomDuration int                `bson:"customDuration,omitempty" json:"customDuration,omitempty"` // minutes
	Notes          string             `bson:"notes,omitempty" json:"notes,omitempty"`
}

// InitialProgramSection is the exercise selection that seeds the first
// treatment plan.
type InitialProgramSection struct {
	Exercises []SelectedExercise `bson:"exercises" json:"exercises"`
}

// FirstSessionForm is the intake questionnaire gating an episode's
// activation. 1:1 with its episode; sections are upserted independently
// while DRAFT and frozen once COMPLETED (goal edits excepted, which must
// also propagate back to the episode).
type FirstSessionForm struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EpisodeID primitive.ObjectID `bson:"episodeId" json:"episodeId"` // Unique
	Status    FormStatus         `bson:"status" json:"status"`

	BasicData        *BasicDataSection        `bson:"basicData,omitempty" json:"basicData,omitempty"`
	PerformanceTests *PerformanceTestsSection `bson:"performanceTests,omitempty" json:"performanceTests,omitempty"`
	TherapyGoals     *TherapyGoalsSection     `bson:"therapyGoals,omitempty" json:"therapyGoals,omitempty"`
	Onboarding       *OnboardingSection       `bson:"onboarding,omitempty" json:"onboarding,omitempty"`
	InitialProgram   *InitialProgramSection   `bson:"initialProgram,omitempty" json:"initialProgram,omitempty"`

	CompletedAt *time.Time `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	CreatedAt   time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt" json:"updatedAt"`
}
