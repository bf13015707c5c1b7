// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers. Plan artifacts (programs and
// subscriptions) embed their exercise structure as JSON columns because the
// source-of-truth store is the system of record while the key-value cache
// holds denormalized copies of the same documents.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PlanType discriminates the two generated artifact kinds.
type PlanType string

const (
	PlanProgram      PlanType = "program"
	PlanSubscription PlanType = "subscription"
)

// ParsePlanType validates a wire-level plan type string.
func ParsePlanType(s string) (PlanType, error) {
	switch PlanType(s) {
	case PlanProgram, PlanSubscription:
		return PlanType(s), nil
	}
	return "", fmt.Errorf("unknown plan type %q", s)
}

// PlanAction discriminates creation from in-place update of an artifact.
type PlanAction string

const (
	ActionCreate PlanAction = "create"
	ActionUpdate PlanAction = "update"
)

// ParsePlanAction validates a wire-level action string. An empty string
// defaults to create, matching the worker's historical payloads.
func ParsePlanAction(s string) (PlanAction, error) {
	switch PlanAction(s) {
	case ActionCreate, ActionUpdate:
		return PlanAction(s), nil
	}
	if s == "" {
		return ActionCreate, nil
	}
	return "", fmt.Errorf("unknown plan action %q", s)
}

// GenerationRequest identifies one queued generation job. RequestID is the
// sole idempotency key for every downstream delivery decision; the struct is
// immutable once submitted.
type GenerationRequest struct {
	RequestID string     `json:"request_id"`
	ProfileID int64      `json:"profile_id"`
	PlanType  PlanType   `json:"plan_type"`
	Action    PlanAction `json:"action"`
	Cost      int        `json:"cost"`
}

// Profile is the coached user. The source-of-truth row lives here; the cache
// holds a denormalized JSON copy keyed by id.
type Profile struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	ChatID    int64     `gorm:"index;not null" json:"chat_id"`
	Language  string    `gorm:"size:16;not null;default:en" json:"language"`
	Credits   int       `gorm:"not null;default:0" json:"credits"`
	Status    string    `gorm:"size:32;not null;default:active" json:"status"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName implements the GORM tabler interface.
func (Profile) TableName() string { return "profiles" }

// Exercise is a single prescribed movement. Illustration optionally holds a
// key into the static illustration catalog; unresolved keys are tolerated.
type Exercise struct {
	Name         string `json:"name"`
	Sets         int    `json:"sets,omitempty"`
	Reps         string `json:"reps,omitempty"`
	Illustration string `json:"illustration,omitempty"`
}

// DayExercises is the ordered exercise list for one training day.
type DayExercises struct {
	Day       int        `json:"day"`
	Title     string     `json:"title,omitempty"`
	Exercises []Exercise `json:"exercises"`
}

// ExerciseDays is a JSON-serialized ordered day list stored in a TEXT column.
type ExerciseDays []DayExercises

// Value implements driver.Valuer.
func (d ExerciseDays) Value() (driver.Value, error) {
	if d == nil {
		return "[]", nil
	}
	b, err := json.Marshal(d)
	return string(b), err
}

// Scan implements sql.Scanner.
func (d *ExerciseDays) Scan(src any) error {
	return scanJSON(src, d)
}

// ExerciseList is a JSON-serialized flat exercise list stored in a TEXT column.
type ExerciseList []Exercise

// Value implements driver.Valuer.
func (l ExerciseList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	return string(b), err
}

// Scan implements sql.Scanner.
func (l *ExerciseList) Scan(src any) error {
	return scanJSON(src, l)
}

// Program is a generated multi-day training program.
type Program struct {
	ID          int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	ProfileID   int64        `gorm:"index;not null" json:"profile_id"`
	SplitNumber int          `gorm:"not null" json:"split_number"`
	Wishes      string       `gorm:"type:TEXT" json:"wishes,omitempty"`
	Days        ExerciseDays `gorm:"type:TEXT;not null" json:"exercises_by_day"`
	CreatedAt   time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

// TableName implements the GORM tabler interface.
func (Program) TableName() string { return "programs" }

// Subscription is a recurring coaching plan with a billing schedule.
type Subscription struct {
	ID          int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	ProfileID   int64        `gorm:"index;not null" json:"profile_id"`
	Exercises   ExerciseList `gorm:"type:TEXT;not null" json:"exercises"`
	WorkoutDays int          `gorm:"not null;default:0" json:"workout_days"`
	PeriodDays  int          `gorm:"not null" json:"period_days"`
	Price       int          `gorm:"not null" json:"price"`
	Enabled     bool         `gorm:"not null;default:false" json:"enabled"`
	Location    string       `gorm:"size:255;not null" json:"location"`
	PaymentDate *time.Time   `json:"payment_date,omitempty"`
	CreatedAt   time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName implements the GORM tabler interface.
func (Subscription) TableName() string { return "subscriptions" }

func scanJSON(src, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return errors.New("domain: unsupported column type for JSON scan")
	}
}
