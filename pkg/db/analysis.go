// Database models for AI breakdown analysis records
package db

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/crewroom/crewroom/pkg/models"
)

// AnalysisStatus is the lifecycle state of an analysis record.
// A record moves pending -> approved exactly once; there is no rejected
// state, owners delete records they don't want instead.
type AnalysisStatus string

const (
	AnalysisStatusPending  AnalysisStatus = "pending"
	AnalysisStatusApproved AnalysisStatus = "approved"
)

// PayloadVersion is the current AnalysisPayload schema version. Stored with
// every record so historical rows stay readable as the suggestion shape
// evolves.
const PayloadVersion = 1

// FlexString tolerates both string and numeric JSON values. Generated
// suggestions sometimes carry numbers as strings (or garbage); keeping the
// raw text lets the apply step decide how leniently to parse it.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*f = FlexString(str)
		return nil
	}
	*f = FlexString(s)
	return nil
}

func (f FlexString) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(f))
}

// Int parses the value as an integer. The second return is false when the
// value is empty or not numeric.
func (f FlexString) Int() (int, bool) {
	s := strings.TrimSpace(string(f))
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SubtaskSuggestion is one candidate subtask proposed by the generator.
// Suggestions live inside the analysis payload and are never persisted as
// independent rows; the apply step reads them but never rewrites them.
type SubtaskSuggestion struct {
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Priority           string     `json:"priority,omitempty"`
	EstimatedHours     *float64   `json:"estimated_hours,omitempty"`
	ComplexityScore    *int       `json:"complexity_score,omitempty"`
	DueDateDays        FlexString `json:"due_date_days,omitempty"`
	AssignedToUserID   *uint      `json:"assigned_to_user_id,omitempty"`
	AssignedToUsername string     `json:"assigned_to_username,omitempty"`
}

// AnalysisPayload is the generated content of one breakdown request.
// It is a typed, versioned value object serialized to a JSON column.
type AnalysisPayload struct {
	Version           int                 `json:"version"`
	ProblemAnalysis   models.JSONMap      `json:"problem_analysis"`
	SuggestedSubtasks []SubtaskSuggestion `json:"suggested_subtasks"`
	OverallStrategy   string              `json:"overall_strategy"`
	ModelUsed         string              `json:"model_used"`
}

// Value implements driver.Valuer for AnalysisPayload
func (p AnalysisPayload) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner for AnalysisPayload
func (p *AnalysisPayload) Scan(value interface{}) error {
	if value == nil {
		*p = AnalysisPayload{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, sok := value.(string); sok {
			bytes = []byte(s)
		} else {
			return errors.New("type assertion to []byte failed")
		}
	}
	return json.Unmarshal(bytes, p)
}

// UintSlice stores an ordered list of ids as a JSON array column.
type UintSlice []uint

// Value implements driver.Valuer for UintSlice
func (s UintSlice) Value() (driver.Value, error) {
	if s == nil {
		return json.Marshal([]uint{})
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner for UintSlice
func (s *UintSlice) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if str, sok := value.(string); sok {
			bytes = []byte(str)
		} else {
			return errors.New("type assertion to []byte failed")
		}
	}
	return json.Unmarshal(bytes, s)
}

// AnalysisRecord is the durable draft produced by one breakdown request:
// its inputs, the generated payload, and the apply lifecycle.
//
// CreatedTaskIDs is a historical pointer, not an ownership relation.
// Deleting a record never touches the tasks it produced.
type AnalysisRecord struct {
	ID                 uint            `json:"id" gorm:"primaryKey"`
	RoomID             uint            `json:"room_id" gorm:"index;not null"`
	CreatedByID        uint            `json:"created_by_id" gorm:"not null"`
	ProblemDescription string          `json:"problem_description" gorm:"type:text;not null"`
	Language           string          `json:"language" gorm:"size:16"`
	Payload            AnalysisPayload `json:"payload" gorm:"type:json"`
	Status             AnalysisStatus  `json:"status" gorm:"size:16;not null;default:'pending'"`
	CreatedAt          time.Time       `json:"created_at"`
	AppliedAt          *time.Time      `json:"applied_at,omitempty"`
	CreatedTaskIDs     UintSlice       `json:"created_task_ids" gorm:"type:json"`
}

func (AnalysisRecord) TableName() string {
	return "ai_analysis_history"
}
