package runs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PredictionEntry is a durable cache row keyed by content hash.
type PredictionEntry struct {
	Key         string         `gorm:"column:cache_key;primaryKey;size:64" json:"key"`
	DocID       string         `gorm:"column:doc_id;not null;index" json:"doc_id"`
	ParagraphID int            `gorm:"column:paragraph_id;not null" json:"paragraph_id"`
	Zone        string         `gorm:"column:zone;not null" json:"zone"`
	Prediction  datatypes.JSON `gorm:"column:prediction;not null" json:"prediction"`
	ExpiresAt   time.Time      `gorm:"column:expires_at;not null;index" json:"expires_at"`
	CreatedAt   time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (PredictionEntry) TableName() string { return "prediction_entry" }

const (
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// ClassificationRun is one pipeline execution over a document.
type ClassificationRun struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DocID        string         `gorm:"column:doc_id;not null;index" json:"doc_id"`
	Status       string         `gorm:"column:status;not null;index" json:"status"`
	Score        int            `gorm:"column:score;not null;default:0" json:"score"`
	Action       string         `gorm:"column:action;not null;index" json:"action"`
	Profile      string         `gorm:"column:profile" json:"profile,omitempty"`
	Model        string         `gorm:"column:model" json:"model,omitempty"`
	Attempts     int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Paragraphs   int            `gorm:"column:paragraphs;not null;default:0" json:"paragraphs"`
	InputTokens  int            `gorm:"column:input_tokens;not null;default:0" json:"input_tokens"`
	OutputTokens int            `gorm:"column:output_tokens;not null;default:0" json:"output_tokens"`
	Metrics      datatypes.JSON `gorm:"column:metrics" json:"metrics"`
	Error        string         `gorm:"column:error" json:"error,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ClassificationRun) TableName() string { return "classification_run" }

func (r *ClassificationRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ClassificationDecision is the final tag for one paragraph of a run.
type ClassificationDecision struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RunID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_decision_run_para" json:"run_id"`
	ParagraphID  int       `gorm:"column:paragraph_id;not null;uniqueIndex:idx_decision_run_para" json:"paragraph_id"`
	Zone         string    `gorm:"column:zone" json:"zone"`
	TextPreview  string    `gorm:"column:text_preview" json:"text_preview"`
	Tag          string    `gorm:"column:tag;not null;index" json:"tag"`
	Confidence   float64   `gorm:"column:confidence;not null" json:"confidence"`
	Repaired     bool      `gorm:"column:repaired;not null;default:false" json:"repaired"`
	RepairReason string    `gorm:"column:repair_reason" json:"repair_reason,omitempty"`
	RuleBased    bool      `gorm:"column:rule_based;not null;default:false" json:"rule_based"`
	FallbackUsed bool      `gorm:"column:fallback_used;not null;default:false" json:"fallback_used"`
	OriginalTag  string    `gorm:"column:original_tag" json:"original_tag,omitempty"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (ClassificationDecision) TableName() string { return "classification_decision" }

func (d *ClassificationDecision) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// All lists the models for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&PredictionEntry{},
		&ClassificationRun{},
		&ClassificationDecision{},
	}
}
