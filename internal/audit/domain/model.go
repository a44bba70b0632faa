package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

// AuditLog is an append-only record of a state-changing operation.
type AuditLog struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	OrgID       *snowflake.ID     `gorm:"column:org_id;index"`
	ActorType   string            `gorm:"type:text;not null"`
	ActorID     *string           `gorm:"type:text"`
	Action      string            `gorm:"type:text;not null;index"`
	TargetType  string            `gorm:"type:text;not null"`
	TargetID    *string           `gorm:"type:text"`
	Description string            `gorm:"type:text"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	OrgID      snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}
