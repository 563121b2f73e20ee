package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Member is a participant identity scoped to exactly one group. Guests have a
// nil UserID and are identified only by their session cookie.
type Member struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	GroupID      string     `gorm:"size:36;not null;index" json:"group_id"`
	Name         string     `gorm:"size:50;not null" json:"name"`
	Role         string     `gorm:"size:20;not null;default:member" json:"role"` // member, admin
	UserID       *string    `gorm:"size:64;index" json:"user_id"`
	IsReady      bool       `gorm:"not null;default:false" json:"is_ready"`
	TimerEndTime *time.Time `json:"timer_end_time"`
	ProposedTime *string    `gorm:"size:32" json:"proposed_time"`
	JoinedAt     time.Time  `gorm:"autoCreateTime" json:"joined_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (Member) TableName() string { return "members" }

func (m *Member) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Role == "" {
		m.Role = RoleMember
	}
	return nil
}

func (m *Member) IsAdmin() bool {
	return m.Role == RoleAdmin
}

// Readiness derives the member's readiness state from its stored columns.
// Rows written before the columns were kept exclusive resolve with the timer
// taking precedence, then the proposed time.
func (m *Member) Readiness() Readiness {
	switch {
	case m.TimerEndTime != nil:
		return CountdownUntil(*m.TimerEndTime)
	case m.ProposedTime != nil:
		return ProposeTime(*m.ProposedTime)
	case m.IsReady:
		return ReadyState()
	default:
		return NotReadyState()
	}
}
