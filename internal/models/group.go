package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	GroupTypeRemote   = "remote"
	GroupTypeInPerson = "in_person"
)

// ValidGroupType reports whether t is a known group type.
func ValidGroupType(t string) bool {
	return t == GroupTypeRemote || t == GroupTypeInPerson
}

// LocationProposal is the meeting point currently proposed for an in-person group.
type LocationProposal struct {
	Name       string   `json:"name"`
	Address    string   `json:"address,omitempty"`
	Lat        *float64 `json:"lat,omitempty"`
	Lng        *float64 `json:"lng,omitempty"`
	URL        string   `json:"url,omitempty"`
	ProposedBy string   `json:"proposed_by,omitempty"`
}

// Value stores the proposal as a JSON text column.
func (l LocationProposal) Value() (driver.Value, error) {
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *LocationProposal) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = LocationProposal{}
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported location value %T", src)
	}
}

// Group is a coordination room addressed publicly by its slug.
type Group struct {
	ID        string            `gorm:"primaryKey;size:36" json:"id"`
	Slug      string            `gorm:"uniqueIndex;size:80;not null" json:"slug"`
	Name      string            `gorm:"size:100;not null" json:"name"`
	Type      string            `gorm:"size:20;not null;default:remote" json:"type"` // remote, in_person
	Location  *LocationProposal `gorm:"type:text" json:"location"`
	BaseLat   *float64          `json:"base_lat"`
	BaseLng   *float64          `json:"base_lng"`
	CreatedBy *string           `gorm:"size:64;index" json:"created_by"` // external auth user id
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (Group) TableName() string { return "groups" }

func (g *Group) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.Type == "" {
		g.Type = GroupTypeRemote
	}
	if !ValidGroupType(g.Type) {
		return errors.New("invalid group type")
	}
	return nil
}

// CreatedByUser reports whether the group was created by the given external user.
func (g *Group) CreatedByUser(userID string) bool {
	return userID != "" && g.CreatedBy != nil && *g.CreatedBy == userID
}
