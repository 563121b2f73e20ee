package services

import (
	"context"
	"errors"

	"github.com/rdychk/rdychk/internal/models"
	"github.com/rdychk/rdychk/internal/session"
	"github.com/rdychk/rdychk/pkg/response"
	"gorm.io/gorm"
)

const msgSessionMismatch = "Unauthorized: session does not belong to a member of this group"

// Caller is a member whose session has been verified for the group it acts
// in. It can only be obtained from AuthzService.ResolveCaller.
type Caller struct {
	member models.Member
	group  models.Group
}

func (c *Caller) MemberID() string      { return c.member.ID }
func (c *Caller) GroupID() string       { return c.group.ID }
func (c *Caller) Slug() string          { return c.group.Slug }
func (c *Caller) IsAdmin() bool         { return c.member.IsAdmin() }
func (c *Caller) Member() models.Member { return c.member }
func (c *Caller) Group() models.Group   { return c.group }

// AuthzService answers membership and role questions against the store.
type AuthzService struct {
	db *gorm.DB
}

func NewAuthzService(db *gorm.DB) *AuthzService {
	return &AuthzService{db: db}
}

// ResolveCaller loads the member named by an authenticated principal and
// checks it still belongs to the principal's group.
func (s *AuthzService) ResolveCaller(ctx context.Context, p session.Principal) (*Caller, error) {
	group, err := findGroupBySlug(s.db.WithContext(ctx), p.Slug())
	if err != nil {
		return nil, err
	}

	var member models.Member
	err = s.db.WithContext(ctx).Where("id = ? AND group_id = ?", p.MemberID(), group.ID).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, response.NewUnauthorized(msgSessionMismatch)
	}
	if err != nil {
		return nil, err
	}
	return &Caller{member: member, group: *group}, nil
}

// IsMember reports whether memberID belongs to groupID.
func (s *AuthzService) IsMember(ctx context.Context, memberID, groupID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Member{}).
		Where("id = ? AND group_id = ?", memberID, groupID).
		Count(&count).Error
	return count > 0, err
}

// IsAdmin reports whether memberID exists and holds the admin role.
func (s *AuthzService) IsAdmin(ctx context.Context, memberID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Member{}).
		Where("id = ? AND role = ?", memberID, models.RoleAdmin).
		Count(&count).Error
	return count > 0, err
}

func (s *AuthzService) AdminCount(ctx context.Context, groupID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Member{}).
		Where("group_id = ? AND role = ?", groupID, models.RoleAdmin).
		Count(&count).Error
	return count, err
}

// CanPromote allows admins, and anyone at all while the group has no admin.
func (s *AuthzService) CanPromote(ctx context.Context, requesterID, groupID string) (bool, error) {
	admin, err := s.IsAdmin(ctx, requesterID)
	if err != nil || admin {
		return admin, err
	}
	count, err := s.AdminCount(ctx, groupID)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// CanKick allows admins to remove anyone but themselves.
func (s *AuthzService) CanKick(ctx context.Context, requesterID, targetID string) (bool, error) {
	if requesterID == targetID {
		return false, nil
	}
	return s.IsAdmin(ctx, requesterID)
}

func findGroupBySlug(db *gorm.DB, slug string) (*models.Group, error) {
	var group models.Group
	err := db.Where("slug = ?", slug).First(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, response.NewNotFound("group not found")
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func findGroupMember(db *gorm.DB, groupID, memberID string) (*models.Member, error) {
	var member models.Member
	err := db.Where("id = ? AND group_id = ?", memberID, groupID).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, response.NewNotFound("member not found")
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}
