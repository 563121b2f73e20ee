package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rdychk/rdychk/internal/models"
	"github.com/rdychk/rdychk/pkg/response"
	"gorm.io/gorm"
)

const (
	maxMemberName   = 50
	maxProposedTime = 32
)

type JoinRequest struct {
	Name string `json:"name" binding:"required"`
}

type ReclaimRequest struct {
	MemberID string `json:"member_id" binding:"required"`
}

type ToggleReadyRequest struct {
	IsReady *bool `json:"is_ready" binding:"required"`
}

// TargetRequest names the member an admin action applies to.
type TargetRequest struct {
	TargetID string `json:"target_id" binding:"required"`
}

// UpdateMemberRequest carries at most one readiness state. A nil field is
// "not sent".
type UpdateMemberRequest struct {
	IsReady      *bool      `json:"is_ready"`
	TimerEndTime *time.Time `json:"timer_end_time"`
	ProposedTime *string    `json:"proposed_time"`
}

// Readiness resolves the request to exactly one readiness state or rejects
// it as contradictory.
func (r *UpdateMemberRequest) Readiness() (models.Readiness, error) {
	switch {
	case r.TimerEndTime == nil && r.ProposedTime == nil && r.IsReady == nil:
		return models.Readiness{}, response.NewBadRequest("no readiness fields to update")
	case r.TimerEndTime != nil && r.ProposedTime != nil:
		return models.Readiness{}, response.NewBadRequest("timer_end_time and proposed_time cannot be set together")
	case r.TimerEndTime != nil:
		if r.IsReady != nil && *r.IsReady {
			return models.Readiness{}, response.NewBadRequest("a running timer cannot be combined with is_ready=true")
		}
		return models.CountdownUntil(*r.TimerEndTime), nil
	case r.ProposedTime != nil:
		if r.IsReady != nil && *r.IsReady {
			return models.Readiness{}, response.NewBadRequest("a proposed time cannot be combined with is_ready=true")
		}
		proposed := strings.TrimSpace(*r.ProposedTime)
		if proposed == "" || len(proposed) > maxProposedTime {
			return models.Readiness{}, response.NewBadRequest("proposed_time must be 1-32 characters")
		}
		return models.ProposeTime(proposed), nil
	case *r.IsReady:
		return models.ReadyState(), nil
	default:
		return models.NotReadyState(), nil
	}
}

// MemberService is the mutation gateway for member rows. Every method except
// Join and Reclaim takes a Caller, so it cannot run without a verified
// session.
type MemberService struct {
	db       *gorm.DB
	authz    *AuthzService
	notifier Notifier
}

func NewMemberService(db *gorm.DB, authz *AuthzService, notifier Notifier) *MemberService {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &MemberService{db: db, authz: authz, notifier: notifier}
}

// Join adds a member to the group. The first member, and the group's creator,
// become admins. A signed-in user who already has a member in the group gets
// that member back. The caller issues the session cookie.
func (s *MemberService) Join(ctx context.Context, slug, name, userID string) (member *models.Member, err error) {
	scope := opScope{slug: slug}
	defer func() { err = finish(OpJoin, scope, err) }()

	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxMemberName {
		return nil, response.NewBadRequest("name must be 1-50 characters")
	}

	db := s.db.WithContext(ctx)
	group, err := findGroupBySlug(db, slug)
	if err != nil {
		return nil, err
	}
	scope.groupID = group.ID

	if userID != "" {
		var existing models.Member
		err := db.Where("group_id = ? AND user_id = ?", group.ID, userID).First(&existing).Error
		if err == nil {
			return &existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	var count int64
	if err := db.Model(&models.Member{}).Where("group_id = ?", group.ID).Count(&count).Error; err != nil {
		return nil, err
	}

	member = &models.Member{
		GroupID: group.ID,
		Name:    name,
		Role:    models.RoleMember,
	}
	if count == 0 || group.CreatedByUser(userID) {
		member.Role = models.RoleAdmin
	}
	if userID != "" {
		member.UserID = &userID
	}
	if err := db.Create(member).Error; err != nil {
		return nil, err
	}

	s.notify(ctx, ChangeInsert, member)
	return member, nil
}

// Reclaim returns a known member of the group so its session can be
// re-issued. Members linked to an external user can only be reclaimed by
// that user.
func (s *MemberService) Reclaim(ctx context.Context, slug, memberID, userID string) (member *models.Member, err error) {
	scope := opScope{slug: slug, memberID: memberID}
	defer func() { err = finish(OpReclaim, scope, err) }()

	if memberID == "" {
		return nil, response.NewBadRequest("member_id is required")
	}
	db := s.db.WithContext(ctx)
	group, err := findGroupBySlug(db, slug)
	if err != nil {
		return nil, err
	}
	scope.groupID = group.ID
	member, err = findGroupMember(db, group.ID, memberID)
	if err != nil {
		return nil, err
	}
	if member.UserID != nil && *member.UserID != userID {
		return nil, response.NewForbidden("Forbidden: this member is linked to another account")
	}
	return member, nil
}

// ToggleReady sets the caller ready or not ready, clearing any timer or
// proposed time.
func (s *MemberService) ToggleReady(ctx context.Context, caller *Caller, isReady bool) (member *models.Member, err error) {
	defer func() { err = finish(OpToggleReady, callerScope(caller), err) }()

	state := models.NotReadyState()
	if isReady {
		state = models.ReadyState()
	}
	return s.applyReadiness(ctx, caller, state)
}

// UpdateReadiness writes the single readiness state described by req.
func (s *MemberService) UpdateReadiness(ctx context.Context, caller *Caller, req *UpdateMemberRequest) (member *models.Member, err error) {
	defer func() { err = finish(OpUpdateMember, callerScope(caller), err) }()

	state, err := req.Readiness()
	if err != nil {
		return nil, err
	}
	return s.applyReadiness(ctx, caller, state)
}

func (s *MemberService) applyReadiness(ctx context.Context, caller *Caller, state models.Readiness) (*models.Member, error) {
	db := s.db.WithContext(ctx)
	result := db.Model(&models.Member{}).
		Where("id = ? AND group_id = ?", caller.MemberID(), caller.GroupID()).
		Updates(state.Columns())
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, response.NewNotFound("member not found")
	}

	member, err := findGroupMember(db, caller.GroupID(), caller.MemberID())
	if err != nil {
		return nil, err
	}
	s.notify(ctx, ChangeUpdate, member)
	return member, nil
}

// Leave removes the caller and its location vote. The caller clears the
// session cookie.
func (s *MemberService) Leave(ctx context.Context, caller *Caller) (err error) {
	defer func() { err = finish(OpLeave, callerScope(caller), err) }()

	member := caller.Member()
	if err := s.remove(ctx, &member); err != nil {
		return err
	}
	s.notify(ctx, ChangeDelete, &member)
	return nil
}

// Promote makes target an admin. Allowed for admins, or for anyone while the
// group has no admin at all.
func (s *MemberService) Promote(ctx context.Context, caller *Caller, targetID string) (target *models.Member, err error) {
	defer func() { err = finish(OpPromote, callerScope(caller), err) }()

	ok, err := s.authz.CanPromote(ctx, caller.MemberID(), caller.GroupID())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, response.NewForbidden("Forbidden: only admins can promote members")
	}

	db := s.db.WithContext(ctx)
	target, err = findGroupMember(db, caller.GroupID(), targetID)
	if err != nil {
		return nil, err
	}
	if target.IsAdmin() {
		return target, nil
	}
	if err := db.Model(target).Update("role", models.RoleAdmin).Error; err != nil {
		return nil, err
	}
	target.Role = models.RoleAdmin

	s.notify(ctx, ChangeUpdate, target)
	return target, nil
}

// Kick removes target from the caller's group. Self-kick is rejected before
// the role check.
func (s *MemberService) Kick(ctx context.Context, caller *Caller, targetID string) (err error) {
	defer func() { err = finish(OpKick, callerScope(caller), err) }()

	if targetID == caller.MemberID() {
		return response.NewBadRequest("You cannot kick yourself")
	}
	ok, err := s.authz.CanKick(ctx, caller.MemberID(), targetID)
	if err != nil {
		return err
	}
	if !ok {
		return response.NewForbidden("Forbidden: only admins can kick members")
	}

	target, err := findGroupMember(s.db.WithContext(ctx), caller.GroupID(), targetID)
	if err != nil {
		return err
	}
	if err := s.remove(ctx, target); err != nil {
		return err
	}
	s.notify(ctx, ChangeDelete, target)
	return nil
}

func (s *MemberService) remove(ctx context.Context, member *models.Member) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ? AND member_id = ?", member.GroupID, member.ID).
			Delete(&models.LocationVote{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ? AND group_id = ?", member.ID, member.GroupID).Delete(&models.Member{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return response.NewNotFound("member not found")
		}
		return nil
	})
}

func (s *MemberService) notify(ctx context.Context, kind string, m *models.Member) {
	s.notifier.Publish(ctx, ChangeEvent{
		Table:    models.Member{}.TableName(),
		Type:     kind,
		GroupID:  m.GroupID,
		RecordID: m.ID,
	})
}
