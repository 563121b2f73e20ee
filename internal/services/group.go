package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rdychk/rdychk/internal/models"
	"github.com/rdychk/rdychk/pkg/response"
	"gorm.io/gorm"
)

const (
	maxGroupName    = 100
	maxSlugBase     = 40
	slugSuffixLen   = 6
	slugCreateTries = 3
)

type CreateGroupRequest struct {
	Name    string   `json:"name" binding:"required"`
	Type    string   `json:"type"`
	BaseLat *float64 `json:"base_lat"`
	BaseLng *float64 `json:"base_lng"`
}

// UpdateSettingsRequest changes the group's own attributes; nil fields are
// left untouched.
type UpdateSettingsRequest struct {
	Name    *string  `json:"name"`
	Type    *string  `json:"type"`
	BaseLat *float64 `json:"base_lat"`
	BaseLng *float64 `json:"base_lng"`
}

// GroupView is everything a group page renders.
type GroupView struct {
	Group      models.Group          `json:"group"`
	Members    []models.Member       `json:"members"`
	Votes      []models.LocationVote `json:"votes"`
	Tally      models.VoteTally      `json:"tally"`
	ReadyCount int                   `json:"ready_count"`
}

type GroupService struct {
	db       *gorm.DB
	notifier Notifier
}

func NewGroupService(db *gorm.DB, notifier Notifier) *GroupService {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &GroupService{db: db, notifier: notifier}
}

// Create stores a new group under a fresh slug derived from its name.
func (s *GroupService) Create(ctx context.Context, req *CreateGroupRequest, userID string) (group *models.Group, err error) {
	var scope opScope
	defer func() { err = finish(OpCreateGroup, scope, err) }()

	name := strings.TrimSpace(req.Name)
	if name == "" || utf8.RuneCountInString(name) > maxGroupName {
		return nil, response.NewBadRequest("name must be 1-100 characters")
	}
	groupType := req.Type
	if groupType == "" {
		groupType = models.GroupTypeRemote
	}
	if !models.ValidGroupType(groupType) {
		return nil, response.NewBadRequest("type must be remote or in_person")
	}
	if err := validateCoordinates(req.BaseLat, req.BaseLng); err != nil {
		return nil, err
	}

	group = &models.Group{
		Name:    name,
		Type:    groupType,
		BaseLat: req.BaseLat,
		BaseLng: req.BaseLng,
	}
	if userID != "" {
		group.CreatedBy = &userID
	}

	db := s.db.WithContext(ctx)
	for i := 0; i < slugCreateTries; i++ {
		group.ID = ""
		group.Slug = NewSlug(name)
		scope.slug = group.Slug
		if err = db.Create(group).Error; err == nil {
			return group, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) && !isUniqueViolation(err) {
			return nil, err
		}
	}
	return nil, err
}

// View loads the group with its members in join order and the current votes.
func (s *GroupService) View(ctx context.Context, slug string) (*GroupView, error) {
	db := s.db.WithContext(ctx)
	group, err := findGroupBySlug(db, slug)
	if err != nil {
		return nil, err
	}

	view := &GroupView{Group: *group, Members: []models.Member{}, Votes: []models.LocationVote{}}
	if err := db.Where("group_id = ?", group.ID).Order("joined_at ASC, id ASC").Find(&view.Members).Error; err != nil {
		return nil, err
	}
	if err := db.Where("group_id = ?", group.ID).Find(&view.Votes).Error; err != nil {
		return nil, err
	}
	view.Tally = models.TallyVotes(view.Votes)
	for _, m := range view.Members {
		if m.Readiness().Kind() == models.ReadinessReady {
			view.ReadyCount++
		}
	}
	return view, nil
}

// UpdateSettings edits the group's name, type and base coordinates. Admin only.
func (s *GroupService) UpdateSettings(ctx context.Context, caller *Caller, req *UpdateSettingsRequest) (group *models.Group, err error) {
	defer func() { err = finish(OpUpdateSettings, callerScope(caller), err) }()

	if !caller.IsAdmin() {
		return nil, response.NewForbidden("Forbidden: only admins can change group settings")
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" || utf8.RuneCountInString(name) > maxGroupName {
			return nil, response.NewBadRequest("name must be 1-100 characters")
		}
		updates["name"] = name
	}
	if req.Type != nil {
		if !models.ValidGroupType(*req.Type) {
			return nil, response.NewBadRequest("type must be remote or in_person")
		}
		updates["type"] = *req.Type
	}
	if err := validateCoordinates(req.BaseLat, req.BaseLng); err != nil {
		return nil, err
	}
	if req.BaseLat != nil {
		updates["base_lat"] = *req.BaseLat
	}
	if req.BaseLng != nil {
		updates["base_lng"] = *req.BaseLng
	}
	if len(updates) == 0 {
		return nil, response.NewBadRequest("no settings to update")
	}

	db := s.db.WithContext(ctx)
	if err := db.Model(&models.Group{}).Where("id = ?", caller.GroupID()).Updates(updates).Error; err != nil {
		return nil, err
	}
	group, err = findGroupBySlug(db, caller.Slug())
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(ctx, ChangeEvent{
		Table:    models.Group{}.TableName(),
		Type:     ChangeUpdate,
		GroupID:  group.ID,
		RecordID: group.ID,
	})
	return group, nil
}

// NewSlug builds "<slugified name>-<6 random lowercase hex chars>". The result
// always satisfies session.ValidSlug.
func NewSlug(name string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:slugSuffixLen]
	return Slugify(name) + "-" + suffix
}

// Slugify lowercases name and collapses every run of other characters into a
// single hyphen. Names with nothing usable become "group".
func Slugify(name string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			if b.Len() >= maxSlugBase {
				break
			}
			continue
		}
		pendingHyphen = true
	}
	slug := strings.TrimRight(b.String(), "-")
	if slug == "" {
		return "group"
	}
	return slug
}

func validateCoordinates(lat, lng *float64) error {
	if lat != nil && (*lat < -90 || *lat > 90) {
		return response.NewBadRequest("latitude must be between -90 and 90")
	}
	if lng != nil && (*lng < -180 || *lng > 180) {
		return response.NewBadRequest("longitude must be between -180 and 180")
	}
	return nil
}

// isUniqueViolation covers drivers that do not translate errors into
// gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
