package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/rdychk/rdychk/internal/models"
	"github.com/rdychk/rdychk/pkg/logger"
	"github.com/rdychk/rdychk/pkg/response"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	PolicyMember = "member"
	PolicyAdmin  = "admin"

	maxLocationName    = 200
	maxLocationAddress = 300
	maxLinkURL         = 768 // link_previews.url column size
)

// LocationRequest proposes a new meeting point. A nil Location clears it.
type LocationRequest struct {
	Location *LocationInput `json:"location"`
}

type LocationInput struct {
	Name    string   `json:"name"`
	Address string   `json:"address"`
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
	URL     string   `json:"url"`
}

type VoteRequest struct {
	Vote int `json:"vote" binding:"required"`
}

// VoteResult is the caller's vote after a toggle (0 when removed) and the
// resulting tally.
type VoteResult struct {
	Vote  int              `json:"vote"`
	Tally models.VoteTally `json:"tally"`
}

type LocationService struct {
	db       *gorm.DB
	authz    *AuthzService
	notifier Notifier
	queue    TaskQueue
	policy   string
}

func NewLocationService(db *gorm.DB, authz *AuthzService, notifier Notifier, queue TaskQueue, policy string) *LocationService {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	if policy == "" {
		policy = PolicyMember
	}
	return &LocationService{db: db, authz: authz, notifier: notifier, queue: queue, policy: policy}
}

// UpdateLocation replaces the group's meeting point and resets every vote on
// it. If the reset fails the new location stays and the failure is returned.
func (s *LocationService) UpdateLocation(ctx context.Context, caller *Caller, req *LocationRequest) (group *models.Group, err error) {
	defer func() { err = finish(OpUpdateLocation, callerScope(caller), err) }()

	ok, err := s.authz.IsMember(ctx, caller.MemberID(), caller.GroupID())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, response.NewUnauthorized(msgSessionMismatch)
	}
	if s.policy == PolicyAdmin && !caller.IsAdmin() {
		return nil, response.NewForbidden("Forbidden: only admins can change the location")
	}

	var proposal *models.LocationProposal
	if req.Location != nil {
		g := caller.Group()
		if g.Type != models.GroupTypeInPerson {
			return nil, response.NewBadRequest("locations are only used by in-person groups")
		}
		proposal, err = req.Location.proposal(caller.MemberID())
		if err != nil {
			return nil, err
		}
	}

	db := s.db.WithContext(ctx)
	var value interface{}
	if proposal != nil {
		value = *proposal
	}
	if err := db.Model(&models.Group{}).Where("id = ?", caller.GroupID()).Update("location", value).Error; err != nil {
		return nil, err
	}
	s.notifier.Publish(ctx, ChangeEvent{
		Table:    models.Group{}.TableName(),
		Type:     ChangeUpdate,
		GroupID:  caller.GroupID(),
		RecordID: caller.GroupID(),
	})

	if err := db.Where("group_id = ?", caller.GroupID()).Delete(&models.LocationVote{}).Error; err != nil {
		logger.Error().Err(err).Str("group_id", caller.GroupID()).Msg("location changed but votes were not reset")
		return nil, response.NewServerError("location updated but votes could not be reset: " + err.Error())
	}
	s.notifier.Publish(ctx, ChangeEvent{
		Table:   models.LocationVote{}.TableName(),
		Type:    ChangeDelete,
		GroupID: caller.GroupID(),
	})

	if proposal != nil && proposal.URL != "" && s.queue != nil {
		if err := s.queue.Enqueue(&PreviewTask{URL: proposal.URL}); err != nil {
			logger.Warn().Err(err).Msg("enqueue preview warm-up")
		}
	}

	return findGroupBySlug(db, caller.Slug())
}

// Vote records the caller's opinion of the current location. Casting the
// same value again removes it; the opposite value replaces it.
func (s *LocationService) Vote(ctx context.Context, caller *Caller, vote int) (result *VoteResult, err error) {
	defer func() { err = finish(OpVoteLocation, callerScope(caller), err) }()

	if vote != models.VoteUp && vote != models.VoteDown {
		return nil, response.NewBadRequest("vote must be 1 or -1")
	}
	ok, err := s.authz.IsMember(ctx, caller.MemberID(), caller.GroupID())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, response.NewUnauthorized(msgSessionMismatch)
	}

	db := s.db.WithContext(ctx)
	group, err := findGroupBySlug(db, caller.Slug())
	if err != nil {
		return nil, err
	}
	if group.Location == nil {
		return nil, response.NewBadRequest("there is no location to vote on")
	}

	result = &VoteResult{Vote: vote}
	change := ChangeInsert

	var existing models.LocationVote
	err = db.Where("group_id = ? AND member_id = ?", caller.GroupID(), caller.MemberID()).First(&existing).Error
	switch {
	case err == nil && existing.Vote == vote:
		if err := db.Delete(&existing).Error; err != nil {
			return nil, err
		}
		result.Vote = 0
		change = ChangeDelete
	case err == nil:
		if err := db.Model(&existing).Update("vote", vote).Error; err != nil {
			return nil, err
		}
		change = ChangeUpdate
	case errors.Is(err, gorm.ErrRecordNotFound):
		row := &models.LocationVote{GroupID: caller.GroupID(), MemberID: caller.MemberID(), Vote: vote}
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}, {Name: "member_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"vote", "updated_at"}),
		}).Create(row).Error; err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	var votes []models.LocationVote
	if err := db.Where("group_id = ?", caller.GroupID()).Find(&votes).Error; err != nil {
		return nil, err
	}
	result.Tally = models.TallyVotes(votes)

	s.notifier.Publish(ctx, ChangeEvent{
		Table:    models.LocationVote{}.TableName(),
		Type:     change,
		GroupID:  caller.GroupID(),
		RecordID: caller.MemberID(),
	})
	return result, nil
}

func (in *LocationInput) proposal(proposedBy string) (*models.LocationProposal, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || utf8.RuneCountInString(name) > maxLocationName {
		return nil, response.NewBadRequest("location name must be 1-200 characters")
	}
	address := strings.TrimSpace(in.Address)
	if utf8.RuneCountInString(address) > maxLocationAddress {
		return nil, response.NewBadRequest("location address is too long")
	}
	if (in.Lat == nil) != (in.Lng == nil) {
		return nil, response.NewBadRequest("lat and lng must be given together")
	}
	if err := validateCoordinates(in.Lat, in.Lng); err != nil {
		return nil, err
	}

	link := strings.TrimSpace(in.URL)
	if link != "" {
		u, err := url.Parse(link)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || len(link) > maxLinkURL {
			return nil, response.NewBadRequest("location url must be an http or https link")
		}
	}

	return &models.LocationProposal{
		Name:       name,
		Address:    address,
		Lat:        in.Lat,
		Lng:        in.Lng,
		URL:        link,
		ProposedBy: proposedBy,
	}, nil
}
