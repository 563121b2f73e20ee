package models

import "time"

const (
	VoteDown = -1
	VoteUp   = 1
)

// LocationVote is one member's opinion of the group's current location.
// At most one row exists per (group, member).
type LocationVote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	GroupID   string    `gorm:"size:36;not null;uniqueIndex:idx_vote_group_member" json:"group_id"`
	MemberID  string    `gorm:"size:36;not null;uniqueIndex:idx_vote_group_member;index" json:"member_id"`
	Vote      int       `gorm:"not null" json:"vote"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (LocationVote) TableName() string { return "location_votes" }

// VoteTally summarises the votes on a group's location.
type VoteTally struct {
	Up    int `json:"up"`
	Down  int `json:"down"`
	Score int `json:"score"`
}

func TallyVotes(votes []LocationVote) VoteTally {
	var t VoteTally
	for _, v := range votes {
		switch v.Vote {
		case VoteUp:
			t.Up++
		case VoteDown:
			t.Down++
		}
	}
	t.Score = t.Up - t.Down
	return t
}
