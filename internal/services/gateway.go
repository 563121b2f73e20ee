package services

import (
	"errors"

	"github.com/rdychk/rdychk/internal/metrics"
	"github.com/rdychk/rdychk/pkg/logger"
	"github.com/rdychk/rdychk/pkg/response"
	"github.com/rs/zerolog"
)

// Gateway operation names, used for logs and the mutations counter.
const (
	OpCreateGroup    = "createGroup"
	OpUpdateSettings = "updateSettings"
	OpJoin           = "join"
	OpReclaim        = "reclaim"
	OpToggleReady    = "toggleReady"
	OpUpdateMember   = "updateMember"
	OpLeave          = "leave"
	OpPromote        = "promoteToAdmin"
	OpKick           = "kickMember"
	OpUpdateLocation = "updateLocation"
	OpVoteLocation   = "voteLocation"
)

// opScope is what a gateway operation acted on, as far as it got.
type opScope struct {
	slug     string
	groupID  string
	memberID string
}

func callerScope(c *Caller) opScope {
	return opScope{slug: c.Slug(), groupID: c.GroupID(), memberID: c.MemberID()}
}

func (s opScope) fields(e *zerolog.Event) *zerolog.Event {
	if s.slug != "" {
		e = e.Str("slug", s.slug)
	}
	if s.groupID != "" {
		e = e.Str("group_id", s.groupID)
	}
	if s.memberID != "" {
		e = e.Str("member_id", s.memberID)
	}
	return e
}

// finish records the outcome of a gateway operation. Errors that are not
// already an *AppError come from the store and are wrapped as external
// failures carrying the store's message.
func finish(op string, scope opScope, err error) error {
	if err != nil {
		log := logger.Operation(op)
		var appErr *response.AppError
		if !errors.As(err, &appErr) {
			scope.fields(log.Error().Err(err)).Msg("store failure")
			err = response.NewServerError(err.Error())
		} else if appErr.Code == response.CodeExternal {
			scope.fields(log.Error().Err(err)).Msg("external failure")
		} else {
			scope.fields(log.Debug().Str("code", appErr.Code)).Msg(appErr.Message)
		}
	}
	metrics.ObserveMutation(op, err)
	return err
}
