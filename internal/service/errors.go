package service

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrTeamNotFound         = errors.New("team not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrScheduleNotFound     = errors.New("schedule not found")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRegistrationFailed   = errors.New("registration failed: email already exists")
	ErrInvalidInviteCode    = errors.New("invalid or expired invite code")
	ErrNotTeamMember        = errors.New("user is not a member of this team")
	ErrNotOwner             = errors.New("operation allowed only for the resource owner")
	ErrInvalidMessage       = errors.New("invalid message content or type")
	ErrInvalidTeamName      = errors.New("team name cannot be empty")
	ErrInvalidSchedule      = errors.New("invalid schedule data")
	ErrInvalidRange         = errors.New("invalid time range: start must be before end")
	ErrScheduleConflict     = errors.New("schedule conflicts with confirmed commitments")
	ErrInternalServer       = errors.New("internal server error")
)
