package store

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document vocabulary shared by every collection.
const (
	AccountStatusActive   = "active"
	AccountStatusInactive = "inactive"

	PoolStatusOpen      = "open"
	PoolStatusCompleted = "completed"

	RoleOwner  = "owner"
	RoleMember = "member"

	MembershipStatusInvited    = "invited"
	MembershipStatusActive     = "active"
	MembershipStatusDeclined   = "declined"
	MembershipStatusEliminated = "eliminated"
	MembershipStatusWinner     = "winner"

	EliminationReasonMissedPick = "missed_pick"
	EliminationReasonContestant = "contestant_voted_out"
	EliminationReasonNoOptions  = "no_options_left"

	PickResultPending = "pending"
)

// User is the users collection document.
type User struct {
	ID                  primitive.ObjectID  `bson:"_id,omitempty"`
	Username            string              `bson:"username"`
	Email               string              `bson:"email"`
	DisplayName         string              `bson:"display_name"`
	PasswordHash        string              `bson:"password_hash"`
	AccountStatus       string              `bson:"account_status"`
	EmailVerified       bool                `bson:"email_verified"`
	CreatedAt           time.Time           `bson:"created_at"`
	DefaultPool         *primitive.ObjectID `bson:"default_pool"`
	FailedLoginAttempts int                 `bson:"failed_login_attempts"`
	LockedUntil         *time.Time          `bson:"locked_until"`
	TokenInvalidatedAt  *time.Time          `bson:"token_invalidated_at"`
	VerificationToken   *string             `bson:"verification_token"`
	ResetToken          *string             `bson:"reset_token"`
	ResetTokenExpiresAt *time.Time          `bson:"reset_token_expires_at"`
}

// DisplayLabel is the name shown for the user in member-facing views.
func (u *User) DisplayLabel() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Email != "" {
		return u.Email
	}
	return u.ID.Hex()
}

// Contestant is one cast member inside a season document.
type Contestant struct {
	ID         string  `bson:"id"`
	Name       string  `bson:"name"`
	Age        *int    `bson:"age,omitempty"`
	Occupation *string `bson:"occupation,omitempty"`
	Hometown   *string `bson:"hometown,omitempty"`
}

// Elimination records a contestant voted out at a given week.
type Elimination struct {
	Week                   int    `bson:"week"`
	EliminatedContestantID string `bson:"eliminated_contestant_id"`
}

// Tribe is one tribe grouping inside a timeline entry.
type Tribe struct {
	Name    string   `bson:"name"`
	Color   string   `bson:"color"`
	Members []string `bson:"members"`
}

// TribeTimelineEntry describes the tribe layout in effect from a given week.
type TribeTimelineEntry struct {
	Week   int     `bson:"week"`
	Tribes []Tribe `bson:"tribes"`
}

// Advantage is a hidden advantage acquired by a contestant.
type Advantage struct {
	ID               string  `bson:"id"`
	ContestantID     string  `bson:"contestant_id"`
	DisplayName      string  `bson:"advantage_display_name"`
	Type             string  `bson:"advantage_type"`
	AcquisitionNotes *string `bson:"acquisition_notes,omitempty"`
	EndNotes         *string `bson:"end_notes,omitempty"`
	ObtainedWeek     *int    `bson:"obtained_week,omitempty"`
	EndWeek          *int    `bson:"end_week,omitempty"`
}

// Season is the seasons collection document. Read-only to this system.
type Season struct {
	ID            primitive.ObjectID   `bson:"_id,omitempty"`
	SeasonName    string               `bson:"season_name"`
	SeasonNumber  int                  `bson:"season_number"`
	Contestants   []Contestant         `bson:"contestants"`
	Eliminations  []Elimination        `bson:"eliminations"`
	TribeTimeline []TribeTimelineEntry `bson:"tribe_timeline"`
	Advantages    []Advantage          `bson:"advantages"`
}

// Pool is the pools collection document.
type Pool struct {
	ID                   primitive.ObjectID   `bson:"_id,omitempty"`
	Name                 string               `bson:"name"`
	OwnerID              primitive.ObjectID   `bson:"owner_id"`
	SeasonID             primitive.ObjectID   `bson:"season_id"`
	CreatedAt            time.Time            `bson:"created_at"`
	CurrentWeek          int                  `bson:"current_week"`
	StartWeek            int                  `bson:"start_week"`
	Settings             map[string]any       `bson:"settings"`
	Status               string               `bson:"status"`
	IsCompetitive        bool                 `bson:"is_competitive"`
	CompetitiveSinceWeek *int                 `bson:"competitive_since_week"`
	CompletedWeek        *int                 `bson:"completed_week"`
	CompletedAt          *time.Time           `bson:"completed_at"`
	Winners              []primitive.ObjectID `bson:"winners"`
}

// Membership is the pool_memberships collection document, one per (pool, user).
type Membership struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty"`
	PoolID               primitive.ObjectID `bson:"pool_id"`
	UserID               primitive.ObjectID `bson:"user_id"`
	Role                 string             `bson:"role"`
	Status               string             `bson:"status"`
	JoinedAt             *time.Time         `bson:"joined_at"`
	InvitedAt            *time.Time         `bson:"invited_at"`
	EliminationReason    *string            `bson:"elimination_reason"`
	EliminatedWeek       *int               `bson:"eliminated_week"`
	EliminatedDate       *time.Time         `bson:"eliminated_date"`
	FinalRank            *int               `bson:"final_rank"`
	FinishedWeek         *int               `bson:"finished_week"`
	FinishedDate         *time.Time         `bson:"finished_date"`
	Score                int                `bson:"score"`
	AvailableContestants []string           `bson:"available_contestants"`
}

// Pick is the picks collection document.
type Pick struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	PoolID       primitive.ObjectID `bson:"pool_id"`
	UserID       primitive.ObjectID `bson:"user_id"`
	ContestantID string             `bson:"contestant_id"`
	Week         int                `bson:"week"`
	CreatedAt    time.Time          `bson:"created_at"`
	Result       string             `bson:"result"`
}
