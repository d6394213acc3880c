package service

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/survivorpool/survivorpool/internal/store"
)

// UserView is the profile shape returned by user operations.
type UserView struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"display_name"`
	AccountStatus string    `json:"account_status"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	DefaultPool   *string   `json:"default_pool"`
}

func userView(u *store.User) *UserView {
	var defaultPool *string
	if u.DefaultPool != nil {
		hex := u.DefaultPool.Hex()
		defaultPool = &hex
	}
	return &UserView{
		ID:            u.ID.Hex(),
		Username:      u.Username,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		AccountStatus: u.AccountStatus,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
		DefaultPool:   defaultPool,
	}
}

// Profile renders a stored user as the wire profile shape.
func Profile(u *store.User) *UserView { return userView(u) }

// LoginResult carries the profile plus the minted credential.
type LoginResult struct {
	User  *UserView `json:"user"`
	Token string    `json:"token"`
}

// SearchResult is one row of the user search.
type SearchResult struct {
	ID               string  `json:"id"`
	Username         string  `json:"username"`
	DisplayName      string  `json:"display_name"`
	MembershipStatus *string `json:"membership_status,omitempty"`
}

// SeasonView is the listing shape for seasons.
type SeasonView struct {
	ID           string `json:"id"`
	SeasonName   string `json:"season_name"`
	SeasonNumber int    `json:"season_number"`
}

// PoolView is the full pool shape.
type PoolView struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	OwnerID              string         `json:"owner_id"`
	SeasonID             string         `json:"season_id"`
	CreatedAt            time.Time      `json:"created_at"`
	CurrentWeek          int            `json:"current_week"`
	StartWeek            int            `json:"start_week"`
	Settings             map[string]any `json:"settings"`
	Status               string         `json:"status"`
	IsCompetitive        bool           `json:"is_competitive"`
	CompetitiveSinceWeek *int           `json:"competitive_since_week"`
	CompletedWeek        *int           `json:"completed_week"`
	CompletedAt          *time.Time     `json:"completed_at"`
	WinnerUserIDs        []string       `json:"winner_user_ids"`
	InvitedUserIDs       []string       `json:"invited_user_ids"`
}

func poolView(p *store.Pool, invitedUserIDs []string) *PoolView {
	winners := make([]string, 0, len(p.Winners))
	for _, id := range p.Winners {
		winners = append(winners, id.Hex())
	}
	if invitedUserIDs == nil {
		invitedUserIDs = []string{}
	}
	settings := p.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	return &PoolView{
		ID:                   p.ID.Hex(),
		Name:                 p.Name,
		OwnerID:              p.OwnerID.Hex(),
		SeasonID:             p.SeasonID.Hex(),
		CreatedAt:            p.CreatedAt,
		CurrentWeek:          p.CurrentWeek,
		StartWeek:            p.StartWeek,
		Settings:             settings,
		Status:               p.Status,
		IsCompetitive:        p.IsCompetitive,
		CompetitiveSinceWeek: p.CompetitiveSinceWeek,
		CompletedWeek:        p.CompletedWeek,
		CompletedAt:          p.CompletedAt,
		WinnerUserIDs:        winners,
		InvitedUserIDs:       invitedUserIDs,
	}
}

// MemberSummary is the membership joined with the user profile.
type MemberSummary struct {
	UserID            string     `json:"user_id"`
	DisplayName       string     `json:"display_name"`
	Email             string     `json:"email"`
	Role              string     `json:"role"`
	Status            string     `json:"status"`
	JoinedAt          *time.Time `json:"joined_at"`
	InvitedAt         *time.Time `json:"invited_at"`
	EliminationReason *string    `json:"elimination_reason"`
	EliminatedWeek    *int       `json:"eliminated_week"`
	EliminatedDate    *time.Time `json:"eliminated_date"`
	FinalRank         *int       `json:"final_rank"`
	FinishedWeek      *int       `json:"finished_week"`
	FinishedDate      *time.Time `json:"finished_date"`
}

func memberSummary(m *store.Membership, u *store.User) *MemberSummary {
	return &MemberSummary{
		UserID:            m.UserID.Hex(),
		DisplayName:       u.DisplayLabel(),
		Email:             u.Email,
		Role:              m.Role,
		Status:            m.Status,
		JoinedAt:          m.JoinedAt,
		InvitedAt:         m.InvitedAt,
		EliminationReason: m.EliminationReason,
		EliminatedWeek:    m.EliminatedWeek,
		EliminatedDate:    m.EliminatedDate,
		FinalRank:         m.FinalRank,
		FinishedWeek:      m.FinishedWeek,
		FinishedDate:      m.FinishedDate,
	}
}

// MembershipList is the owner's view of every membership in the pool.
type MembershipList struct {
	PoolID  string           `json:"pool_id"`
	Members []*MemberSummary `json:"members"`
}

// InviteResult wraps the affected member summary.
type InviteResult struct {
	Member *MemberSummary `json:"member"`
}

// PendingInvite is one row of a user's open invitations.
type PendingInvite struct {
	PoolID           string     `json:"pool_id"`
	PoolName         string     `json:"pool_name"`
	OwnerDisplayName string     `json:"owner_display_name"`
	SeasonID         string     `json:"season_id"`
	SeasonNumber     *int       `json:"season_number"`
	InvitedAt        *time.Time `json:"invited_at"`
}

// PendingInvites wraps the invite listing.
type PendingInvites struct {
	Invites []*PendingInvite `json:"invites"`
}

// PickView is the locked-pick receipt.
type PickView struct {
	PickID       string    `json:"pick_id"`
	PoolID       string    `json:"pool_id"`
	UserID       string    `json:"user_id"`
	ContestantID string    `json:"contestant_id"`
	Week         int       `json:"week"`
	LockedAt     time.Time `json:"locked_at"`
}

// CurrentPickSummary describes the caller's pick for the current week.
type CurrentPickSummary struct {
	PickID         string    `json:"pick_id"`
	ContestantID   string    `json:"contestant_id"`
	ContestantName string    `json:"contestant_name"`
	Week           int       `json:"week"`
	LockedAt       time.Time `json:"locked_at"`
}

// AvailableContestant is one pickable contestant with tribe context.
type AvailableContestant struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	TribeName  *string `json:"tribe_name"`
	TribeColor *string `json:"tribe_color"`
}

// WinnerSummary names one pool winner.
type WinnerSummary struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// AvailableContestantsView is the weekly picks screen payload.
type AvailableContestantsView struct {
	PoolID            string                 `json:"pool_id"`
	UserID            string                 `json:"user_id"`
	CurrentWeek       int                    `json:"current_week"`
	Contestants       []*AvailableContestant `json:"contestants"`
	Score             int                    `json:"score"`
	CurrentPick       *CurrentPickSummary    `json:"current_pick"`
	IsEliminated      bool                   `json:"is_eliminated"`
	EliminationReason *string                `json:"elimination_reason"`
	EliminatedWeek    *int                   `json:"eliminated_week"`
	IsWinner          bool                   `json:"is_winner"`
	PoolStatus        string                 `json:"pool_status"`
	PoolCompletedWeek *int                   `json:"pool_completed_week"`
	PoolCompletedAt   *time.Time             `json:"pool_completed_at"`
	Winners           []*WinnerSummary       `json:"winners"`
	DidTie            bool                   `json:"did_tie"`
}

// ContestantDetail is the full contestant card.
type ContestantDetail struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Age        *int    `json:"age"`
	Occupation *string `json:"occupation"`
	Hometown   *string `json:"hometown"`
	TribeName  *string `json:"tribe_name"`
	TribeColor *string `json:"tribe_color"`
}

// AdvantageView is one publicly revealed advantage.
type AdvantageView struct {
	ID               string  `json:"id"`
	DisplayName      string  `json:"advantage_display_name"`
	Type             string  `json:"advantage_type"`
	AcquisitionNotes *string `json:"acquisition_notes"`
	EndNotes         *string `json:"end_notes"`
	ObtainedWeek     *int    `json:"obtained_week"`
	EndWeek          *int    `json:"end_week"`
}

// ContestantDetailView is the detail endpoint payload.
type ContestantDetailView struct {
	PoolID            string              `json:"pool_id"`
	UserID            string              `json:"user_id"`
	Contestant        *ContestantDetail   `json:"contestant"`
	IsAvailable       bool                `json:"is_available"`
	EliminatedWeek    *int                `json:"eliminated_week"`
	AlreadyPickedWeek *int                `json:"already_picked_week"`
	CurrentPick       *CurrentPickSummary `json:"current_pick"`
	Advantages        []*AdvantageView    `json:"advantages"`
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank              int        `json:"rank"`
	UserID            string     `json:"user_id"`
	DisplayName       string     `json:"display_name"`
	Score             int        `json:"score"`
	Status            string     `json:"status"`
	IsWinner          bool       `json:"is_winner"`
	EliminationReason *string    `json:"elimination_reason"`
	EliminatedWeek    *int       `json:"eliminated_week"`
	FinalRank         *int       `json:"final_rank"`
	FinishedWeek      *int       `json:"finished_week"`
	FinishedDate      *time.Time `json:"finished_date"`
}

// LeaderboardView is the ranked pool standing.
type LeaderboardView struct {
	PoolID            string              `json:"pool_id"`
	CurrentWeek       int                 `json:"current_week"`
	PoolStatus        string              `json:"pool_status"`
	PoolCompletedWeek *int                `json:"pool_completed_week"`
	PoolCompletedAt   *time.Time          `json:"pool_completed_at"`
	Entries           []*LeaderboardEntry `json:"entries"`
	Winners           []*WinnerSummary    `json:"winners"`
	DidTie            bool                `json:"did_tie"`
}

// MissingMember names an active member without a current-week pick.
type MissingMember struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// AdvanceStatusView is the owner's pre-advance dashboard.
type AdvanceStatusView struct {
	CurrentWeek       int              `json:"current_week"`
	ActiveMemberCount int              `json:"active_member_count"`
	LockedCount       int              `json:"locked_count"`
	MissingCount      int              `json:"missing_count"`
	MissingMembers    []*MissingMember `json:"missing_members"`
	CanAdvance        bool             `json:"can_advance"`
}

// EliminatedMember is one elimination reported by an advance.
type EliminatedMember struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Reason      string `json:"reason"`
}

// AdvanceResult is the advance-week report.
type AdvanceResult struct {
	NewCurrentWeek int                 `json:"new_current_week"`
	Eliminations   []*EliminatedMember `json:"eliminations"`
	PoolCompleted  bool                `json:"pool_completed"`
	Winners        []*WinnerSummary    `json:"winners"`
}

func strp(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func hexIDs(ids []primitive.ObjectID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Hex())
	}
	return out
}
