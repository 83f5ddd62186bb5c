package services

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/crewdeckhq/crewdeck/pkg/errors"
)

var (
	// ErrMemberNotFound indicates the requested member does not exist.
	ErrMemberNotFound = apperrors.New("MEMBER_NOT_FOUND", "Member not found", http.StatusNotFound)
	// ErrTeamNotFound indicates the requested team does not exist.
	ErrTeamNotFound = apperrors.New("TEAM_NOT_FOUND", "Team not found", http.StatusNotFound)
	// ErrRequestNotFound indicates no onboarding request matches the identifier.
	ErrRequestNotFound = apperrors.New("REQUEST_NOT_FOUND", "Onboarding request not found", http.StatusNotFound)
	// ErrRequestNotPending signals the request was already reviewed and cannot
	// be approved or rejected again.
	ErrRequestNotPending = apperrors.New("REQUEST_NOT_PENDING", "Onboarding request is not pending", http.StatusConflict)
	// ErrTeamNameTaken signals the team name uniqueness invariant was violated.
	ErrTeamNameTaken = apperrors.New("TEAM_NAME_TAKEN", "A team with this name already exists", http.StatusConflict)
)

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") ||
		strings.Contains(lower, "duplicate") ||
		strings.Contains(lower, "constraint")
}

// ErrTeamMembershipEmpty signals a team has no active members to draw an
// interim lead from.
var ErrTeamMembershipEmpty = apperrors.New("TEAM_EMPTY", "Team has no active members", http.StatusConflict)
