package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crewdeckhq/crewdeck/internal/saga"
	"github.com/crewdeckhq/crewdeck/internal/services"
	apperrors "github.com/crewdeckhq/crewdeck/pkg/errors"
	"github.com/crewdeckhq/crewdeck/pkg/response"
)

// TeamHandler exposes team provisioning and membership operations. Every
// mutation goes through the saga engine so the caller always gets a step
// report.
type TeamHandler struct {
	teams  *services.TeamService
	engine SagaRunner
}

func NewTeamHandler(teams *services.TeamService, engine SagaRunner) (*TeamHandler, error) {
	if teams == nil || engine == nil {
		return nil, errors.New("team handler requires service and engine")
	}
	return &TeamHandler{teams: teams, engine: engine}, nil
}

// Create provisions a team and its chat/document infrastructure.
func (h *TeamHandler) Create(c *gin.Context) {
	var trigger saga.CreateTeam
	if err := c.ShouldBindJSON(&trigger); err != nil {
		response.Error(c, apperrors.NewValidation(err.Error()))
		return
	}

	report, err := h.engine.Run(c.Request.Context(), trigger)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, report)
}

// Get returns one team with its external infrastructure references.
func (h *TeamHandler) Get(c *gin.Context) {
	team, err := h.teams.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, team)
}

type addMemberInput struct {
	MemberID      string `json:"member_id" binding:"required"`
	RoleInTeam    string `json:"role_in_team"`
	PromoteToLead bool   `json:"promote_to_lead"`
}

// AddMember upserts a membership and fans out the side effects.
func (h *TeamHandler) AddMember(c *gin.Context) {
	var input addMemberInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, apperrors.NewValidation(err.Error()))
		return
	}

	report, err := h.engine.Run(c.Request.Context(), saga.AddMemberToTeam{
		TeamID:        c.Param("id"),
		MemberID:      input.MemberID,
		RoleInTeam:    input.RoleInTeam,
		PromoteToLead: input.PromoteToLead,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}

type setLeadInput struct {
	MemberID string `json:"member_id" binding:"required"`
}

// SetLead promotes an existing member to team lead.
func (h *TeamHandler) SetLead(c *gin.Context) {
	var input setLeadInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, apperrors.NewValidation(err.Error()))
		return
	}

	report, err := h.engine.Run(c.Request.Context(), saga.PromoteToLead{
		TeamID:   c.Param("id"),
		MemberID: input.MemberID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}
