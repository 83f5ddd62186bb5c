package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crewdeckhq/crewdeck/internal/integrations"
	"github.com/crewdeckhq/crewdeck/internal/services"
	apperrors "github.com/crewdeckhq/crewdeck/pkg/errors"
	"github.com/crewdeckhq/crewdeck/pkg/response"
)

// MemberHandler exposes member account operations forwarded by the chat
// layer, currently connecting a task-tracker account.
type MemberHandler struct {
	members *services.MemberService
	tracker integrations.TrackerClient
}

func NewMemberHandler(members *services.MemberService, tracker integrations.TrackerClient) (*MemberHandler, error) {
	if members == nil || tracker == nil {
		return nil, errors.New("member handler requires service and tracker client")
	}
	return &MemberHandler{members: members, tracker: tracker}, nil
}

type trackerTokenInput struct {
	Token string `json:"token" binding:"required"`
	// TrackerUserID links the member to their tracker account for
	// assignee-scoped queries.
	TrackerUserID string `json:"tracker_user_id"`
}

// ConnectTracker validates and stores the member's task-tracker token so
// the task digest can query on their behalf.
func (h *MemberHandler) ConnectTracker(c *gin.Context) {
	var input trackerTokenInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, apperrors.NewValidation(err.Error()))
		return
	}

	valid, err := h.tracker.ValidateCredential(c.Request.Context(), input.Token)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !valid {
		response.Error(c, apperrors.ErrTrackerCredential)
		return
	}

	memberID := c.Param("id")
	if err := h.members.SetTrackerToken(c.Request.Context(), memberID, input.Token); err != nil {
		response.Error(c, err)
		return
	}
	if input.TrackerUserID != "" {
		refs := services.IntegrationRefs{TrackerUserID: &input.TrackerUserID}
		if err := h.members.UpdateIntegrationRefs(c.Request.Context(), memberID, refs); err != nil {
			response.Error(c, err)
			return
		}
	}
	response.Success(c, http.StatusOK, gin.H{"connected": true})
}
