package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crewdeckhq/crewdeck/internal/saga"
	"github.com/crewdeckhq/crewdeck/internal/services"
	apperrors "github.com/crewdeckhq/crewdeck/pkg/errors"
	"github.com/crewdeckhq/crewdeck/pkg/response"
)

// SagaRunner is the engine surface handlers trigger sagas through.
type SagaRunner interface {
	Run(ctx context.Context, trigger saga.Trigger) (*saga.Report, error)
}

// OnboardingHandler exposes onboarding request intake and review.
type OnboardingHandler struct {
	onboarding *services.OnboardingService
	engine     SagaRunner
}

func NewOnboardingHandler(onboarding *services.OnboardingService, engine SagaRunner) (*OnboardingHandler, error) {
	if onboarding == nil || engine == nil {
		return nil, errors.New("onboarding handler requires service and engine")
	}
	return &OnboardingHandler{onboarding: onboarding, engine: engine}, nil
}

// Submit records a new onboarding request, replacing any pending one for the
// same identity.
func (h *OnboardingHandler) Submit(c *gin.Context) {
	var input services.SubmitRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, apperrors.NewValidation(err.Error()))
		return
	}

	request, err := h.onboarding.Submit(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// ListPending returns requests awaiting review, oldest first.
func (h *OnboardingHandler) ListPending(c *gin.Context) {
	requests, err := h.onboarding.ListPending(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, requests)
}

type reviewInput struct {
	Reviewer string `json:"reviewer" binding:"required"`
	Reason   string `json:"reason"`
}

// Approve runs the onboarding saga for the request and returns its report.
func (h *OnboardingHandler) Approve(c *gin.Context) {
	var input reviewInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, apperrors.NewValidation(err.Error()))
		return
	}

	report, err := h.engine.Run(c.Request.Context(), saga.ApproveOnboarding{
		RequestID: c.Param("id"),
		Reviewer:  input.Reviewer,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}

// Reject marks the request rejected without provisioning anything.
func (h *OnboardingHandler) Reject(c *gin.Context) {
	var input reviewInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, apperrors.NewValidation(err.Error()))
		return
	}

	request, err := h.onboarding.MarkRejected(c.Request.Context(), c.Param("id"), input.Reviewer, input.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, request)
}
