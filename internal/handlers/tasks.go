package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crewdeckhq/crewdeck/internal/tasks"
	"github.com/crewdeckhq/crewdeck/pkg/response"
)

// TaskHandler surfaces a member's aggregated task digest.
type TaskHandler struct {
	agg *tasks.Aggregator
}

func NewTaskHandler(agg *tasks.Aggregator) (*TaskHandler, error) {
	if agg == nil {
		return nil, errors.New("task handler requires an aggregator")
	}
	return &TaskHandler{agg: agg}, nil
}

// Assigned returns the member's merged, deduplicated task list.
func (h *TaskHandler) Assigned(c *gin.Context) {
	digest, err := h.agg.AssignedTasks(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, digest)
}
