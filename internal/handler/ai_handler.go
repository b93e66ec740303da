package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/notegraph/internal/pkg/errcode"
	"github.com/xxxsen/notegraph/internal/pkg/response"
	"github.com/xxxsen/notegraph/internal/service"
)

type AIHandler struct {
	ai    *service.AIService
	links *service.LinkService
}

func NewAIHandler(ai *service.AIService, links *service.LinkService) *AIHandler {
	return &AIHandler{ai: ai, links: links}
}

type aiTagsRequest struct {
	NoteID string `json:"note_id"`
	Text   string `json:"text"`
	Apply  bool   `json:"apply"`
}

type aiRelatedRequest struct {
	Query     string `json:"query"`
	ExcludeID string `json:"exclude_id"`
}

type draftRequest struct {
	Content string `json:"content"`
}

func (h *AIHandler) Tags(c *gin.Context) {
	var req aiTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	result, err := h.ai.SuggestTags(c.Request.Context(), getUserID(c), req.NoteID, req.Text, req.Apply)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *AIHandler) Related(c *gin.Context) {
	var req aiRelatedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	result, err := h.ai.Related(c.Request.Context(), getUserID(c), req.Query, req.ExcludeID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"items": result})
}

// Draft feeds editor content to the note's auto-link session.
func (h *AIHandler) Draft(c *gin.Context) {
	var req draftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	snap, err := h.links.UpdateDraft(c.Request.Context(), getUserID(c), c.Param("id"), req.Content)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, snap)
}

func (h *AIHandler) Links(c *gin.Context) {
	snap, err := h.links.Links(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, snap)
}

func (h *AIHandler) CloseDraft(c *gin.Context) {
	h.links.CloseSession(getUserID(c), c.Param("id"))
	response.Success(c, gin.H{"ok": true})
}
