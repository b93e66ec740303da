package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/notegraph/internal/pkg/errcode"
	"github.com/xxxsen/notegraph/internal/pkg/response"
	"github.com/xxxsen/notegraph/internal/service"
)

type AssistantHandler struct {
	assistant *service.AssistantService
}

func NewAssistantHandler(assistant *service.AssistantService) *AssistantHandler {
	return &AssistantHandler{assistant: assistant}
}

type assistantMessageRequest struct {
	Text string `json:"text"`
}

func (h *AssistantHandler) Messages(c *gin.Context) {
	response.Success(c, gin.H{"messages": h.assistant.Messages(getUserID(c))})
}

func (h *AssistantHandler) Send(c *gin.Context) {
	var req assistantMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	result, err := h.assistant.Send(c.Request.Context(), getUserID(c), req.Text)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

// Close is called when the assistant panel closes.
func (h *AssistantHandler) Close(c *gin.Context) {
	h.assistant.Close(getUserID(c))
	response.Success(c, gin.H{"ok": true})
}
