package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/notegraph/internal/graph"
	"github.com/xxxsen/notegraph/internal/pkg/errcode"
	"github.com/xxxsen/notegraph/internal/pkg/response"
	"github.com/xxxsen/notegraph/internal/service"
)

type GraphHandler struct {
	graphs *service.GraphService
}

func NewGraphHandler(graphs *service.GraphService) *GraphHandler {
	return &GraphHandler{graphs: graphs}
}

// Enter rebuilds the graph; open_note_id names the note the user came from.
func (h *GraphHandler) Enter(c *gin.Context) {
	view, err := h.graphs.Enter(c.Request.Context(), getUserID(c), c.Query("open_note_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, view)
}

func (h *GraphHandler) Interact(c *gin.Context) {
	var ev graph.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	result, err := h.graphs.Interact(c.Request.Context(), getUserID(c), ev)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *GraphHandler) Leave(c *gin.Context) {
	h.graphs.Leave(getUserID(c))
	response.Success(c, gin.H{"ok": true})
}
