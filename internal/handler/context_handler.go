package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forgeml/botkb/internal/pkg/errcode"
	"github.com/forgeml/botkb/internal/pkg/response"
	"github.com/forgeml/botkb/internal/service"
)

type contextRequest struct {
	ChatbotID string `json:"chatbot_id"`
	Query     string `json:"query"`
}

type ContextHandler struct {
	svc *service.ContextService
}

func NewContextHandler(svc *service.ContextService) *ContextHandler {
	return &ContextHandler{svc: svc}
}

func (h *ContextHandler) BuildContext(c *gin.Context) {
	req := &contextRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "invalid request body")
		return
	}
	result, err := h.svc.BuildContext(c.Request.Context(), req.ChatbotID, req.Query)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}
