package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/forgeml/botkb/internal/model"
	"github.com/forgeml/botkb/internal/pkg/errcode"
	"github.com/forgeml/botkb/internal/pkg/response"
	"github.com/forgeml/botkb/internal/service"
)

type trainData struct {
	Type  string         `json:"type"`
	Text  string         `json:"content"`
	File  *model.FileRef `json:"file"`
	URLs  []string       `json:"urls"`
	Pairs []model.QAPair `json:"pairs"`
}

type trainRequest struct {
	ChatbotID string     `json:"chatbot_id"`
	UserID    string     `json:"user_id"`
	TrainData *trainData `json:"train_data"`
}

type TrainHandler struct {
	svc *service.TrainService
}

func NewTrainHandler(svc *service.TrainService) *TrainHandler {
	return &TrainHandler{svc: svc}
}

func (h *TrainHandler) Train(c *gin.Context) {
	req := &trainRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "invalid request body")
		return
	}
	if req.TrainData == nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "train_data is required")
		return
	}
	src := &model.Source{
		ChatbotID: req.ChatbotID,
		UserID:    req.UserID,
		Type:      req.TrainData.Type,
		Text:      req.TrainData.Text,
		File:      req.TrainData.File,
		URLs:      req.TrainData.URLs,
		Pairs:     req.TrainData.Pairs,
	}
	result, err := h.svc.Train(c.Request.Context(), src)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *TrainHandler) History(c *gin.Context) {
	chatbotID := c.Query("chatbot_id")
	sourceType := c.Query("source_type")
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := h.svc.History(c.Request.Context(), chatbotID, sourceType, offset, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	if entries == nil {
		entries = []*model.TrainingHistory{}
	}
	response.Success(c, gin.H{"items": entries})
}
