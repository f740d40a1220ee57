package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/forgeml/botkb/internal/pkg/errcode"
	appErr "github.com/forgeml/botkb/internal/pkg/errors"
	"github.com/forgeml/botkb/internal/pkg/response"
)

// handleError maps pipeline errors onto HTTP status and business codes.
// Caller faults become 400s; upstream and storage failures stay 500s.
func handleError(c *gin.Context, err error) {
	logger := logutil.GetLogger(c.Request.Context())
	switch {
	case errors.Is(err, appErr.ErrUnsupportedSourceType):
		response.Error(c, http.StatusBadRequest, errcode.ErrUnsupportedSource, err.Error())
	case errors.Is(err, appErr.ErrEmptySource):
		response.Error(c, http.StatusBadRequest, errcode.ErrEmptySource, err.Error())
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, err.Error())
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, http.StatusNotFound, errcode.ErrNotFound, err.Error())
	case errors.Is(err, appErr.ErrEmbeddingService):
		logger.Error("embedding service failure", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, errcode.ErrEmbeddingFailed, "embedding service failed")
	case errors.Is(err, appErr.ErrVectorStore):
		logger.Error("vector store failure", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, errcode.ErrVectorStoreFailed, "vector store failed")
	default:
		logger.Error("request failed", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, errcode.ErrInternal, "internal error")
	}
}
