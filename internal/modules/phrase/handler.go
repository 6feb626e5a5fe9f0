package phrase

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/hanziloop/core/internal/models"
	"github.com/hanziloop/core/internal/pkg/pagination"
	"github.com/hanziloop/core/internal/pkg/response"
	"gorm.io/gorm"
)

type Handler struct {
	svc *Service
	db  *gorm.DB
}

func NewHandler(svc *Service, db *gorm.DB) *Handler {
	return &Handler{svc: svc, db: db}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/phrases")
	g.POST("/get-or-generate", h.getOrGenerate)
	g.GET("/logs", h.listLogs)
}

// POST /phrases/get-or-generate
func (h *Handler) getOrGenerate(c *gin.Context) {
	var dto getOrGenerateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	meta := CallerMeta{
		CallerID:  dto.CallerID,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}

	result, err := h.svc.GetOrGenerate(c.Request.Context(), dto.RawPhraseRequest, meta)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidLevel), errors.Is(err, ErrInvalidField):
			response.UnprocessableEntity(c, err.Error())
		case errors.Is(err, ErrGenerationUnavailable):
			response.ServiceUnavailable(c, "phrase generation is temporarily unavailable, please try again")
		case errors.Is(err, ErrNoValidPhrases):
			response.ServiceUnavailable(c, "no valid phrase could be generated, please try again")
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.OK(c, result)
}

// GET /phrases/logs?page=&size=&error_type=&caller_id=
func (h *Handler) listLogs(c *gin.Context) {
	q := pagination.FromContext(c)

	query := h.db.Model(&models.GenerationLogModel{}).Order("created_at DESC")
	if errorType := c.Query("error_type"); errorType != "" {
		query = query.Where("error_type = ?", errorType)
	}
	if callerID := c.Query("caller_id"); callerID != "" {
		query = query.Where("caller_id = ?", callerID)
	}

	var logs []models.GenerationLogModel
	page, err := pagination.Paginate(query, q, &logs)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, logs, page)
}
