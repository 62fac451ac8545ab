package jobs

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dealroom-backend/internal/assets"
	"dealroom-backend/internal/questionnaire"
	"dealroom-backend/internal/shared/server/middleware"
	"dealroom-backend/internal/shared/server/respond"
)

// Handler exposes the job endpoints.
type Handler struct {
	Service *Service
}

// RegisterRoutes mounts the job routes on an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/jobs")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.GET("/:id/status", h.status)
	g.POST("/:id/cancel", h.cancel)
	g.POST("/:id/retry", h.retry)
	g.POST("/:id/approve", h.approve)
	g.POST("/:id/uploads", h.uploadDocuments)
	g.POST("/:id/uploads/complete", h.confirmDocuments)
	g.GET("/:id/questionnaire", h.questionnaire)
	g.POST("/:id/questionnaire/:questionId", h.answer)
}

func (h *Handler) create(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", err.Error())
		return
	}
	j, err := h.Service.Create(c.Request.Context(), middleware.OrgIDFromContext(c), middleware.UserIDFromContext(c), CreateInput{
		CompanyID: req.CompanyID,
		Teaser:    req.GenerateTeaser,
		IM:        req.GenerateIM,
		PitchDeck: req.GeneratePitchDeck,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.JSON(c, http.StatusCreated, toJobView(j))
}

func (h *Handler) list(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	items, err := h.Service.List(c.Request.Context(), middleware.OrgIDFromContext(c), limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}
	views := make([]JobView, 0, len(items))
	for _, j := range items {
		views = append(views, toJobView(j))
	}
	respond.OK(c, gin.H{"jobs": views})
}

func (h *Handler) get(c *gin.Context) {
	j, err := h.Service.Get(c.Request.Context(), c.Param("id"), middleware.OrgIDFromContext(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.OK(c, toJobView(j))
}

func (h *Handler) status(c *gin.Context) {
	j, counts, err := h.Service.Status(c.Request.Context(), c.Param("id"), middleware.OrgIDFromContext(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.OK(c, toStatusResponse(j, counts))
}

func (h *Handler) cancel(c *gin.Context) {
	j, err := h.Service.Cancel(c.Request.Context(), c.Param("id"), middleware.OrgIDFromContext(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.OK(c, toJobView(j))
}

func (h *Handler) retry(c *gin.Context) {
	j, err := h.Service.Retry(c.Request.Context(), c.Param("id"), middleware.OrgIDFromContext(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.OK(c, toJobView(j))
}

func (h *Handler) approve(c *gin.Context) {
	j, err := h.Service.Approve(c.Request.Context(), c.Param("id"), middleware.OrgIDFromContext(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.OK(c, toJobView(j))
}

func (h *Handler) uploadDocuments(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid multipart form", err.Error())
		return
	}
	var files []assets.FileInput
	var toClose []interface{ Close() error }
	defer func() {
		for _, f := range toClose {
			f.Close()
		}
	}()
	for _, fh := range form.File["files"] {
		f, err := fh.Open()
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "could not read uploaded file", err.Error())
			return
		}
		toClose = append(toClose, f)
		files = append(files, assets.FileInput{Name: fh.Filename, Reader: f})
	}
	res, err := h.Service.UploadDocuments(c.Request.Context(), c.Param("id"), middleware.OrgIDFromContext(c), files)
	if err != nil && !errors.Is(err, assets.ErrNoFilesAccepted) {
		h.writeError(c, err)
		return
	}
	documentIDs := make([]string, 0, len(res.Accepted))
	for _, a := range res.Accepted {
		documentIDs = append(documentIDs, a.ID)
	}
	skipped := res.Rejected
	if skipped == nil {
		skipped = []assets.RejectedFile{}
	}
	body := gin.H{
		"uploaded":    len(res.Accepted),
		"total":       len(files),
		"documentIds": documentIDs,
		"skipped":     skipped,
	}
	if errors.Is(err, assets.ErrNoFilesAccepted) {
		respond.Error(c, http.StatusUnprocessableEntity, "validation_error", err.Error(), body)
		return
	}
	status := http.StatusCreated
	if len(res.Rejected) > 0 {
		status = http.StatusMultiStatus
	}
	respond.JSON(c, status, body)
}

func (h *Handler) confirmDocuments(c *gin.Context) {
	j, err := h.Service.ConfirmDocuments(c.Request.Context(), c.Param("id"), middleware.OrgIDFromContext(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.OK(c, toJobView(j))
}

func (h *Handler) questionnaire(c *gin.Context) {
	items, answered, total, err := h.Service.QuestionnaireItems(c.Request.Context(), c.Param("id"), middleware.OrgIDFromContext(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.OK(c, toQuestionnaireResponse(items, answered, total))
}

func (h *Handler) answer(c *gin.Context) {
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", err.Error())
		return
	}
	res, err := h.Service.AnswerQuestion(c.Request.Context(), c.Param("id"), middleware.OrgIDFromContext(c), c.Param("questionId"), req.Answer)
	if err != nil {
		h.writeError(c, err)
		return
	}
	respond.OK(c, AnswerResponse{Answered: res.Answered, Total: res.Total, CompletionPct: res.CompletionPct})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrCompanyNotFound),
		errors.Is(err, questionnaire.ErrUnknownQuestion):
		respond.Error(c, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, ErrForbidden):
		respond.Error(c, http.StatusForbidden, "forbidden", err.Error(), nil)
	case errors.Is(err, ErrInvalidState):
		respond.Error(c, http.StatusConflict, "invalid_state", err.Error(), nil)
	case errors.Is(err, ErrNoOutputsRequested), errors.Is(err, ErrNoDocuments),
		errors.Is(err, assets.ErrNoFiles), errors.Is(err, questionnaire.ErrEmptyAnswer):
		respond.Error(c, http.StatusUnprocessableEntity, "validation_error", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "unexpected error", nil)
	}
}
