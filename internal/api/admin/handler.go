package admin

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/liliang-cn/ragmentor/internal/api/middleware"
	"github.com/liliang-cn/ragmentor/internal/api/respond"
	"github.com/liliang-cn/ragmentor/internal/classifier"
	"github.com/liliang-cn/ragmentor/internal/domain"
	"github.com/liliang-cn/ragmentor/internal/service"
)

// MaxUploadBytes bounds a single uploaded document
const MaxUploadBytes = 32 << 20

// Handler handles document, question, topic and statistics requests
type Handler struct {
	documentService   *service.DocumentService
	questionService   *service.QuestionService
	statisticsService *service.StatisticsService
	classifier        *classifier.Classifier
}

// NewHandler creates a new admin handler
func NewHandler(
	documentService *service.DocumentService,
	questionService *service.QuestionService,
	statisticsService *service.StatisticsService,
	topics *classifier.Classifier,
) *Handler {
	return &Handler{
		documentService:   documentService,
		questionService:   questionService,
		statisticsService: statisticsService,
		classifier:        topics,
	}
}

// RegisterRoutes registers routes open to every resolved user; the group
// must run middleware.RequireUser
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	documents := r.Group("/documents")
	{
		documents.POST("", h.UploadDocument)
		documents.GET("", h.ListDocuments)
		documents.GET("/collection", h.CollectionInfo)
	}

	topics := r.Group("/topics")
	{
		topics.GET("", h.ListTopics)
		topics.GET("/suggest", h.SuggestTopics)
		topics.GET("/:name", h.GetTopic)
	}
}

// RegisterAdminRoutes registers destructive and reporting routes; the
// group must run middleware.RequireRole(domain.UserRoleAdmin)
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	documents := r.Group("/documents")
	{
		documents.GET("/chunks", h.ListChunks)
		documents.DELETE("", h.DeleteAllDocuments)
		documents.DELETE("/:external_id", h.DeleteDocument)
	}

	questions := r.Group("/questions")
	{
		questions.GET("", h.ListQuestions)
		questions.GET("/stats", h.QuestionStats)
		questions.GET("/topics/popular", h.PopularTopics)
	}

	r.GET("/statistics/summary", h.StatisticsSummary)
}

// RegisterPublicRoutes registers routes that need no credential
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.POST("/questions", h.SubmitQuestion)
	r.GET("/statistics/public", h.PublicStatistics)
}

// Document handlers

func (h *Handler) UploadDocument(c *gin.Context) {
	user, ok := middleware.UserFrom(c)
	if !ok {
		respond.Error(c, domain.ErrUnauthorized)
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, fmt.Errorf("%w: file is required", domain.ErrInvalidRequest))
		return
	}
	if file.Size > MaxUploadBytes {
		respond.Error(c, fmt.Errorf("%w: file exceeds %d bytes", domain.ErrInvalidRequest, MaxUploadBytes))
		return
	}

	src, err := file.Open()
	if err != nil {
		respond.Error(c, fmt.Errorf("%w: failed to open uploaded file", domain.ErrInvalidRequest))
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, MaxUploadBytes))
	if err != nil {
		respond.Error(c, fmt.Errorf("%w: failed to read uploaded file", domain.ErrInvalidRequest))
		return
	}

	doc, err := h.documentService.Upload(c.Request.Context(), user.ID, file.Filename, file.Header.Get("Content-Type"), data)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, doc)
}

func (h *Handler) ListDocuments(c *gin.Context) {
	result, err := h.documentService.List(c.Request.Context(), pageFrom(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) DeleteDocument(c *gin.Context) {
	result, err := h.documentService.Delete(c.Request.Context(), c.Param("external_id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) DeleteAllDocuments(c *gin.Context) {
	c.JSON(http.StatusOK, h.documentService.DeleteAll(c.Request.Context()))
}

func (h *Handler) CollectionInfo(c *gin.Context) {
	c.JSON(http.StatusOK, h.documentService.CollectionInfo())
}

func (h *Handler) ListChunks(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	listing, err := h.documentService.ListChunks(c.Request.Context(), limit)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// Question handlers

func (h *Handler) SubmitQuestion(c *gin.Context) {
	var req domain.QuestionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
		return
	}

	q, err := h.questionService.Submit(c.Request.Context(), req)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

func (h *Handler) ListQuestions(c *gin.Context) {
	result, err := h.questionService.List(c.Request.Context(), c.Query("topic"), pageFrom(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) QuestionStats(c *gin.Context) {
	stats, err := h.questionService.Stats(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) PopularTopics(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5"))
	topics, err := h.questionService.Popular(c.Request.Context(), limit)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"topics": topics})
}

// Topic handlers

func (h *Handler) ListTopics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"topics": h.classifier.Topics()})
}

func (h *Handler) SuggestTopics(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5"))
	c.JSON(http.StatusOK, gin.H{"suggestions": h.classifier.Suggest(c.Query("q"), limit)})
}

func (h *Handler) GetTopic(c *gin.Context) {
	details, ok := h.classifier.Details(c.Param("name"))
	if !ok {
		respond.Error(c, fmt.Errorf("%w: topic %q", domain.ErrNotFound, c.Param("name")))
		return
	}
	c.JSON(http.StatusOK, details)
}

// Statistics handlers

func (h *Handler) PublicStatistics(c *gin.Context) {
	stats, err := h.statisticsService.Public(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) StatisticsSummary(c *gin.Context) {
	var filter domain.StatisticsFilter
	for param, dst := range map[string]**time.Time{"start": &filter.Start, "end": &filter.End} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respond.Error(c, fmt.Errorf("%w: %s must be RFC3339", domain.ErrInvalidRequest, param))
			return
		}
		ts = ts.UTC()
		*dst = &ts
	}

	summary, err := h.statisticsService.Summary(c.Request.Context(), filter)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func pageFrom(c *gin.Context) domain.Page {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(domain.DefaultPageSize)))
	return domain.NewPage(page, size)
}
