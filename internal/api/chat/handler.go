package chat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/liliang-cn/ragmentor/internal/api/middleware"
	"github.com/liliang-cn/ragmentor/internal/api/respond"
	"github.com/liliang-cn/ragmentor/internal/domain"
	"github.com/liliang-cn/ragmentor/internal/service"
)

// Handler handles chat and conversation requests
type Handler struct {
	chatService *service.ChatService
}

// NewHandler creates a new chat handler
func NewHandler(chatService *service.ChatService) *Handler {
	return &Handler{chatService: chatService}
}

// RegisterRoutes registers the streaming chat route; the group must run
// middleware.Auth
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/chat", h.ChatStream)
}

// RegisterUserRoutes registers routes that need a resolved user; the group
// must run middleware.RequireUser
func (h *Handler) RegisterUserRoutes(r *gin.RouterGroup) {
	r.GET("/users/me", h.Me)
	r.GET("/conversations", h.ListConversations)
	r.GET("/conversations/:id", h.GetConversation)
	r.DELETE("/conversations/:id", h.DeleteConversation)
}

// ChatStream runs one chat turn and streams the answer as server-sent events
func (h *Handler) ChatStream(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		respond.Error(c, domain.ErrUnauthorized)
		return
	}

	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
		return
	}

	ctx := c.Request.Context()
	turn, err := h.chatService.Chat(ctx, identity, req)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header(middleware.ConversationHeader, strconv.FormatInt(turn.ConversationID, 10))

	c.Status(http.StatusOK)
	for {
		select {
		case fragment, ok := <-turn.Fragments:
			if !ok {
				return
			}
			writeSSE(c.Writer, domain.StreamChunk{Type: "content", Content: fragment})
			c.Writer.Flush()
		case <-ctx.Done():
			// the service notices the same cancellation and persists what it has
			return
		}
	}
}

func writeSSE(w io.Writer, chunk domain.StreamChunk) {
	data, _ := json.Marshal(chunk)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", chunk.Type, data)
}

// Me returns the caller
func (h *Handler) Me(c *gin.Context) {
	user, ok := middleware.UserFrom(c)
	if !ok {
		respond.Error(c, domain.ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, user)
}

// ListConversations lists the caller's conversations
func (h *Handler) ListConversations(c *gin.Context) {
	user, ok := middleware.UserFrom(c)
	if !ok {
		respond.Error(c, domain.ErrUnauthorized)
		return
	}

	resp, err := h.chatService.ListConversations(c.Request.Context(), user, pageFrom(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetConversation returns one of the caller's conversations
func (h *Handler) GetConversation(c *gin.Context) {
	user, ok := middleware.UserFrom(c)
	if !ok {
		respond.Error(c, domain.ErrUnauthorized)
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respond.Error(c, fmt.Errorf("%w: invalid conversation id", domain.ErrInvalidRequest))
		return
	}

	conv, err := h.chatService.GetConversation(c.Request.Context(), user, id)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// DeleteConversation removes one of the caller's conversations
func (h *Handler) DeleteConversation(c *gin.Context) {
	user, ok := middleware.UserFrom(c)
	if !ok {
		respond.Error(c, domain.ErrUnauthorized)
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respond.Error(c, fmt.Errorf("%w: invalid conversation id", domain.ErrInvalidRequest))
		return
	}

	if err := h.chatService.DeleteConversation(c.Request.Context(), user, id); err != nil {
		respond.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func pageFrom(c *gin.Context) domain.Page {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(domain.DefaultPageSize)))
	return domain.NewPage(page, size)
}
