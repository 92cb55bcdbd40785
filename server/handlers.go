package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/richinex/converse/chat"
	"github.com/richinex/converse/storage"
)

const defaultListLimit = 50

func (s *Server) root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"service": "converse",
		"message": "Conversation API. See /health, /models, /chat, /conversations.",
	})
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: formatTimestamp(time.Now()),
	})
}

func (s *Server) listModels(c echo.Context) error {
	return c.JSON(http.StatusOK, s.gateway.ListModels(c.Request().Context()))
}

func (s *Server) postChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if req.Message == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Message is required",
		})
	}

	reply, err := s.service.Respond(c.Request().Context(), chat.Request{
		Message:        req.Message,
		ConversationID: req.ConversationID,
		Model:          req.Model,
		Stream:         req.Stream,
		EnableSearch:   req.EnableSearch,
	})
	if errors.Is(err, chat.ErrStreamingNotSupported) {
		return c.JSON(http.StatusNotImplemented, ErrorResponse{
			Error:   "streaming_not_supported",
			Message: "Streaming responses are not supported",
		})
	}
	if err != nil {
		s.logger.Error("chat turn failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "chat_failed",
			Message: "Failed to generate a response",
		})
	}

	return c.JSON(http.StatusOK, ChatResponse{
		Response:       reply.Content,
		ConversationID: reply.ConversationID,
		Model:          reply.Model,
		Timestamp:      formatTimestamp(reply.Timestamp),
	})
}

func (s *Server) listConversations(c echo.Context) error {
	limit := queryInt(c, "limit", defaultListLimit)
	offset := queryInt(c, "offset", 0)

	conversations, err := s.store.ListConversations(c.Request().Context(), limit, offset)
	if err != nil {
		s.logger.Error("failed to list conversations", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "storage_error",
			Message: "Failed to list conversations",
		})
	}

	out := make([]ConversationResponse, 0, len(conversations))
	for _, conv := range conversations {
		out = append(out, toConversationResponse(conv))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) getConversation(c echo.Context) error {
	id := c.Param("id")
	conv, err := s.store.GetConversation(c.Request().Context(), id)
	if err != nil {
		s.logger.Error("failed to get conversation", zap.String("id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "storage_error",
			Message: "Failed to load conversation",
		})
	}
	if conv == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Conversation not found",
		})
	}
	return c.JSON(http.StatusOK, toConversationResponse(*conv))
}

func (s *Server) getMessages(c echo.Context) error {
	id := c.Param("id")
	messages, err := s.store.GetMessages(c.Request().Context(), id)
	if err != nil {
		s.logger.Error("failed to get messages", zap.String("id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "storage_error",
			Message: "Failed to load messages",
		})
	}

	out := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		out = append(out, MessageResponse{
			ID:             msg.ID,
			ConversationID: msg.ConversationID,
			Role:           msg.Role,
			Content:        msg.Content,
			Timestamp:      formatTimestamp(msg.Timestamp),
			Model:          msg.Model,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) clearConversation(c echo.Context) error {
	id := c.Param("id")
	if err := s.store.ClearConversation(c.Request().Context(), id); err != nil {
		s.logger.Error("failed to clear conversation", zap.String("id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "storage_error",
			Message: "Failed to clear conversation",
		})
	}
	return c.JSON(http.StatusOK, StatusResponse{
		Status:  "ok",
		Message: "Conversation cleared",
	})
}

func (s *Server) deleteConversation(c echo.Context) error {
	id := c.Param("id")
	if err := s.store.DeleteConversation(c.Request().Context(), id); err != nil {
		s.logger.Error("failed to delete conversation", zap.String("id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "storage_error",
			Message: "Failed to delete conversation",
		})
	}
	return c.JSON(http.StatusOK, StatusResponse{
		Status:  "ok",
		Message: "Conversation deleted",
	})
}

// updateTitle acknowledges the request without persisting; titles are
// derived from the first message and not editable through the API.
func (s *Server) updateTitle(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{
		Status:  "ok",
		Message: "Title updates are informational only",
	})
}

func toConversationResponse(conv storage.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: formatTimestamp(conv.CreatedAt),
		UpdatedAt: formatTimestamp(conv.UpdatedAt),
		Model:     conv.Model,
	}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func queryInt(c echo.Context, name string, defaultVal int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return defaultVal
	}
	return val
}
