package routes

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pocketbase/pocketbase/core"
	"github.com/samber/lo"

	"tripplanner/llm"
)

type tripAssistantRequest struct {
	Messages []llm.Message `json:"messages"`
}

type tripAssistantResponse struct {
	Message llm.Message `json:"message"`
}

// TripAssistant answers questions about a planned trip. Only user and
// assistant turns with content are forwarded.
func (h *Handlers) TripAssistant(e *core.RequestEvent) error {
	if h.Assistant == nil {
		return errorJSON(e, http.StatusServiceUnavailable, "the assistant is not configured on the server")
	}

	var req tripAssistantRequest
	if err := json.NewDecoder(e.Request.Body).Decode(&req); err != nil {
		return errorJSON(e, http.StatusBadRequest, "invalid request body")
	}

	messages := lo.Filter(req.Messages, func(m llm.Message, _ int) bool {
		return (m.Role == "user" || m.Role == "assistant") && strings.TrimSpace(m.Content) != ""
	})
	if len(messages) == 0 {
		return errorJSON(e, http.StatusBadRequest, "at least one message is required")
	}
	if messages[len(messages)-1].Role != "user" {
		return errorJSON(e, http.StatusBadRequest, "the last message must come from the user")
	}

	trip, ok := tripFromEvent(e)
	if !ok {
		return errorJSON(e, http.StatusBadRequest, "trip context is missing")
	}

	reply, err := h.Assistant.Assist(e.Request.Context(), trip, messages)
	if err != nil {
		e.App.Logger().Error("TripAssistant call failed", "error", err, "tripId", trip.ID)
		return errorJSON(e, http.StatusBadGateway, "assistant request failed")
	}

	return e.JSON(http.StatusOK, tripAssistantResponse{
		Message: llm.Message{
			Role:    "assistant",
			Content: reply,
		},
	})
}
