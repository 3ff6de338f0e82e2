package api

import (
	"github.com/halcyon-labs/persona-proxy/internal/gateway"
	"github.com/halcyon-labs/persona-proxy/internal/models"
	"github.com/halcyon-labs/persona-proxy/internal/services/cache"
	"github.com/halcyon-labs/persona-proxy/internal/services/history"
	"github.com/halcyon-labs/persona-proxy/internal/services/persona"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/utils"
)

// How many stored turns precede the incoming message when a conversation is
// resumed.
const defaultHistoryWindow = 20

// ChatRequest is the inbound body for POST /v1/chat
type ChatRequest struct {
	ConversationID string                `json:"conversation_id"`
	Message        string                `json:"message"`
	Options        models.RequestOptions `json:"options"`
}

// ChatResponse is the reply for POST /v1/chat
type ChatResponse struct {
	ConversationID string       `json:"conversation_id,omitzero"`
	Content        string       `json:"content"`
	Provider       string       `json:"provider"`
	Model          string       `json:"model"`
	Usage          models.Usage `json:"usage"`
	Cached         bool         `json:"cached"`
}

// ChatHandler handles persona chat requests end-to-end: it assembles the
// prompt from persona and stored history, runs the gateway call, persists the
// exchange and replies.
type ChatHandler struct {
	gw            *gateway.Gateway
	personaSvc    *persona.Service
	historyStore  *history.Store       // nil when no database is configured
	responseCache *cache.ResponseCache // nil when redis is not configured
	historyWindow int
}

// NewChatHandler wires up dependencies and initializes the chat handler
func NewChatHandler(gw *gateway.Gateway, personaSvc *persona.Service, historyStore *history.Store, responseCache *cache.ResponseCache) *ChatHandler {
	return &ChatHandler{
		gw:            gw,
		personaSvc:    personaSvc,
		historyStore:  historyStore,
		responseCache: responseCache,
		historyWindow: defaultHistoryWindow,
	}
}

// Chat handles the chat HTTP request
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	reqID := getRequestID(c)
	fiberlog.Infof("[%s] starting chat request", reqID)

	var req ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return h.handleError(c, models.NewValidationError("invalid request body", err), reqID)
	}
	if req.Message == "" {
		return h.handleError(c, models.NewValidationError("message cannot be empty", nil), reqID)
	}

	messages, err := h.assembleMessages(c, &req, reqID)
	if err != nil {
		return h.handleError(c, err, reqID)
	}

	if h.responseCache != nil {
		if cached := h.responseCache.Get(c.UserContext(), messages, req.Options); cached != nil {
			fiberlog.Infof("[%s] cache hit - returning cached response", reqID)
			return c.JSON(h.buildResponse(&req, cached, true))
		}
	}

	result, err := h.gw.Chat(c.UserContext(), messages, req.Options)
	if err != nil {
		return h.handleError(c, err, reqID)
	}

	if h.responseCache != nil {
		h.responseCache.Set(c.UserContext(), messages, req.Options, result)
	}

	if h.historyStore != nil && req.ConversationID != "" {
		if err := h.historyStore.RecordExchange(c.UserContext(), req.ConversationID, req.Message, result); err != nil {
			// The answer is already in hand; losing one history write is not
			// worth failing the request over.
			fiberlog.Errorf("[%s] failed to persist exchange: %v", reqID, err)
		}
	}

	fiberlog.Infof("[%s] chat completed - provider: %s, model: %s", reqID, result.Provider, result.Model)
	return c.JSON(h.buildResponse(&req, result, false))
}

// assembleMessages builds the prompt: persona system message, stored history
// when the conversation is known, then the incoming user message.
func (h *ChatHandler) assembleMessages(c *fiber.Ctx, req *ChatRequest, reqID string) ([]models.Message, error) {
	systemMsg, err := h.personaSvc.SystemMessage()
	if err != nil {
		return nil, models.NewFatalError("", "failed to render persona prompt", err)
	}

	messages := []models.Message{systemMsg}

	if h.historyStore != nil && req.ConversationID != "" {
		recent, err := h.historyStore.Recent(c.UserContext(), req.ConversationID, h.historyWindow)
		if err != nil {
			fiberlog.Warnf("[%s] failed to load history for %s: %v", reqID, req.ConversationID, err)
		} else {
			messages = append(messages, recent...)
		}
	}

	return append(messages, models.Message{Role: models.RoleUser, Content: req.Message}), nil
}

func (h *ChatHandler) buildResponse(req *ChatRequest, result *models.ChatResult, cached bool) ChatResponse {
	return ChatResponse{
		ConversationID: req.ConversationID,
		Content:        result.Content,
		Provider:       result.Provider,
		Model:          result.Model,
		Usage:          result.Usage,
		Cached:         cached,
	}
}

func (h *ChatHandler) handleError(c *fiber.Ctx, err error, reqID string) error {
	sanitized := models.SanitizeError(err)
	fiberlog.Errorf("[%s] chat request failed: %v", reqID, err)
	return c.Status(sanitized.GetStatusCode()).JSON(fiber.Map{"error": sanitized})
}

// getRequestID returns the inbound request ID, generating one when the
// caller did not send any.
func getRequestID(c *fiber.Ctx) string {
	if id := c.Get(fiber.HeaderXRequestID); id != "" {
		return id
	}
	return utils.UUIDv4()
}
