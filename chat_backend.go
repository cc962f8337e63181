package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// LanguageModel turns a system instruction and a prompt into text.
type LanguageModel interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// einoModel drives any OpenAI-compatible endpoint through eino.
type einoModel struct {
	chat *openai.ChatModel
}

func NewOpenAIModel(ctx context.Context, apiKey, baseURL, model string) (LanguageModel, error) {
	maxTokens := 2048
	chat, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:    apiKey,
		BaseURL:   baseURL,
		Model:     model,
		MaxTokens: &maxTokens,
		Timeout:   60 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return &einoModel{chat: chat}, nil
}

func (m *einoModel) Complete(ctx context.Context, system, prompt string) (string, error) {
	msg, err := m.chat.Generate(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(prompt),
	})
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

// geminiModel is the Pro tier model.
type geminiModel struct {
	client *genai.Client
	model  string
}

func NewGeminiModel(ctx context.Context, apiKey, model string) (LanguageModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &geminiModel{client: client, model: model}, nil
}

func (m *geminiModel) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := m.client.Models.GenerateContent(ctx, m.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("no response from %s", m.model)
	}
	return text, nil
}

const replyFormat = `Answer with a single JSON object and nothing else:
{"response": "<markdown answer>", "suggestions": ["<follow-up question>", ...], "showChart": <true when a portfolio chart would help>}
Give at most three suggestions.`

const freeSystemPrompt = `You are FinSight, an AI investment and tax advisor for retail investors.
Be concise and practical. Never invent figures you were not given.
` + replyFormat

const proSystemPrompt = `You are FinSight Pro, a senior financial advisor.
Give detailed, structured analysis of the user's holdings: allocation, concentration risk, cost basis versus current price, and concrete next steps.
` + replyFormat

// ChatReply is the structured answer of a chat backend.
type ChatReply struct {
	Text        string
	Suggestions []string
	ShowChart   *bool
}

// ChatBackend serves the /chat and /prochat endpoints.
type ChatBackend struct {
	free       LanguageModel
	pro        LanguageModel
	portfolios *PortfolioRegistry
	logger     *zap.Logger
}

func NewChatBackend(free, pro LanguageModel, portfolios *PortfolioRegistry, logger *zap.Logger) *ChatBackend {
	return &ChatBackend{free: free, pro: pro, portfolios: portfolios, logger: logger.Named("chat-backend")}
}

func (b *ChatBackend) Free(ctx context.Context, req FreeChatRequest) (FreeChatResponse, error) {
	reply, err := b.ask(ctx, b.free, freeSystemPrompt, req.UserID, req.Message)
	if err != nil {
		return FreeChatResponse{}, err
	}
	return FreeChatResponse{Response: reply.Text, Suggestions: reply.Suggestions, ShowChart: reply.ShowChart}, nil
}

func (b *ChatBackend) Pro(ctx context.Context, req ProChatRequest) (ProChatResponse, error) {
	model := b.pro
	if model == nil {
		model = b.free
	}
	reply, err := b.ask(ctx, model, proSystemPrompt, req.UserID, req.Query)
	if err != nil {
		return ProChatResponse{}, err
	}
	return ProChatResponse{Answer: reply.Text, Suggestions: reply.Suggestions, ShowChart: reply.ShowChart}, nil
}

func (b *ChatBackend) ask(ctx context.Context, model LanguageModel, system, userID, message string) (ChatReply, error) {
	if model == nil {
		return ChatReply{}, ErrNoModel
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return ChatReply{}, ErrEmptyMessage
	}

	start := time.Now()
	raw, err := model.Complete(ctx, system, b.prompt(userID, message))
	if err != nil {
		b.logger.Error("model call failed", zap.String("user", userID), zap.Error(err))
		return ChatReply{}, fmt.Errorf("failed to get model response: %w", err)
	}
	b.logger.Info("chat answered", zap.String("user", userID), zap.Duration("took", time.Since(start)))
	return parseReply(raw), nil
}

// prompt prefixes the question with the user's holdings when they have any.
func (b *ChatBackend) prompt(userID, message string) string {
	if b.portfolios == nil || userID == "" || userID == defaultGuestID {
		return message
	}
	store, err := b.portfolios.For(Identity{UserID: userID})
	if err != nil {
		b.logger.Warn("answering without portfolio context", zap.String("user", userID), zap.Error(err))
		return message
	}
	holdings := store.Holdings()
	if len(holdings) == 0 {
		return message
	}

	var sb strings.Builder
	sb.WriteString("My portfolio:\n")
	for _, h := range holdings {
		fmt.Fprintf(&sb, "- %s (%s): %g shares, avg cost %.2f, now %.2f (%+.2f%% today)\n",
			h.Symbol, h.Name, h.Quantity, h.AvgPrice, h.CurrentPrice, h.PercentChange)
	}
	sb.WriteString("\nQuestion: ")
	sb.WriteString(message)
	return sb.String()
}

// parseReply decodes the JSON reply format. Anything else is taken verbatim
// as the answer, without suggestions or chart flag.
func parseReply(raw string) ChatReply {
	text := strings.TrimSpace(raw)
	body := strings.TrimPrefix(text, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")

	var decoded struct {
		Response    string   `json:"response"`
		Answer      string   `json:"answer"`
		Suggestions []string `json:"suggestions"`
		ShowChart   *bool    `json:"showChart"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &decoded); err != nil {
		return ChatReply{Text: text}
	}

	answer := decoded.Response
	if answer == "" {
		answer = decoded.Answer
	}
	if answer == "" {
		return ChatReply{Text: text}
	}
	return ChatReply{Text: answer, Suggestions: decoded.Suggestions, ShowChart: decoded.ShowChart}
}
