package summarizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tg-gazeta/internal/domain"
	openai "tg-gazeta/internal/infra/openai"
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// BotHub реализует domain.Summarizer через OpenAI-совместимый Chat Completions API.
type BotHub struct {
	client  chatClient
	model   string
	timeout time.Duration
}

var _ domain.Summarizer = (*BotHub)(nil)

// NewBotHub создаёт провайдер повесток дня.
func NewBotHub(client chatClient, model string, timeout time.Duration) *BotHub {
	if model == "" {
		model = "openai/gpt-4o-mini"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &BotHub{client: client, model: model, timeout: timeout}
}

// GenerateDigest строит повестку дня из текстов сообщений чата.
func (s *BotHub) GenerateDigest(ctx context.Context, snippets []string, maxTopics int) (string, error) {
	if len(snippets) == 0 {
		return "", fmt.Errorf("bothub: нет сообщений для повестки")
	}
	if maxTopics <= 0 {
		maxTopics = 7
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: 0.7,
		MaxTokens:   1000,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleUser, Content: digestPrompt(snippets, maxTopics)},
		},
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("генерация повестки: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("генерация повестки: пустой ответ")
	}
	digest := strings.TrimSpace(resp.Choices[0].Message.Content)
	if digest == "" {
		return "", fmt.Errorf("генерация повестки: пустой текст ответа")
	}
	return digest, nil
}

// HealthCheck проверяет доступность API коротким запросом.
func (s *BotHub) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:     s.model,
		MaxTokens: 10,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleUser, Content: "Привет! Ответь одним словом: 'работает'"},
		},
	}
	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return err
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("bothub: пустой ответ на проверку")
	}
	return nil
}

func digestPrompt(snippets []string, maxTopics int) string {
	combined := strings.Join(snippets, "\n")
	return fmt.Sprintf(`Проанализируй следующие сообщения из чата и выдели %d основных тем обсуждения.

Требования:
1. Определи %d наиболее обсуждаемых или важных тем
2. Для каждой темы напиши краткое описание (1-2 предложения)
3. Отсортируй темы по важности/активности обсуждения
4. Используй понятный и лаконичный язык
5. Формат ответа:

🔹 <Название темы 1>
<Краткое описание темы>

🔹 <Название темы 2>
<Краткое описание темы>

...и т.д.

Сообщения для анализа:

%s

Повестка дня:`, maxTopics, maxTopics, combined)
}
