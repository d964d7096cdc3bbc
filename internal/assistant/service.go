// Package assistant proxies code-help requests to an LLM chat-completions API.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config holds the upstream API settings. An empty APIKey enables the
// built-in stub so the rest of the app works without an account.
type Config struct {
	APIURL string
	APIKey string
	Model  string
}

// Service answers code review, diagram, and completion requests.
type Service struct {
	config Config
	client *http.Client
}

func NewService(config Config) *Service {
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	return &Service{
		config: config,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// Configured reports whether an upstream API key is present.
func (s *Service) Configured() bool {
	return s.config.APIKey != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ReviewCode asks for a review of the given source snippet.
func (s *Service) ReviewCode(ctx context.Context, language, code string) (string, error) {
	prompt := buildReviewPrompt(language, code)
	if !s.Configured() {
		return stubReview(language), nil
	}
	return s.complete(ctx, prompt)
}

// Flowchart asks for a Mermaid flowchart describing the given code or text.
func (s *Service) Flowchart(ctx context.Context, description string) (string, error) {
	prompt := buildFlowchartPrompt(description)
	if !s.Configured() {
		return stubFlowchart(), nil
	}
	out, err := s.complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return extractMermaid(out), nil
}

// Complete answers a free-form question.
func (s *Service) Complete(ctx context.Context, question string) (string, error) {
	if !s.Configured() {
		return stubCompletion(question), nil
	}
	return s.complete(ctx, question)
}

func (s *Service) complete(ctx context.Context, prompt string) (string, error) {
	body := chatRequest{
		Model: s.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a concise assistant for a developer collaboration tool."},
			{Role: "user", Content: prompt},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call assistant api: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read assistant response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("assistant api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode assistant response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("assistant api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("assistant api returned no choices")
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func buildReviewPrompt(language, code string) string {
	var b strings.Builder
	b.WriteString("Review the following ")
	if language != "" {
		b.WriteString(language)
		b.WriteString(" ")
	}
	b.WriteString("code. Point out bugs, risky patterns, and readability issues. Be specific and brief.\n\n```")
	b.WriteString(language)
	b.WriteString("\n")
	b.WriteString(code)
	b.WriteString("\n```")
	return b.String()
}

func buildFlowchartPrompt(description string) string {
	return "Produce a Mermaid flowchart (flowchart TD) for the following. " +
		"Reply with only the Mermaid code block, no prose.\n\n" + description
}

// extractMermaid strips a surrounding fenced code block if present.
func extractMermaid(out string) string {
	trimmed := strings.TrimSpace(out)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```mermaid")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

func stubReview(language string) string {
	lang := language
	if lang == "" {
		lang = "code"
	}
	return fmt.Sprintf("Assistant is not configured. Set LLM_API_KEY to enable %s review.", lang)
}

func stubFlowchart() string {
	return "flowchart TD\n    A[Assistant not configured] --> B[Set LLM_API_KEY]"
}

func stubCompletion(question string) string {
	q := strings.TrimSpace(question)
	if len(q) > 80 {
		q = q[:80] + "..."
	}
	return fmt.Sprintf("Assistant is not configured. Set LLM_API_KEY to get an answer to: %s", q)
}
