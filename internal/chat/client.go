package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"bycarket/api/internal/config"
	"bycarket/api/internal/models"
)

// ICompletionClient defines the interface for the upstream chat completion API.
type ICompletionClient interface {
	Complete(ctx context.Context, messages []models.ChatMessage) (string, error)
}

// completionRequest is the OpenAI-compatible request body.
type completionRequest struct {
	Model    string              `json:"model"`
	Messages []completionMessage `json:"messages"`
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// completionResponse is the subset of the response we consume.
type completionResponse struct {
	Choices []struct {
		Message completionMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// completionClient implements ICompletionClient against an OpenAI-compatible
// chat completions endpoint.
type completionClient struct {
	cfg        *config.Config
	httpClient *http.Client
}

// NewCompletionClient creates a new chat completion client.
func NewCompletionClient(cfg *config.Config) ICompletionClient {
	return &completionClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.ChatTimeout},
	}
}

// Complete sends the conversation so far and returns the assistant's reply.
func (c *completionClient) Complete(ctx context.Context, messages []models.ChatMessage) (string, error) {
	if c.cfg.ChatAPIKey == "" {
		return "", fmt.Errorf("chat API key not configured")
	}

	payload := completionRequest{Model: c.cfg.ChatModel}
	for _, m := range messages {
		payload.Messages = append(payload.Messages, completionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.ChatAPIURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.ChatAPIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("Error calling chat completion API: %v", err)
		return "", fmt.Errorf("failed to contact chat completion service")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read completion response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("Chat completion API returned non-OK status: %d - Body: %s", resp.StatusCode, string(body))
		return "", fmt.Errorf("chat completion failed with status %d", resp.StatusCode)
	}

	var cr completionResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		log.Printf("Error unmarshalling completion response: %v - Body: %s", err, string(body))
		return "", fmt.Errorf("failed to parse completion response")
	}
	if cr.Error != nil {
		return "", fmt.Errorf("chat completion error: %s", cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return cr.Choices[0].Message.Content, nil
}
