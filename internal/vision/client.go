package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/wardroberry/wardroberry/internal/worker/domain"
)

const (
	defaultBaseURL       = "https://api.openai.com"
	defaultClassifyModel = "gpt-4.1-mini"
	defaultExtractModel  = "gpt-4.1"
	defaultTimeout       = 90 * time.Second
)

const classifySystemPrompt = `You are a fashion expert. Analyze the uploaded image of a single garment and answer with exactly this JSON object, no additional text:

{
  "category": "garment category",
  "color": "dominant color",
  "style": "garment style",
  "season": "matching season",
  "material": "likely material",
  "occasion": "suitable occasion",
  "confidence": 0.0
}

Categories: top, pants, dress, skirt, jacket, coat, sweater, t-shirt, shirt, blouse, shorts, jeans, shoes, boots, sneakers, sandals, accessory, belt, hat, scarf
Colors: black, white, gray, brown, beige, red, pink, orange, yellow, green, blue, purple, multicolor, patterned
Styles: casual, elegant, sporty, business, vintage, modern, bohemian, minimalist, extravagant
Seasons: spring, summer, autumn, winter, all-season, transitional
Occasions: everyday, work, sport, leisure, going-out, formal, beach, home

confidence is a number between 0 and 1.`

const extractPrompt = "Create a photorealistic image of the garment from the reference image, isolated on a white background."

// Config holds OpenAI client configuration
type Config struct {
	APIKey        string
	BaseURL       string
	ClassifyModel string
	ExtractModel  string
	Timeout       time.Duration
}

// Client talks to the OpenAI API for background extraction and garment
// classification. Both calls are synchronous and block for their full
// duration; latency is bounded by the HTTP client timeout.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a vision client. The API key is required.
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.ClassifyModel == "" {
		config.ClassifyModel = defaultClassifyModel
	}
	if config.ExtractModel == "" {
		config.ExtractModel = defaultExtractModel
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Classify analyzes the extracted garment image and returns normalized
// attributes. A response whose content is not the requested JSON object is
// an error, so it goes through the regular retry machinery.
func (c *Client) Classify(ctx context.Context, image []byte) (*domain.Attributes, error) {
	dataURL := fmt.Sprintf("data:image/jpeg;base64,%s", base64.StdEncoding.EncodeToString(image))

	req := chatRequest{
		Model: c.config.ClassifyModel,
		Messages: []chatMessage{
			{Role: "system", Content: classifySystemPrompt},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: "Analyze this garment:"},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL, Detail: "high"}},
			}},
		},
		MaxTokens:   500,
		Temperature: 0.3,
	}

	var resp chatResponse
	if err := c.post(ctx, "/v1/chat/completions", req, &resp); err != nil {
		return nil, fmt.Errorf("classification request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("classification response contained no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)

	var attrs domain.Attributes
	if err := json.Unmarshal([]byte(content), &attrs); err != nil {
		return nil, fmt.Errorf("failed to parse classification response as JSON: %w", err)
	}

	normalized := normalizeAttributes(&attrs)

	c.logger.Info("Garment classified",
		slog.String("category", normalized.Category),
		slog.String("color", normalized.Color),
		slog.Float64("confidence", normalized.Confidence),
	)

	return normalized, nil
}

type responsesRequest struct {
	Model string          `json:"model"`
	Input []responseInput `json:"input"`
	Tools []responseTool  `json:"tools"`
}

type responseInput struct {
	Role    string              `json:"role"`
	Content []responseInputPart `json:"content"`
}

type responseInputPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type responseTool struct {
	Type string `json:"type"`
}

type responsesResponse struct {
	Output []struct {
		Type   string `json:"type"`
		Result string `json:"result"`
	} `json:"output"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// RemoveBackground generates an image of the garment isolated on a white
// background via the image generation tool.
func (c *Client) RemoveBackground(ctx context.Context, image []byte, contentType string) ([]byte, error) {
	if contentType == "" {
		contentType = "image/jpeg"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(image))

	req := responsesRequest{
		Model: c.config.ExtractModel,
		Input: []responseInput{
			{
				Role: "user",
				Content: []responseInputPart{
					{Type: "input_text", Text: extractPrompt},
					{Type: "input_image", ImageURL: dataURL},
				},
			},
		},
		Tools: []responseTool{{Type: "image_generation"}},
	}

	var resp responsesResponse
	if err := c.post(ctx, "/v1/responses", req, &resp); err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}

	if resp.Usage != nil {
		c.logger.Debug("Extraction token usage",
			slog.Int("prompt_tokens", resp.Usage.PromptTokens),
			slog.Int("completion_tokens", resp.Usage.CompletionTokens),
			slog.Int("total_tokens", resp.Usage.TotalTokens),
		)
	}

	for _, out := range resp.Output {
		if out.Type != "image_generation_call" || out.Result == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(out.Result)
		if err != nil {
			return nil, fmt.Errorf("failed to decode generated image: %w", err)
		}
		return data, nil
	}

	return nil, fmt.Errorf("extraction response contained no generated image")
}

// HealthCheck verifies the API is reachable with the configured credentials.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/v1/models", nil)
	if err != nil {
		return fmt.Errorf("failed to build health check request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vision api unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vision api health check returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("api returned status %d: %s", resp.StatusCode, truncate(string(data), 300))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
