package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/healthsense-prediction-server/internal/domain"
)

const triageSystemPrompt = "You are a medical analysis AI. Provide structured analysis of symptoms."

// TriageAssessment is the structured output of a symptom triage request.
type TriageAssessment struct {
	Conditions      []string `json:"conditions"`
	Urgency         string   `json:"urgency"`
	Recommendations []string `json:"recommendations"`
	WarningSigns    []string `json:"warning_signs"`
	Fallback        bool     `json:"fallback,omitempty"`
}

// TriageClient calls an OpenAI-compatible chat completions endpoint to obtain a
// preliminary triage assessment for a symptom set. Requests are rate limited
// and wrapped in a circuit breaker; when the upstream is unavailable a
// conservative canned assessment is returned instead of an error.
type TriageClient struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

// NewTriageClient creates a triage client from configuration.
func NewTriageClient(config domain.TriageConfig) *TriageClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Model == "" {
		config.Model = "gpt-5"
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 2
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 1024
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "Triage",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
	})

	return &TriageClient{
		baseURL:   strings.TrimRight(config.BaseURL, "/"),
		apiKey:    config.APIKey,
		model:     config.Model,
		maxTokens: config.MaxTokens,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.RateLimit),
		breaker: breaker,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model               string          `json:"model"`
	Messages            []chatMessage   `json:"messages"`
	ResponseFormat      *responseFormat `json:"response_format,omitempty"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// AnalyzeSymptoms requests an assessment of the given symptoms. On upstream
// failure it returns FallbackAssessment and a nil error; the Fallback flag on
// the result tells callers the upstream was not consulted.
func (t *TriageClient) AnalyzeSymptoms(ctx context.Context, symptoms []string) (*TriageAssessment, error) {
	if len(symptoms) == 0 {
		return nil, fmt.Errorf("%w: no symptoms provided", domain.ErrInvalidInput)
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("triage rate limit wait: %w", err)
	}

	result, err := t.breaker.Execute(func() (interface{}, error) {
		return t.requestAssessment(ctx, symptoms)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return FallbackAssessment(), nil
	}

	return result.(*TriageAssessment), nil
}

func (t *TriageClient) requestAssessment(ctx context.Context, symptoms []string) (*TriageAssessment, error) {
	prompt := fmt.Sprintf(`As a healthcare AI, analyze these symptoms: %s

Please provide:
1. Possible conditions to consider
2. Urgency level (Low, Medium, High, Emergency)
3. Recommended next steps
4. When to seek immediate medical attention

Respond in JSON format with keys: conditions, urgency, recommendations, warning_signs`,
		strings.Join(symptoms, ", "))

	reqBody := chatRequest{
		Model: t.model,
		Messages: []chatMessage{
			{Role: "system", Content: triageSystemPrompt},
			{Role: "user", Content: prompt},
		},
		ResponseFormat:      &responseFormat{Type: "json_object"},
		MaxCompletionTokens: t.maxTokens,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal triage request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create triage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("triage request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read triage response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: triage API returned status %d", domain.ErrExternalAPI, resp.StatusCode)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode triage response: %w", err)
	}
	if chatResp.Error != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrExternalAPI, chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: triage response contained no choices", domain.ErrExternalAPI)
	}

	var assessment TriageAssessment
	if err := json.Unmarshal([]byte(chatResp.Choices[0].Message.Content), &assessment); err != nil {
		return nil, fmt.Errorf("failed to parse triage assessment: %w", err)
	}
	if assessment.Urgency == "" {
		assessment.Urgency = "Medium"
	}

	return &assessment, nil
}

// FallbackAssessment is the conservative assessment returned when the triage
// upstream cannot be reached.
func FallbackAssessment() *TriageAssessment {
	return &TriageAssessment{
		Urgency:         "Medium",
		Recommendations: []string{"Please consult with a healthcare professional"},
		WarningSigns:    []string{"Any worsening of symptoms"},
		Fallback:        true,
	}
}

// BreakerState returns the current circuit breaker state.
func (t *TriageClient) BreakerState() gobreaker.State {
	return t.breaker.State()
}

// BreakerCounts returns the circuit breaker request counters.
func (t *TriageClient) BreakerCounts() gobreaker.Counts {
	return t.breaker.Counts()
}
