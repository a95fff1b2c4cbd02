package tutor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"finance-tutor/internal/models"
)

const (
	defaultBaseURL = "http://localhost:8000"
	// Quiz generation is a bounded request/response call
	defaultQuizTimeout = 60 * time.Second
)

// Client provides access to the finance tutor question-answering backend
type Client struct {
	baseURL string
	// streamClient has no timeout: answer streams are open-ended
	streamClient *http.Client
	quizClient   *http.Client
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets a custom backend base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client for both call kinds
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.streamClient = httpClient
		c.quizClient = httpClient
	}
}

// NewClient creates a new tutor backend client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      defaultBaseURL,
		streamClient: &http.Client{},
		quizClient:   &http.Client{Timeout: defaultQuizTimeout},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// AskRequest is the body of a streaming answer request
type AskRequest struct {
	Query       string             `json:"query"`
	DetailLevel models.DetailLevel `json:"detail_level,omitempty"`
}

// Ask starts a streaming answer request and returns the raw stream body.
// The caller owns the returned ReadCloser and must close it; frames are
// decoded by the stream package.
func (c *Client) Ask(ctx context.Context, query string, detailLevel models.DetailLevel) (io.ReadCloser, error) {
	log.Printf("[Tutor] Ask started query_length=%d detail_level=%s", len(query), detailLevel)

	body, err := json.Marshal(AskRequest{Query: query, DetailLevel: detailLevel})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ask", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		log.Printf("[Tutor] Ask failed: send request err=%v", err)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		log.Printf("[Tutor] Ask failed: API error status=%d", resp.StatusCode)
		return nil, c.handleError(resp)
	}

	log.Printf("[Tutor] Ask stream opened status=%d", resp.StatusCode)
	return resp.Body, nil
}

// QuizRequest is the body of a quiz generation request
type QuizRequest struct {
	Topic string `json:"topic"`
}

// GenerateQuiz requests a knowledge-check quiz derived from the given
// topic text. Failures are plain errors; callers degrade to "no quiz".
func (c *Client) GenerateQuiz(ctx context.Context, topic string) (*models.KnowledgeCheck, error) {
	log.Printf("[Tutor] GenerateQuiz started topic_length=%d", len(topic))

	body, err := json.Marshal(QuizRequest{Topic: topic})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/quiz", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(req)

	resp, err := c.quizClient.Do(req)
	if err != nil {
		log.Printf("[Tutor] GenerateQuiz failed: send request err=%v", err)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[Tutor] GenerateQuiz failed: API error status=%d", resp.StatusCode)
		return nil, c.handleError(resp)
	}

	var quiz models.KnowledgeCheck
	if err := json.NewDecoder(resp.Body).Decode(&quiz); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	log.Printf("[Tutor] GenerateQuiz completed choices=%d", len(quiz.Choices))
	return &quiz, nil
}

// setHeaders sets the required headers for API requests
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
}

// APIError represents an error response from the tutor backend
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tutor API error (status %d): %s", e.StatusCode, e.Message)
}

// handleError processes error responses from the backend
func (c *Client) handleError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	logBody := bodyStr
	if len(logBody) > 500 {
		logBody = logBody[:500] + "..."
	}
	log.Printf("[Tutor] API error status=%d body=%s", resp.StatusCode, logBody)

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    bodyStr,
	}
}
