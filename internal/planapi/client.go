package planapi

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"weekly-health-plan/internal/config"
	"weekly-health-plan/internal/metrics"
	"weekly-health-plan/internal/planner"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Client is the plan backend API.
type Client interface {
	CurrentWeeklyPlan(ctx context.Context) (*planner.WeeklyPlan, error)
	TodayPlan(ctx context.Context) (*planner.TodayPlan, error)
	CurrentMonthlyPlan(ctx context.Context) (*planner.MonthlyPlan, error)
	GenerateWeeklyPlan(ctx context.Context, req GenerateRequest) (*planner.WeeklyPlan, error)
	UpdateDayCompletion(ctx context.Context, planID planner.ID, day planner.Weekday, patch CompletionPatch) error
	AdjustWeeklyPlan(ctx context.Context, planID planner.ID, day planner.Weekday, adjustment AdjustmentType, options map[string]any) error
	AIAdjustWeeklyPlan(ctx context.Context, planID planner.ID, request string) (*AIAdjustResult, error)
	AIAdjustDietPlan(ctx context.Context, planID planner.ID, request, domain string) (*AIAdjustResult, error)
}

// planClient is the concrete HTTP implementation of Client.
type planClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	userID     string
	recorder   metrics.Recorder
	logger     *slog.Logger
}

// Option customises a client built by NewClient.
type Option func(*planClient)

// WithRecorder reports every call to r.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *planClient) { c.recorder = r }
}

// WithLogger sets the logger used for request and narrowing diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *planClient) { c.logger = l }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *planClient) { c.httpClient = h }
}

// NewClient creates a new plan API client.
func NewClient(cfg *config.Config, opts ...Option) Client {
	timeout := cfg.PlanAPITimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &planClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.PlanAPIURL, "/"),
		apiKey:     cfg.PlanAPIKey,
		userID:     cfg.PlanUserID,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CurrentWeeklyPlan fetches the weekly plan of the current week.
func (c *planClient) CurrentWeeklyPlan(ctx context.Context) (*planner.WeeklyPlan, error) {
	raw, err := c.do(ctx, http.MethodGet, "/api/plans/weekly/current", nil)
	if err != nil {
		return nil, err
	}
	data, err := unwrapData(raw)
	if err != nil {
		return nil, err
	}
	return decodeWeeklyPlan(data, c.logger)
}

// TodayPlan fetches today's day plan with its completion record.
func (c *planClient) TodayPlan(ctx context.Context) (*planner.TodayPlan, error) {
	raw, err := c.do(ctx, http.MethodGet, "/api/plans/weekly/today", nil)
	if err != nil {
		return nil, err
	}
	data, err := unwrapData(raw)
	if err != nil {
		return nil, err
	}
	return decodeTodayPlan(data, c.logger)
}

// CurrentMonthlyPlan fetches the monthly plan the current week belongs to.
func (c *planClient) CurrentMonthlyPlan(ctx context.Context) (*planner.MonthlyPlan, error) {
	raw, err := c.do(ctx, http.MethodGet, "/api/plans/monthly/current", nil)
	if err != nil {
		return nil, err
	}
	data, err := unwrapData(raw)
	if err != nil {
		return nil, err
	}
	var monthly planner.MonthlyPlan
	if err := json.Unmarshal(data, &monthly); err != nil {
		return nil, fmt.Errorf("planapi: decode monthly plan: %w", err)
	}
	return &monthly, nil
}

// GenerateWeeklyPlan asks the backend to generate one week of a monthly plan.
func (c *planClient) GenerateWeeklyPlan(ctx context.Context, req GenerateRequest) (*planner.WeeklyPlan, error) {
	body := generateBody{
		MonthlyPlanID: req.MonthlyPlanID.String(),
		WeekNumber:    req.WeekNumber,
	}
	if req.WeekStartDate != nil {
		body.WeekStartDate = req.WeekStartDate.Format("2006-01-02")
	}
	raw, err := c.do(ctx, http.MethodPost, "/api/plans/weekly/generate", body)
	if err != nil {
		return nil, err
	}
	data, err := unwrapData(raw)
	if err != nil {
		return nil, err
	}
	return decodeWeeklyPlan(data, c.logger)
}

// UpdateDayCompletion partially updates one day's completion record.
func (c *planClient) UpdateDayCompletion(ctx context.Context, planID planner.ID, day planner.Weekday, patch CompletionPatch) error {
	path := fmt.Sprintf("/api/plans/weekly/%s/days/%s/completion", url.PathEscape(planID.String()), day)
	_, err := c.do(ctx, http.MethodPatch, path, patch)
	return err
}

// AdjustWeeklyPlan applies a structural adjustment to one day.
func (c *planClient) AdjustWeeklyPlan(ctx context.Context, planID planner.ID, day planner.Weekday, adjustment AdjustmentType, options map[string]any) error {
	path := fmt.Sprintf("/api/plans/weekly/%s/adjust", url.PathEscape(planID.String()))
	_, err := c.do(ctx, http.MethodPost, path, adjustBody{Day: day, AdjustmentType: adjustment, Options: options})
	return err
}

// AIAdjustWeeklyPlan sends a natural-language adjustment request for the whole week.
func (c *planClient) AIAdjustWeeklyPlan(ctx context.Context, planID planner.ID, request string) (*AIAdjustResult, error) {
	path := fmt.Sprintf("/api/plans/weekly/%s/ai-adjust", url.PathEscape(planID.String()))
	return c.aiAdjust(ctx, path, aiAdjustBody{Request: request})
}

// AIAdjustDietPlan sends a natural-language adjustment request scoped to a diet domain.
func (c *planClient) AIAdjustDietPlan(ctx context.Context, planID planner.ID, request, domain string) (*AIAdjustResult, error) {
	path := fmt.Sprintf("/api/plans/weekly/%s/ai-adjust-diet", url.PathEscape(planID.String()))
	return c.aiAdjust(ctx, path, aiAdjustBody{Request: request, Domain: domain})
}

func (c *planClient) aiAdjust(ctx context.Context, path string, body aiAdjustBody) (*AIAdjustResult, error) {
	raw, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	data, err := unwrapData(raw)
	if err != nil {
		return nil, fmt.Errorf("planapi: empty ai adjustment response: %w", err)
	}
	var payload aiAdjustPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("planapi: decode ai adjustment: %w", err)
	}
	return payload.toResult(), nil
}

// do executes one request and returns the raw response body of a 2xx reply.
func (c *planClient) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("planapi: marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("planapi: create request: %w", err)
	}

	token, err := c.createToken()
	if err != nil {
		return nil, fmt.Errorf("planapi: create token: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(method, path, requestID, 0, time.Since(start), err)
		return nil, fmt.Errorf("planapi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	c.record(method, path, requestID, resp.StatusCode, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("planapi: read response: %w", err)
	}

	c.logger.Debug("plan api call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"latency", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody),
		}
	}
	return respBody, nil
}

func (c *planClient) record(method, path, requestID string, status int, latency time.Duration, err error) {
	if c.recorder == nil {
		return
	}
	if rerr := c.recorder.Record(metrics.MapCall(method, path, requestID, status, latency, err)); rerr != nil {
		c.logger.Warn("failed to record call metric", "error", rerr)
	}
}

// errorMessage pulls a human-readable message out of an error body.
func errorMessage(body []byte) string {
	var errResp struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(body, &errResp) == nil {
		if errResp.Message != "" {
			return errResp.Message
		}
		var s string
		if json.Unmarshal(errResp.Error, &s) == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(errResp.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// createToken generates a short-lived JWT for the plan API.
func (c *planClient) createToken() (string, error) {
	keyParts := strings.Split(c.apiKey, ":")
	if len(keyParts) != 2 {
		return "", fmt.Errorf("invalid api key format: expected id:secret")
	}

	id := keyParts[0]
	secretHex := keyParts[1]

	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode secret hex: %w", err)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": c.userID,
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
		"aud": "plans",
	})
	token.Header["kid"] = id

	return token.SignedString(secret)
}
