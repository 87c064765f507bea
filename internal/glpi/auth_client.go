package glpi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/deviceops/reports-back/internal/domain"
)

const (
	sessionHeader  = "Session-Token"
	appTokenHeader = "App-Token"

	retryMaxAttempts     = 5
	retryInitialInterval = 3 * time.Second
	retryMaxInterval     = 10 * time.Second
)

type ClientConfig struct {
	BaseURL    string
	AppToken   string
	UserToken  string
	Timeout    time.Duration
	HTTPClient *http.Client

	// Retry knobs default to the production policy (5 attempts,
	// base 3s, cap 10s); tests shrink the intervals.
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

// AuthClient owns the GLPI session lifecycle: one login, one logout, both
// retried independently. A session token lives for exactly one gateway call.
type AuthClient struct {
	baseURL         string
	appToken        string
	userToken       string
	timeout         time.Duration
	httpClient      *http.Client
	initialInterval time.Duration
	maxInterval     time.Duration
}

func NewAuthClient(config ClientConfig) *AuthClient {
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if config.RetryInitialInterval <= 0 {
		config.RetryInitialInterval = retryInitialInterval
	}
	if config.RetryMaxInterval <= 0 {
		config.RetryMaxInterval = retryMaxInterval
	}
	return &AuthClient{
		baseURL:         strings.TrimSuffix(strings.TrimSpace(config.BaseURL), "/"),
		appToken:        strings.TrimSpace(config.AppToken),
		userToken:       strings.TrimSpace(config.UserToken),
		timeout:         config.Timeout,
		httpClient:      config.HTTPClient,
		initialInterval: config.RetryInitialInterval,
		maxInterval:     config.RetryMaxInterval,
	}
}

// OpenSession performs GET /initSession and returns the session token.
// Exhausting the retry budget without a token is an Unauthorized failure.
func (c *AuthClient) OpenSession(ctx context.Context) (string, error) {
	var sessionToken string
	operation := func() error {
		token, err := c.initSession(ctx)
		if err != nil {
			return err
		}
		sessionToken = token
		return nil
	}

	if err := backoff.Retry(operation, c.retryPolicy(ctx)); err != nil {
		return "", domain.NewUnauthorized("failed to authenticate with inventory API: %v", err)
	}
	return sessionToken, nil
}

// CloseSession performs GET /killSession. It is retried under the same
// policy as login but its failure must never mask the wrapped call's
// outcome, so callers only log the returned error.
func (c *AuthClient) CloseSession(ctx context.Context, sessionToken string) error {
	if sessionToken == "" {
		return errors.New("session token is not set")
	}

	operation := func() error {
		request, err := c.newRequest(ctx, "/killSession")
		if err != nil {
			return backoff.Permanent(err)
		}
		request.Header.Set(sessionHeader, sessionToken)

		_, err = c.do(request)
		return err
	}

	if err := backoff.Retry(operation, c.retryPolicy(ctx)); err != nil {
		return fmt.Errorf("kill session: %w", err)
	}
	return nil
}

func (c *AuthClient) initSession(ctx context.Context) (string, error) {
	request, err := c.newRequest(ctx, "/initSession")
	if err != nil {
		return "", backoff.Permanent(err)
	}
	request.Header.Set("Authorization", "user_token "+c.userToken)

	body, err := c.do(request)
	if err != nil {
		return "", err
	}

	var decoded struct {
		SessionToken string `json:"session_token"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode init session response: %w", err)
	}
	if strings.TrimSpace(decoded.SessionToken) == "" {
		return "", errors.New("init session response without session_token")
	}
	return decoded.SessionToken, nil
}

func (c *AuthClient) newRequest(ctx context.Context, path string) (*http.Request, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create inventory request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	if c.appToken != "" {
		request.Header.Set(appTokenHeader, c.appToken)
	}
	return request, nil
}

// do executes one call under the client timeout and returns the body for
// 2xx responses. Non-2xx statuses come back as *apiHTTPError so the retry
// policy can see the status code.
func (c *AuthClient) do(request *http.Request) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(request.Context(), c.timeout)
	defer cancel()

	response, err := c.httpClient.Do(request.WithContext(timeoutCtx))
	if err != nil {
		return nil, fmt.Errorf("inventory transport error: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("read inventory body: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		message := strings.TrimSpace(string(body))
		if len(message) > 700 {
			message = message[:700]
		}
		return nil, &apiHTTPError{StatusCode: response.StatusCode, Message: message}
	}
	return body, nil
}

// retryPolicy is the shared exponential policy: 5 attempts, base 3s, cap 10s.
func (c *AuthClient) retryPolicy(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialInterval
	policy.MaxInterval = c.maxInterval
	return backoff.WithContext(backoff.WithMaxRetries(policy, retryMaxAttempts-1), ctx)
}

type apiHTTPError struct {
	StatusCode int
	Message    string
}

func (e *apiHTTPError) Error() string {
	return fmt.Sprintf("inventory status %d: %s", e.StatusCode, e.Message)
}
