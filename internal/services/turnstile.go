package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"larder/internal/apperr"
)

const (
	defaultTurnstileURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"
	// VerifyTimeout bounds one verification call. Exceeding it is a final failure.
	VerifyTimeout = 10 * time.Second
)

// Verification error codes. The first group is Cloudflare Turnstile's enumeration,
// the second is produced locally.
const (
	CodeMissingInputSecret   = "missing-input-secret"
	CodeInvalidInputSecret   = "invalid-input-secret"
	CodeMissingInputResponse = "missing-input-response"
	CodeInvalidInputResponse = "invalid-input-response"
	CodeInvalidWidgetID      = "invalid-widget-id"
	CodeInvalidParsedSecret  = "invalid-parsed-secret"
	CodeBadRequest           = "bad-request"
	CodeTimeoutOrDuplicate   = "timeout-or-duplicate"
	CodeInternalError        = "internal-error"

	CodeVerificationRequired    = "verification-required"
	CodeVerificationTimeout     = "verification-timeout"
	CodeVerificationUnavailable = "verification-unavailable"
)

var verificationMessages = map[string]string{
	CodeMissingInputSecret:      "Comments are temporarily unavailable: the spam check is not configured.",
	CodeInvalidInputSecret:      "Comments are temporarily unavailable: the spam check is misconfigured.",
	CodeMissingInputResponse:    "Please complete the verification challenge before posting.",
	CodeInvalidInputResponse:    "The verification challenge was not accepted. Please try again.",
	CodeInvalidWidgetID:         "The verification widget failed to load correctly. Please reload the page.",
	CodeInvalidParsedSecret:     "The spam check could not read its configuration. Please try again later.",
	CodeBadRequest:              "The verification request was malformed. Please reload the page and try again.",
	CodeTimeoutOrDuplicate:      "Your verification expired or was already used. Please complete it again.",
	CodeInternalError:           "The verification service had an internal error. Please try again in a moment.",
	CodeVerificationRequired:    "Verification is required to post a comment.",
	CodeVerificationTimeout:     "The verification check took too long. Please try again.",
	CodeVerificationUnavailable: "The verification service is unreachable right now. Please try again later.",
}

// VerificationMessage returns the reader-facing message for a verification code.
func VerificationMessage(code string) string {
	if msg, ok := verificationMessages[code]; ok {
		return msg
	}
	return "We could not verify that you are human. Please try again."
}

// BotVerifier checks a bot-challenge token. Failures are *apperr.VerificationError.
type BotVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

type turnstileResponse struct {
	Success     bool     `json:"success"`
	ErrorCodes  []string `json:"error-codes"`
	ChallengeTS string   `json:"challenge_ts"`
	Hostname    string   `json:"hostname"`
	Action      string   `json:"action"`
}

// TurnstileVerifier calls the Cloudflare Turnstile siteverify endpoint. Calls go
// through a circuit breaker: while it is open the verifier reports
// verification-unavailable without touching the network. There are no retries.
type TurnstileVerifier struct {
	secret    string
	verifyURL string
	timeout   time.Duration
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[*turnstileResponse]
	logger    *zap.Logger
}

// NewTurnstileVerifier reads TURNSTILE_SECRET_KEY and TURNSTILE_VERIFY_URL.
func NewTurnstileVerifier(logger *zap.Logger) *TurnstileVerifier {
	return NewTurnstileVerifierWith(os.Getenv("TURNSTILE_SECRET_KEY"), os.Getenv("TURNSTILE_VERIFY_URL"), VerifyTimeout, logger)
}

func NewTurnstileVerifierWith(secret, verifyURL string, timeout time.Duration, logger *zap.Logger) *TurnstileVerifier {
	if verifyURL == "" {
		verifyURL = defaultTurnstileURL
	}
	if timeout <= 0 {
		timeout = VerifyTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if secret == "" {
		logger.Warn("TURNSTILE_SECRET_KEY not set, public comments will be refused")
	}

	v := &TurnstileVerifier{
		secret:    secret,
		verifyURL: verifyURL,
		timeout:   timeout,
		client:    &http.Client{},
		logger:    logger,
	}
	v.breaker = gobreaker.NewCircuitBreaker[*turnstileResponse](gobreaker.Settings{
		Name:        "turnstile",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return v
}

func (v *TurnstileVerifier) Verify(ctx context.Context, token, remoteIP string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return &apperr.VerificationError{Code: CodeVerificationRequired}
	}
	if v.secret == "" {
		return &apperr.VerificationError{Code: CodeMissingInputSecret}
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	resp, err := v.breaker.Execute(func() (*turnstileResponse, error) {
		return v.siteverify(ctx, token, remoteIP)
	})
	if err != nil {
		code := CodeVerificationUnavailable
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			code = CodeVerificationTimeout
		}
		v.logger.Warn("bot verification call failed", zap.String("code", code), zap.Error(err))
		return &apperr.VerificationError{Code: code, Err: err}
	}

	if !resp.Success {
		code := CodeInvalidInputResponse
		if len(resp.ErrorCodes) > 0 {
			code = resp.ErrorCodes[0]
		}
		return &apperr.VerificationError{Code: code}
	}
	return nil
}

func (v *TurnstileVerifier) siteverify(ctx context.Context, token, remoteIP string) (*turnstileResponse, error) {
	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}
	form.Set("idempotency_key", uuid.NewString())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("siteverify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("siteverify status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("read siteverify response: %w", err)
	}
	var out turnstileResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode siteverify response: %w", err)
	}
	return &out, nil
}
