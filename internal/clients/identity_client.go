package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gamelibrary/internal/apperr"
	"gamelibrary/internal/auth"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// User is the summary the identity service returns for a user.
type User struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Permission string    `json:"permission"`
}

type IdentityOptions struct {
	Timeout    time.Duration
	RatePerSec float64
	Burst      int
}

// IdentityClient resolves users against the identity service, forwarding the
// caller's bearer credential so the remote side applies its own authorization.
type IdentityClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	tracer  trace.Tracer
}

func NewIdentityClient(baseURL string, opts IdentityOptions, log *zap.Logger) *IdentityClient {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}
	if opts.Burst <= 0 {
		opts.Burst = 10
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "identity",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Answers from the identity service are not outages.
		IsSuccessful: func(err error) bool {
			switch apperr.KindOf(err) {
			case apperr.KindNotFound, apperr.KindForbidden, apperr.KindUnauthorized:
				return true
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &IdentityClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(limit, opts.Burst),
		breaker: breaker,
		tracer:  otel.Tracer("gamelibrary/clients/identity"),
	}
}

// GetUser returns the user with id, or a not-found error.
func (c *IdentityClient) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	ctx, span := c.tracer.Start(ctx, "identity.get_user",
		trace.WithAttributes(attribute.String("user.id", id.String())))
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperr.Unavailable("identity service rate limit", err)
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.getUser(ctx, id)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, apperr.Unavailable("identity service unavailable", err)
		}
		span.RecordError(err)
		return nil, err
	}
	return res.(*User), nil
}

func (c *IdentityClient) getUser(ctx context.Context, id uuid.UUID) (*User, error) {
	endpoint := fmt.Sprintf("%s/id?Id=%s", c.baseURL, url.QueryEscape(id.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if token := auth.CredentialFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Unavailable("identity service request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperr.NotFound("user %s not found", id)
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, apperr.Unauthorized("identity service rejected the credential")
	case resp.StatusCode == http.StatusForbidden:
		return nil, apperr.Forbidden("identity service denied access to user")
	case resp.StatusCode != http.StatusOK:
		return nil, apperr.Unavailable(fmt.Sprintf("identity service returned status %d", resp.StatusCode), nil)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, apperr.Unavailable("failed to decode identity response", err)
	}
	if user.ID == uuid.Nil {
		return nil, apperr.NotFound("user %s not found", id)
	}
	return &user, nil
}
