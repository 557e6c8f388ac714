package oncall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// HTTPProvider queries the on-call service over HTTP. Calls go through a
// circuit breaker that opens after five consecutive failures.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

// NewHTTPProvider creates a provider for the service at baseURL
func NewHTTPProvider(baseURL string, log *zap.Logger) *HTTPProvider {
	log = log.Named("oncall")
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "oncall-service",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrEngineerNotFound)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("Circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}),
		log: log,
	}
}

type rotationResponse struct {
	Primary   *string `json:"primary"`
	Secondary *string `json:"secondary"`
	Message   string  `json:"message,omitempty"`
}

// PrimaryAndSecondary calls GET /api/oncall/rotation
func (p *HTTPProvider) PrimaryAndSecondary(ctx context.Context) (Rotation, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		var body rotationResponse
		if err := p.getJSON(ctx, "/api/oncall/rotation", &body); err != nil {
			return nil, err
		}
		return body, nil
	})
	if err != nil {
		return Rotation{}, fmt.Errorf("on-call rotation lookup failed: %w", err)
	}

	body := result.(rotationResponse)
	var r Rotation
	if body.Primary != nil {
		r.Primary = *body.Primary
	}
	if body.Secondary != nil {
		r.Secondary = *body.Secondary
	}
	return r, nil
}

// Engineer calls GET /api/oncall/engineer/{email}
func (p *HTTPProvider) Engineer(ctx context.Context, email string) (*Engineer, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		var e Engineer
		if err := p.getJSON(ctx, "/api/oncall/engineer/"+url.PathEscape(email), &e); err != nil {
			return nil, err
		}
		return &e, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Engineer), nil
}

func (p *HTTPProvider) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrEngineerNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("on-call service returned %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode on-call response: %w", err)
	}
	return nil
}
