package registry

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"leadrelay/internal/pkg/validator"
	"leadrelay/internal/platform/models"
	"leadrelay/internal/platform/repositories"
)

// ErrInvalidConfig marks subscription-save errors that are the caller's
// fault: they fail fast here, never at delivery time.
var ErrInvalidConfig = errors.New("invalid webhook configuration")

// AutoProvisionURL is the sentinel a caller passes instead of a target URL
// to have the registry mint an inbound receiver endpoint.
const AutoProvisionURL = "new"

type Service struct {
	webhooks     *repositories.WebhookRepository
	attempts     *repositories.AttemptRepository
	receiverBase string
	allowLocal   bool
}

func NewService(webhooks *repositories.WebhookRepository, attempts *repositories.AttemptRepository,
	receiverBase string, allowLocal bool) *Service {
	return &Service{
		webhooks:     webhooks,
		attempts:     attempts,
		receiverBase: strings.TrimRight(receiverBase, "/"),
		allowLocal:   allowLocal,
	}
}

type CreateInput struct {
	Name    string            `json:"name"`
	URL     string            `json:"url"`
	Events  []string          `json:"events"`
	Headers map[string]string `json:"headers"`
}

// CreateOutput carries the one-time plaintext credentials alongside the
// stored subscription. Secret and APIKey are never recoverable afterwards.
type CreateOutput struct {
	Webhook     *models.Webhook `json:"webhook"`
	Secret      string          `json:"secret"`
	APIKey      string          `json:"api_key,omitempty"`
	ReceiverURL string          `json:"receiver_url,omitempty"`
}

func (s *Service) Create(orgID string, in CreateInput) (*CreateOutput, error) {
	if len(in.Events) == 0 {
		return nil, fmt.Errorf("%w: at least one event type is required", ErrInvalidConfig)
	}
	if reserved(in.Headers) {
		return nil, fmt.Errorf("%w: custom headers may not set %s or %s", ErrInvalidConfig, "X-Signature", "X-Timestamp")
	}

	webhook := &models.Webhook{
		OrganizationID: orgID,
		Name:           in.Name,
		Events:         in.Events,
		Headers:        in.Headers,
		Enabled:        true,
		Secret:         newSecret(),
	}

	out := &CreateOutput{Webhook: webhook, Secret: webhook.Secret}

	if in.URL == AutoProvisionURL {
		// Inbound variant: mint a collision-resistant receiver path so the
		// caller does not have to pre-host an endpoint.
		webhook.ReceiverPath = "rcv_" + uuid.New().String()
		webhook.URL = s.receiverBase + "/hooks/receivers/" + webhook.ReceiverPath
		out.ReceiverURL = webhook.URL

		apiKey := newAPIKey()
		hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		webhook.APIKeyHash = string(hash)
		out.APIKey = apiKey
	} else {
		if err := validator.ValidateTargetURL(in.URL, s.allowLocal); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		webhook.URL = in.URL
	}

	if err := s.webhooks.Create(webhook); err != nil {
		return nil, err
	}

	webhook.MaskedSecret = MaskSecret(webhook.Secret)
	return out, nil
}

func (s *Service) Get(orgID, id string) (*models.Webhook, error) {
	webhook, err := s.webhooks.GetByID(orgID, id)
	if err != nil {
		return nil, err
	}
	webhook.MaskedSecret = MaskSecret(webhook.Secret)
	return webhook, nil
}

// List returns the tenant's subscriptions, each enriched with its most
// recent delivery attempt in a single batch query.
func (s *Service) List(orgID string) ([]*models.Webhook, error) {
	webhooks, err := s.webhooks.ListByOrg(orgID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(webhooks))
	for i, w := range webhooks {
		ids[i] = w.ID
	}
	latest, err := s.attempts.LatestByWebhooks(ids)
	if err != nil {
		return nil, err
	}

	for _, w := range webhooks {
		w.MaskedSecret = MaskSecret(w.Secret)
		w.LastAttempt = latest[w.ID]
	}
	return webhooks, nil
}

type UpdateInput struct {
	Name    *string            `json:"name"`
	URL     *string            `json:"url"`
	Events  []string           `json:"events"`
	Headers *map[string]string `json:"headers"`
	Enabled *bool              `json:"enabled"`
}

func (s *Service) Update(orgID, id string, in UpdateInput) (*models.Webhook, error) {
	webhook, err := s.webhooks.GetByID(orgID, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		webhook.Name = *in.Name
	}
	if in.URL != nil {
		if webhook.ReceiverPath != "" {
			return nil, fmt.Errorf("%w: the target of a provisioned receiver cannot be changed", ErrInvalidConfig)
		}
		if err := validator.ValidateTargetURL(*in.URL, s.allowLocal); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		webhook.URL = *in.URL
	}
	if len(in.Events) > 0 {
		webhook.Events = in.Events
	}
	if in.Headers != nil {
		if reserved(*in.Headers) {
			return nil, fmt.Errorf("%w: custom headers may not set %s or %s", ErrInvalidConfig, "X-Signature", "X-Timestamp")
		}
		webhook.Headers = *in.Headers
	}
	if in.Enabled != nil {
		webhook.Enabled = *in.Enabled
	}

	if err := s.webhooks.Update(webhook); err != nil {
		return nil, err
	}
	webhook.MaskedSecret = MaskSecret(webhook.Secret)
	return webhook, nil
}

// RotateSecret mints a new signing secret and returns it in plaintext
// exactly once. The old secret stops validating in the same statement.
func (s *Service) RotateSecret(orgID, id string) (string, error) {
	secret := newSecret()
	if err := s.webhooks.RotateSecret(orgID, id, secret); err != nil {
		return "", err
	}
	return secret, nil
}

func (s *Service) Delete(orgID, id string) error {
	return s.webhooks.Delete(orgID, id)
}

// MaskSecret exposes only the first and last four characters, enough for
// an operator to match a secret against their records.
func MaskSecret(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + strings.Repeat("*", 8) + secret[len(secret)-4:]
}

func newSecret() string {
	buf := make([]byte, 24)
	rand.Read(buf)
	return "whsec_" + hex.EncodeToString(buf)
}

func newAPIKey() string {
	buf := make([]byte, 24)
	rand.Read(buf)
	return "whkey_" + hex.EncodeToString(buf)
}

func reserved(headers map[string]string) bool {
	for k := range headers {
		switch strings.ToLower(k) {
		case "x-signature", "x-timestamp":
			return true
		}
	}
	return false
}
