package webhook

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pagora/pagora/internal/model"
)

// NewEndpoint builds a webhook endpoint with a fresh signing secret. The
// secret is returned to the caller exactly once, on creation.
func NewEndpoint(tenantID string, req *model.CreateWebhookEndpointRequest) *model.WebhookEndpoint {
	return &model.WebhookEndpoint{
		ID:         "we_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		TenantID:   tenantID,
		URL:        req.URL,
		Secret:     newSecret(),
		EventTypes: req.EventTypes,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
}

func newSecret() string {
	buf := make([]byte, 24)
	rand.Read(buf)
	return "whsec_" + hex.EncodeToString(buf)
}
