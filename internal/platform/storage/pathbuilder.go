package storage

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// ObjectPurpose captures high-level intent for storage layout decisions.
type ObjectPurpose string

const (
	PurposeWebhookPayload ObjectPurpose = "webhook-payload"
)

// PathParams provide required identifiers to compose storage object keys.
type PathParams struct {
	Provider   string
	Reference  string
	ReceivedAt time.Time
}

// PathBuilder composes the object path for a given purpose.
type PathBuilder func(PathParams) (string, error)

var (
	pathBuilders = map[ObjectPurpose]PathBuilder{
		PurposeWebhookPayload: buildWebhookPayloadPath,
	}
	pathBuildersMu sync.RWMutex
)

// RegisterPathBuilder overrides or registers a builder for a specific purpose.
func RegisterPathBuilder(purpose ObjectPurpose, builder PathBuilder) {
	pathBuildersMu.Lock()
	defer pathBuildersMu.Unlock()
	if builder == nil {
		delete(pathBuilders, purpose)
		return
	}
	pathBuilders[purpose] = builder
}

// BuildObjectPath resolves the storage object path for the given purpose.
func BuildObjectPath(purpose ObjectPurpose, params PathParams) (string, error) {
	pathBuildersMu.RLock()
	builder, ok := pathBuilders[purpose]
	pathBuildersMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("storage: unsupported object purpose %q", purpose)
	}
	return builder(params)
}

// buildWebhookPayloadPath partitions raw callbacks by provider and UTC day.
func buildWebhookPayloadPath(params PathParams) (string, error) {
	provider, err := validateSegment("provider", strings.ToLower(params.Provider))
	if err != nil {
		return "", err
	}
	reference, err := validateSegment("reference", params.Reference)
	if err != nil {
		return "", err
	}
	received := params.ReceivedAt.UTC()
	if received.IsZero() {
		return "", fmt.Errorf("storage: receivedAt is required")
	}
	name := fmt.Sprintf("%s-%d.json", reference, received.UnixNano())
	return fmt.Sprintf("webhooks/%s/%s/%s", provider, received.Format("2006/01/02"), name), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
