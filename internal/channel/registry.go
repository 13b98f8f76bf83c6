package channel

import (
	"fmt"
	"sync"
)

// Registry holds all registered platform adapters and provides typed
// capability lookups. It must be created via NewRegistry and passed
// explicitly to components that need it.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Platform]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: map[Platform]Adapter{}}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("adapter is nil")
	}
	platform, err := ParsePlatform(adapter.Type().String())
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[platform]; exists {
		return fmt.Errorf("platform already registered: %s", platform)
	}
	r.adapters[platform] = adapter
	return nil
}

// MustRegister calls Register and panics on error.
func (r *Registry) MustRegister(adapter Adapter) {
	if err := r.Register(adapter); err != nil {
		panic(err)
	}
}

// Get returns the adapter for the given platform.
func (r *Registry) Get(platform Platform) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[platform]
	if !ok {
		return nil, fmt.Errorf("platform not registered: %s", platform)
	}
	return adapter, nil
}

// Platforms returns all registered platform kinds.
func (r *Registry) Platforms() []Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]Platform, 0, len(r.adapters))
	for p := range r.adapters {
		items = append(items, p)
	}
	return items
}

// ListDescriptors returns descriptors for all registered platforms.
func (r *Registry) ListDescriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]Descriptor, 0, len(r.adapters))
	for _, a := range r.adapters {
		items = append(items, a.Descriptor())
	}
	return items
}

// GetVerifier returns the WebhookVerifier for the platform.
func (r *Registry) GetVerifier(platform Platform) (WebhookVerifier, error) {
	adapter, err := r.Get(platform)
	if err != nil {
		return nil, err
	}
	verifier, ok := adapter.(WebhookVerifier)
	if !ok {
		return nil, fmt.Errorf("platform %s does not verify webhooks", platform)
	}
	return verifier, nil
}

// GetParser returns the EventParser for the platform.
func (r *Registry) GetParser(platform Platform) (EventParser, error) {
	adapter, err := r.Get(platform)
	if err != nil {
		return nil, err
	}
	parser, ok := adapter.(EventParser)
	if !ok {
		return nil, fmt.Errorf("platform %s does not parse events", platform)
	}
	return parser, nil
}

// GetSender returns the Sender for the platform.
func (r *Registry) GetSender(platform Platform) (Sender, error) {
	adapter, err := r.Get(platform)
	if err != nil {
		return nil, err
	}
	sender, ok := adapter.(Sender)
	if !ok {
		return nil, fmt.Errorf("platform %s does not send messages", platform)
	}
	return sender, nil
}

// GetSubscriptionVerifier returns the SubscriptionVerifier for the platform.
// Platforms without a GET handshake do not implement it.
func (r *Registry) GetSubscriptionVerifier(platform Platform) (SubscriptionVerifier, error) {
	adapter, err := r.Get(platform)
	if err != nil {
		return nil, err
	}
	verifier, ok := adapter.(SubscriptionVerifier)
	if !ok {
		return nil, fmt.Errorf("platform %s has no subscription handshake", platform)
	}
	return verifier, nil
}
