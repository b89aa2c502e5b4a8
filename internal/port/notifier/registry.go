package notifier

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Factory builds a Notifier from provider settings (webhook URL, SMTP host, ...).
// It returns ErrNotConfigured when a required setting is missing.
type Factory func(settings map[string]string) (Notifier, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a notifier factory available by name.
// It is typically called from an init() function in the adapter package.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("notifier: duplicate registration for %q", name))
	}
	factories[name] = factory
}

// New creates a Notifier by name using the registered factory.
func New(name string, settings map[string]string) (Notifier, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("notifier: unknown provider %q (available: %s)", name, strings.Join(Available(), ", "))
	}
	n, err := factory(settings)
	if err != nil {
		return nil, fmt.Errorf("notifier %s: %w", name, err)
	}
	return n, nil
}

// Available returns the sorted names of all registered notifiers.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
