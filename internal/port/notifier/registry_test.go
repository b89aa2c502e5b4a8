package notifier

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
)

type stubNotifier struct{ name string }

func (s *stubNotifier) Name() string                                 { return s.name }
func (s *stubNotifier) Send(_ context.Context, _ Notification) error { return nil }

func TestRegisterAndNew(t *testing.T) {
	Register("stub-test", func(settings map[string]string) (Notifier, error) {
		return &stubNotifier{name: settings["name"]}, nil
	})

	n, err := New("stub-test", map[string]string{"name": "pager"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Name() != "pager" {
		t.Fatalf("expected pager, got %q", n.Name())
	}
	if !slices.Contains(Available(), "stub-test") {
		t.Fatalf("expected stub-test in %v", Available())
	}
}

func TestNewUnknown(t *testing.T) {
	if _, err := New("does-not-exist", nil); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewWrapsFactoryError(t *testing.T) {
	Register("broken-test", func(map[string]string) (Notifier, error) {
		return nil, ErrNotConfigured
	})

	_, err := New("broken-test", nil)
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if !strings.Contains(err.Error(), "broken-test") {
		t.Fatalf("expected provider name in error, got %v", err)
	}
}

func TestNewUnknownListsAvailable(t *testing.T) {
	Register("listed-test", func(map[string]string) (Notifier, error) { return &stubNotifier{}, nil })

	_, err := New("pagerduty", nil)
	if err == nil || !strings.Contains(err.Error(), "listed-test") {
		t.Fatalf("expected available providers in error, got %v", err)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	Register("dup-test", func(map[string]string) (Notifier, error) { return &stubNotifier{}, nil })
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	Register("dup-test", func(map[string]string) (Notifier, error) { return &stubNotifier{}, nil })
}
