package slack

import (
	"fmt"
	"strings"

	"github.com/Strob0t/RepairDesk/internal/port/notifier"
)

func init() {
	notifier.Register(providerName, func(settings map[string]string) (notifier.Notifier, error) {
		url := strings.TrimSpace(settings["webhook_url"])
		if url == "" {
			return nil, fmt.Errorf("%w: webhook_url is required", notifier.ErrNotConfigured)
		}
		if !strings.HasPrefix(url, "https://") {
			return nil, fmt.Errorf("slack webhook_url must use https")
		}
		return NewNotifier(url), nil
	})
}
