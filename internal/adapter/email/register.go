package email

import (
	"fmt"
	"strings"

	"github.com/Strob0t/RepairDesk/internal/port/notifier"
)

func init() {
	notifier.Register(providerName, func(settings map[string]string) (notifier.Notifier, error) {
		var recipients []string
		for _, r := range strings.Split(settings["recipients"], ",") {
			if r = strings.TrimSpace(r); r != "" {
				recipients = append(recipients, r)
			}
		}
		if strings.TrimSpace(settings["host"]) == "" || len(recipients) == 0 {
			return nil, fmt.Errorf("%w: host and recipients are required", notifier.ErrNotConfigured)
		}
		return NewNotifier(SMTPConfig{
			Host:       settings["host"],
			Port:       settings["port"],
			From:       settings["from"],
			User:       settings["user"],
			Password:   settings["password"],
			Recipients: recipients,
		}), nil
	})
}
