package cmd

import (
	"fmt"
	"os"

	"github.com/evtxhunter/evtxhunter/internal/notifier"
)

// buildDispatcher wires a notifier.Dispatcher from the scan command's
// --notify-* flags. It returns nil if none of them were set.
func buildDispatcher(slackWebhook, teamsWebhook string, emailRecipients []string, smtpHost string, smtpPort int, smtpUser, smtpFrom string) (*notifier.Dispatcher, error) {
	var dispatcher *notifier.Dispatcher

	if len(emailRecipients) > 0 {
		if smtpHost == "" {
			return nil, fmt.Errorf("--smtp-host is required when using --notify-email")
		}
		if smtpFrom == "" {
			return nil, fmt.Errorf("--smtp-from is required when using --notify-email")
		}

		dispatcher = notifier.NewDispatcher()
		emailNotifier, err := notifier.NewEmailNotifier(notifier.EmailConfig{
			Host:       smtpHost,
			Port:       smtpPort,
			Username:   smtpUser,
			Password:   os.Getenv("EVTXHUNTER_SMTP_PASS"),
			From:       smtpFrom,
			Recipients: emailRecipients,
		})
		if err != nil {
			return nil, fmt.Errorf("create email notifier: %w", err)
		}
		dispatcher.Register(emailNotifier)
	}

	if slackWebhook != "" {
		if dispatcher == nil {
			dispatcher = notifier.NewDispatcher()
		}
		slackNotifier, err := notifier.NewSlackNotifier(notifier.SlackConfig{WebhookURL: slackWebhook})
		if err != nil {
			return nil, fmt.Errorf("create slack notifier: %w", err)
		}
		dispatcher.Register(slackNotifier)
	}

	if teamsWebhook != "" {
		if dispatcher == nil {
			dispatcher = notifier.NewDispatcher()
		}
		teamsNotifier, err := notifier.NewTeamsNotifier(notifier.TeamsConfig{WebhookURL: teamsWebhook})
		if err != nil {
			return nil, fmt.Errorf("create teams notifier: %w", err)
		}
		dispatcher.Register(teamsNotifier)
	}

	return dispatcher, nil
}
