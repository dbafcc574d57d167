package alert

import (
	"context"
	"fmt"
	"net/http"
)

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color   string       `json:"color"`
	Pretext string       `json:"pretext"`
	Text    string       `json:"text"`
	Fields  []slackField `json:"fields,omitempty"`
	Footer  string       `json:"footer"`
	Ts      int64        `json:"ts"`
}

type slackMessage struct {
	Attachments []slackAttachment `json:"attachments"`
}

// SlackChannel posts alerts to an incoming webhook
type SlackChannel struct {
	webhookURL string
	client     *http.Client
}

func NewSlackChannel(webhookURL string) *SlackChannel {
	return &SlackChannel{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: channelHTTPTimeout},
	}
}

func (s *SlackChannel) Name() string { return "slack" }

func (s *SlackChannel) Send(ctx context.Context, alert AlertPayload) error {
	if s.webhookURL == "" {
		return nil
	}

	att := slackAttachment{
		Color:   levelColor(alert.Level),
		Pretext: fmt.Sprintf("[%s] %s", alert.Level, alert.Title),
		Text:    alert.Message,
		Footer:  "signal gateway",
		Ts:      alert.Timestamp.Unix(),
	}
	for _, k := range sortedKeys(alert.Fields) {
		att.Fields = append(att.Fields, slackField{Title: k, Value: alert.Fields[k], Short: true})
	}
	return postJSON(ctx, s.client, s.Name(), s.webhookURL, slackMessage{Attachments: []slackAttachment{att}})
}
