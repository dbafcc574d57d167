package alert

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const telegramAPI = "https://api.telegram.org"

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// TelegramChannel posts alerts through the Bot API sendMessage method
type TelegramChannel struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

func NewTelegramChannel(botToken, chatID string) *TelegramChannel {
	return &TelegramChannel{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  telegramAPI,
		client:   &http.Client{Timeout: channelHTTPTimeout},
	}
}

func (t *TelegramChannel) Name() string { return "telegram" }

// Send posts a plain-text message. Symbols and exchange error bodies contain
// underscores and brackets, so no parse mode is set.
func (t *TelegramChannel) Send(ctx context.Context, alert AlertPayload) error {
	if t.botToken == "" || t.chatID == "" {
		return nil
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	return postJSON(ctx, t.client, t.Name(), url, telegramMessage{
		ChatID:                t.chatID,
		Text:                  formatText(alert),
		DisableWebPagePreview: true,
	})
}

func formatText(alert AlertPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s\n\n%s", levelIcon(alert.Level), alert.Level, alert.Title, alert.Message)
	if len(alert.Fields) > 0 {
		b.WriteString("\n")
		for _, k := range sortedKeys(alert.Fields) {
			fmt.Fprintf(&b, "\n- %s: %s", k, alert.Fields[k])
		}
	}
	return b.String()
}
