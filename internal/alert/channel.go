package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	channelHTTPTimeout = 5 * time.Second
	maxErrorBody       = 512
)

var levelStyle = map[AlertLevel]struct {
	icon  string
	color string
}{
	Info:     {icon: "ℹ️", color: "#36a64f"},
	Warning:  {icon: "⚠️", color: "#ffcc00"},
	Error:    {icon: "❌", color: "#ff0000"},
	Critical: {icon: "🚨", color: "#8b0000"},
}

func levelIcon(l AlertLevel) string {
	if s, ok := levelStyle[l]; ok {
		return s.icon
	}
	return levelStyle[Info].icon
}

func levelColor(l AlertLevel) string {
	if s, ok := levelStyle[l]; ok {
		return s.color
	}
	return levelStyle[Info].color
}

// postJSON sends v to url and turns any non-200 reply into an error carrying
// the start of the response body.
func postJSON(ctx context.Context, client *http.Client, channel, url string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: encode: %w", channel, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", channel, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", channel, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s: status %d: %s", channel, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
