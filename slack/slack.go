package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"mealmemory"
)

type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client posts meal notifications to a Slack incoming webhook.
type Client struct {
	webhookURL string
	httpClient doer
}

func NewClient(webhookURL string, httpClient doer) *Client {
	return &Client{
		webhookURL: webhookURL,
		httpClient: httpClient,
	}
}

func (c *Client) PostMessage(ctx context.Context, channel string, message string) error {
	payload, err := json.Marshal(map[string]any{
		"channel": channel,
		"text":    message,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create slack request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send slack request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to post message: %s", resp.Status)
	}

	return nil
}

// FormatMeal renders a logged meal and the day's remaining budget as Slack mrkdwn.
func FormatMeal(meal mealmemory.Meal, summary mealmemory.DaySummary) string {
	m := meal.Macros.Rounded()

	var b strings.Builder
	fmt.Fprintf(&b, "*%s*", meal.Name)
	if meal.Tier != "" {
		fmt.Fprintf(&b, " (tier %s)", meal.Tier)
	}
	fmt.Fprintf(&b, "\n%.0f kcal | P %.1fg | C %.1fg | F %.1fg\n", m.Calories, m.Protein, m.Carbs, m.Fat)

	for _, it := range meal.Items {
		q := it.Quantity
		if q == "" {
			q = "-"
		}
		fmt.Fprintf(&b, "• %s (%s): %.0f kcal\n", it.Name, q, it.Calories)
	}

	if meal.Insight != "" {
		fmt.Fprintf(&b, "_%s_\n", meal.Insight)
	}
	for _, s := range meal.Swaps {
		fmt.Fprintf(&b, "↳ %s\n", s)
	}

	fmt.Fprintf(&b, "Remaining today: %.0f kcal across %d meal(s)", summary.Remaining.Rounded().Calories, summary.Meals)
	if meal.Source == mealmemory.SourcePhraseCache {
		b.WriteString(" (from memory)")
	}
	return b.String()
}
