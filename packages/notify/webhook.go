package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/http"
)

// webhook posts JSON payloads with the same client scenarios run on.
type webhook struct {
	url    string
	client *http.Client
}

func newWebhook(url string) webhook {
	return webhook{
		url:    url,
		client: http.NewClient(http.WithTimeout(10 * time.Second)),
	}
}

func (w webhook) post(ctx context.Context, service string, payload any, accepted ...int) error {
	req := http.NewRequest("POST", w.url).
		SetHeader("Content-Type", "application/json").
		SetBody(payload)

	resp, err := w.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to send %s notification: %w", service, err)
	}
	for _, code := range accepted {
		if resp.StatusCode == code {
			return nil
		}
	}
	return fmt.Errorf("%s returned status %d: %s", service, resp.StatusCode, resp.BodyString())
}
