package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"slumber/pkg/interfaces"
	"slumber/pkg/logger"
)

// FeishuNotifier sends operator alerts to a Feishu (Lark) webhook
type FeishuNotifier struct {
	webhookURL string
	client     *http.Client
	now        func() time.Time
}

var _ interfaces.AlertNotifier = (*FeishuNotifier)(nil)

// NewFeishuNotifier creates a notifier. Priority: webhookURL argument > FEISHU_WEBHOOK_URL.
// Without a URL alerts are only logged.
func NewFeishuNotifier(webhookURL string) *FeishuNotifier {
	if webhookURL == "" {
		webhookURL = os.Getenv("FEISHU_WEBHOOK_URL")
		if webhookURL != "" {
			logger.Info("Using Feishu webhook URL from environment variable")
		}
	}

	if webhookURL == "" {
		logger.Warn("Feishu webhook URL not configured, orphan alerts will only be logged")
	}

	return &FeishuNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		now: time.Now,
	}
}

// NotifyOrphan reports runtime objects that need manual cleanup
func (f *FeishuNotifier) NotifyOrphan(ctx context.Context, alert *interfaces.OrphanAlert) error {
	logger.ErrorCtx(ctx, "orphaned resources after %s of workload %s: %s (%s)",
		alert.Operation, alert.WorkloadID, strings.Join(alert.Handles, ", "), alert.Reason)

	if f.webhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(f.buildOrphanMessage(alert))
	if err != nil {
		return fmt.Errorf("failed to marshal Feishu message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Feishu notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Feishu API returned status code: %d", resp.StatusCode)
	}

	logger.InfoCtx(ctx, "Feishu orphan alert sent for workload: %s", alert.WorkloadID)
	return nil
}

func (f *FeishuNotifier) buildOrphanMessage(alert *interfaces.OrphanAlert) map[string]interface{} {
	handles := "none recorded"
	if len(alert.Handles) > 0 {
		handles = strings.Join(alert.Handles, "\n")
	}

	return map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"header": map[string]interface{}{
				"template": "red",
				"title": map[string]interface{}{
					"content": "Orphaned runtime resources",
					"tag":     "plain_text",
				},
			},
			"elements": []interface{}{
				map[string]interface{}{
					"tag": "div",
					"fields": []interface{}{
						map[string]interface{}{
							"is_short": true,
							"text": map[string]interface{}{
								"content": fmt.Sprintf("**Workload**\n%s", alert.WorkloadID),
								"tag":     "lark_md",
							},
						},
						map[string]interface{}{
							"is_short": true,
							"text": map[string]interface{}{
								"content": fmt.Sprintf("**Operation**\n%s", alert.Operation),
								"tag":     "lark_md",
							},
						},
					},
				},
				map[string]interface{}{
					"tag": "div",
					"text": map[string]interface{}{
						"content": fmt.Sprintf("**Handles**\n%s", handles),
						"tag":     "lark_md",
					},
				},
				map[string]interface{}{
					"tag": "div",
					"text": map[string]interface{}{
						"content": fmt.Sprintf("**Reason**: %s", alert.Reason),
						"tag":     "lark_md",
					},
				},
				map[string]interface{}{
					"tag": "hr",
				},
				map[string]interface{}{
					"tag": "note",
					"elements": []interface{}{
						map[string]interface{}{
							"content": fmt.Sprintf("Detected at %s. Remove the handles above by hand; the orchestrator no longer tracks them.",
								f.now().UTC().Format("2006-01-02 15:04:05")),
							"tag": "plain_text",
						},
					},
				},
			},
		},
	}
}
