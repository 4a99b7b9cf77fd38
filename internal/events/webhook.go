package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// WebhookNotifier posts alert and block announcements to a chat webhook.
// Delivery is fire and forget; a failed post is logged and dropped.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Run consumes the bus until the channel closes
func (w *WebhookNotifier) Run(ch <-chan Event) {
	for evt := range ch {
		w.send(evt)
	}
}

func (w *WebhookNotifier) send(evt Event) {
	type webhookMsg struct {
		Content string `json:"content"`
	}

	var content string
	switch {
	case evt.Type == IPBlocked && evt.Block != nil:
		content = fmt.Sprintf("**[%s] WebSentry Block**\n**IP**: %s\n**Reason**: %s",
			time.Now().Format("15:04:05"), evt.Block.IP, evt.Block.Reason)
	case evt.Alert != nil:
		content = fmt.Sprintf("**[%s] WebSentry Alert**\n**Attack**: %s\n**Source**: %s\n**URL**: %s\n**Confidence**: %d (%s)\n**Occurrences**: %d",
			time.Now().Format("15:04:05"), evt.Alert.AttackType, evt.Alert.SrcIP,
			evt.Alert.URL, evt.Alert.Confidence, evt.Alert.Priority, evt.Alert.Occurrences)
	default:
		return
	}

	body, _ := json.Marshal(webhookMsg{Content: content})
	resp, err := w.client.Post(w.url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		log.Printf("[NOTIFY] Failed to send webhook: %v", err)
		return
	}
	resp.Body.Close()
}
