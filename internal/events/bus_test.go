package events

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"websentry/internal/types"
)

func TestBus_PublishDelivers(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe(4)

	alert := &types.Alert{ID: "a1", AttackType: "SQL Injection", SrcIP: "1.2.3.4"}
	b.Publish(Event{Type: AlertCreated, Alert: alert})

	select {
	case evt := <-ch:
		if evt.Type != AlertCreated || evt.Alert.ID != "a1" {
			t.Errorf("Expected new_alert a1, got %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected event delivery")
	}
}

func TestBus_FanOut(t *testing.T) {
	b := NewBus()
	ch1 := b.Subscribe(4)
	ch2 := b.Subscribe(4)

	b.Publish(Event{Type: IPBlocked, Block: &types.BlockEntry{IP: "1.2.3.4"}})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case evt := <-ch:
			if evt.Type != IPBlocked {
				t.Errorf("Expected ip_blocked, got %s", evt.Type)
			}
		case <-time.After(time.Second):
			t.Fatal("Expected both subscribers to receive the event")
		}
	}
}

func TestBus_SlowSubscriberDrops(t *testing.T) {
	b := NewBus()
	b.Subscribe(1) // never drained

	b.Publish(Event{Type: AlertCreated, Alert: &types.Alert{ID: "a1"}})
	b.Publish(Event{Type: AlertCreated, Alert: &types.Alert{ID: "a2"}})

	if b.Dropped() != 1 {
		t.Errorf("Expected 1 dropped event, got %d", b.Dropped())
	}
}

func TestBus_Close(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe(1)
	b.Close()

	if _, ok := <-ch; ok {
		t.Error("Expected subscriber channel closed")
	}
	// Publish after close must not panic
	b.Publish(Event{Type: AlertCreated, Alert: &types.Alert{ID: "a1"}})
}

func TestWebhookNotifier_SendsAlert(t *testing.T) {
	received := make(chan map[string]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var msg map[string]string
		json.Unmarshal(body, &msg)
		received <- msg
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	n.send(Event{Type: AlertCreated, Alert: &types.Alert{
		ID:         "a1",
		AttackType: "SQL Injection",
		SrcIP:      "203.0.113.9",
		URL:        "/login",
		Confidence: 85,
		Priority:   types.PriorityHigh,
	}})

	select {
	case msg := <-received:
		if msg["content"] == "" {
			t.Error("Expected non-empty webhook content")
		}
	case <-time.After(time.Second):
		t.Fatal("Expected webhook delivery")
	}
}
