package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestSendAndSaveThroughWebhook(t *testing.T) {
	var (
		mu  sync.Mutex
		got pushNotification
	)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	db := newTestDatabase(t)
	hub := NewEventHub(4, testLogger)
	events, cancel := hub.Subscribe("anyone")
	defer cancel()

	svc := NewAlertService(db, hub, NewWebhookNotifier(gateway.URL), testLogger)
	alert, err := svc.SendAndSave(context.Background(), SendAlertRequest{Title: " AAPL up 5% ", Body: "Apple moved", Token: "device-1", UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if alert.Title != "AAPL up 5%" || alert.UserID == nil || *alert.UserID != "u1" {
		t.Errorf("unexpected alert %+v", alert)
	}

	mu.Lock()
	if got.Token != "device-1" || got.Notification.Title != "AAPL up 5%" || got.Notification.Body != "Apple moved" {
		t.Errorf("gateway received %+v", got)
	}
	mu.Unlock()

	if ev := <-events; ev.Topic != TopicAlerts || ev.Key != alert.ID {
		t.Errorf("event = %+v", ev)
	}

	stored, err := svc.List(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 || stored[0].ID != alert.ID {
		t.Errorf("stored alerts = %+v", stored)
	}
}

func TestFailedDeliveryStoresNothing(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer gateway.Close()

	db := newTestDatabase(t)
	svc := NewAlertService(db, nil, NewWebhookNotifier(gateway.URL), testLogger)
	if _, err := svc.SendAndSave(context.Background(), SendAlertRequest{Title: "t", Token: "bad-token"}); err == nil {
		t.Fatal("expected delivery error")
	}
	if _, err := svc.SendAndSave(context.Background(), SendAlertRequest{Title: "  "}); err == nil {
		t.Fatal("expected an error for an empty title")
	}

	stored, _ := svc.List(0)
	if len(stored) != 0 {
		t.Errorf("failed alerts were stored: %+v", stored)
	}
}

func TestAlertsListNewestFirst(t *testing.T) {
	db := newTestDatabase(t)
	svc := NewAlertService(db, nil, NewLogNotifier(testLogger), testLogger)

	at := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		at = at.Add(time.Minute)
		return at
	}
	for _, title := range []string{"one", "two", "three"} {
		if _, err := svc.SendAndSave(context.Background(), SendAlertRequest{Title: title}); err != nil {
			t.Fatal(err)
		}
	}

	alerts, err := svc.List(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 2 || alerts[0].Title != "three" || alerts[1].Title != "two" {
		t.Errorf("alerts = %+v", alerts)
	}
	if alerts[0].UserID != nil {
		t.Errorf("alert without user should have a nil user id")
	}
}
