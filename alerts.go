package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier delivers a push notification to one device token.
type Notifier interface {
	Notify(ctx context.Context, token, title, body string) error
}

type pushNotification struct {
	Token        string `json:"token"`
	Notification struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	} `json:"notification"`
}

// WebhookNotifier posts notifications to a push gateway.
type WebhookNotifier struct {
	client *resty.Client
	url    string
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	client := resty.New()
	client.SetTimeout(15 * time.Second)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(500 * time.Millisecond)
	return &WebhookNotifier{client: client, url: url}
}

func (n *WebhookNotifier) Notify(ctx context.Context, token, title, body string) error {
	var msg pushNotification
	msg.Token = token
	msg.Notification.Title = title
	msg.Notification.Body = body

	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(msg).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("failed to send push notification: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("push gateway returned status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// LogNotifier only logs; used when no push gateway is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("push")}
}

func (n *LogNotifier) Notify(_ context.Context, token, title, body string) error {
	n.logger.Info("push notification", zap.String("token", token), zap.String("title", title), zap.String("body", body))
	return nil
}

// AlertService pushes an alert and then files it in the shared alerts
// collection.
type AlertService struct {
	db       *Database
	hub      *EventHub
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewAlertService(db *Database, hub *EventHub, notifier Notifier, logger *zap.Logger) *AlertService {
	return &AlertService{
		db:       db,
		hub:      hub,
		notifier: notifier,
		logger:   logger.Named("alerts"),
		now:      time.Now,
	}
}

// SendAndSave delivers the notification and stores the alert. Nothing is
// stored when delivery fails. Without a token the alert is only stored.
func (s *AlertService) SendAndSave(ctx context.Context, req SendAlertRequest) (Alert, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return Alert{}, fmt.Errorf("alert title is required")
	}

	if req.Token != "" {
		if err := s.notifier.Notify(ctx, req.Token, title, req.Body); err != nil {
			s.logger.Error("alert delivery failed", zap.String("title", title), zap.Error(err))
			return Alert{}, err
		}
	}

	alert := Alert{
		ID:        uuid.NewString(),
		Title:     title,
		Body:      req.Body,
		CreatedAt: s.now().UTC(),
	}
	if req.UserID != "" {
		uid := req.UserID
		alert.UserID = &uid
	}
	if err := s.db.AddAlert(alert); err != nil {
		return Alert{}, err
	}

	if s.hub != nil {
		s.hub.Publish(Event{Topic: TopicAlerts, Key: alert.ID, Payload: alert})
	}
	s.logger.Info("alert saved", zap.String("id", alert.ID), zap.String("title", title))
	return alert, nil
}

// List returns the newest alerts first.
func (s *AlertService) List(limit int) ([]Alert, error) {
	return s.db.ListAlerts(limit)
}
