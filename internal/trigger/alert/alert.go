// Package alert доставляет операционные оповещения о неначисленных наградах.
package alert

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

type Alert struct {
	Source      string    `json:"source"`
	OrderNumber string    `json:"order_number"`
	UserID      string    `json:"user_id"`
	Attempts    int       `json:"attempts"`
	Error       string    `json:"error"`
	At          time.Time `json:"at"`
}

type Sink interface {
	Alert(ctx context.Context, alert Alert) error
}

type logSink struct {
	zaplog *zap.Logger
}

func NewLogSink(zaplog *zap.Logger) Sink {
	return &logSink{zaplog: zaplog}
}

func (s *logSink) Alert(_ context.Context, alert Alert) error {
	s.zaplog.Error("operational alert",
		zap.String("source", alert.Source),
		zap.String("order", alert.OrderNumber),
		zap.String("user", alert.UserID),
		zap.Int("attempts", alert.Attempts),
		zap.String("error", alert.Error),
		zap.Time("at", alert.At),
	)
	return nil
}

// webhookSink пишет в лог и дублирует оповещение POST-запросом
type webhookSink struct {
	url    string
	client *resty.Client
	log    Sink
	zaplog *zap.Logger
}

func NewWebhookSink(url string, timeout time.Duration, zaplog *zap.Logger) Sink {
	return &webhookSink{
		url:    url,
		client: resty.New().SetTimeout(timeout),
		log:    NewLogSink(zaplog),
		zaplog: zaplog,
	}
}

func (s *webhookSink) Alert(ctx context.Context, alert Alert) error {
	s.log.Alert(ctx, alert)

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(alert).
		Post(s.url)
	if err != nil {
		s.zaplog.Warn("alert webhook failed", zap.Error(err))
		return err
	}
	if resp.StatusCode() >= http.StatusMultipleChoices {
		err = fmt.Errorf("alert webhook status: %d", resp.StatusCode())
		s.zaplog.Warn("alert webhook failed", zap.Error(err))
		return err
	}
	return nil
}
