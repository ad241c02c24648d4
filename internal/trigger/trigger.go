package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iurnickita/scrapmart/internal/metrics"
	"github.com/iurnickita/scrapmart/internal/model"
	"github.com/iurnickita/scrapmart/internal/referral"
	"github.com/iurnickita/scrapmart/internal/trigger/alert"
	"github.com/iurnickita/scrapmart/internal/trigger/config"
)

var (
	ErrDeliveryFailed = errors.New("referral evaluation failed")
	ErrStopped        = errors.New("completion trigger is stopped")
)

type Evaluator interface {
	EvaluateCompletion(ctx context.Context, order model.Order) (referral.Outcome, error)
}

// Trigger связывает завершение заказа с начислением реферальной награды.
// Ошибка начисления никогда не откатывает завершение заказа.
type Trigger struct {
	cfg    config.Config
	ledger Evaluator
	sink   alert.Sink
	zaplog *zap.Logger

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewTrigger(cfg config.Config, ledger Evaluator, sink alert.Sink, zaplog *zap.Logger) *Trigger {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Trigger{
		cfg:    cfg,
		ledger: ledger,
		sink:   sink,
		zaplog: zaplog,
		ctx:    ctx,
		cancel: cancel,
		sleep:  sleep,
	}
}

// Notify запускает доставку в фоне и сразу возвращает управление.
// После Stop событие не теряется молча: уходит оповещение для ручного повтора.
func (t *Trigger) Notify(order model.Order) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		metrics.CompletionFailures.Inc()
		t.zaplog.Warn("completion received after stop",
			zap.String("order", order.Number))
		t.sink.Alert(context.Background(), alert.Alert{
			Source:      "completion-trigger",
			OrderNumber: order.Number,
			UserID:      order.UserID,
			Error:       ErrStopped.Error(),
			At:          time.Now(),
		})
		return
	}
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		t.Deliver(t.ctx, order)
	}()
}

// Deliver вычисляет награду с ограниченным числом повторов.
// После исчерпания попыток отправляет оповещение и возвращает ErrDeliveryFailed.
func (t *Trigger) Deliver(ctx context.Context, order model.Order) (referral.Outcome, error) {
	backoff := t.cfg.Backoff
	var (
		err      error
		attempts int
	)
	for attempts < t.cfg.Attempts {
		attempts++
		var outcome referral.Outcome
		outcome, err = t.ledger.EvaluateCompletion(ctx, order)
		if err == nil {
			t.zaplog.Debug("referral evaluated",
				zap.String("order", order.Number),
				zap.String("outcome", string(outcome)))
			return outcome, nil
		}
		if attempts == t.cfg.Attempts || ctx.Err() != nil {
			break
		}

		metrics.CompletionRetries.Inc()
		t.zaplog.Warn("referral evaluation failed, retrying",
			zap.String("order", order.Number),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		if sleepErr := t.sleep(ctx, backoff); sleepErr != nil {
			break
		}
		backoff *= 2
		if t.cfg.MaxBackoff > 0 && backoff > t.cfg.MaxBackoff {
			backoff = t.cfg.MaxBackoff
		}
	}

	metrics.CompletionFailures.Inc()
	t.sink.Alert(context.WithoutCancel(ctx), alert.Alert{
		Source:      "completion-trigger",
		OrderNumber: order.Number,
		UserID:      order.UserID,
		Attempts:    attempts,
		Error:       err.Error(),
		At:          time.Now(),
	})
	return "", fmt.Errorf("%w: order %s after %d attempts: %w", ErrDeliveryFailed, order.Number, attempts, err)
}

// Stop дожидается фоновых доставок; по истечении ctx прерывает оставшиеся
func (t *Trigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		t.cancel()
		return nil
	case <-ctx.Done():
		t.cancel()
		<-done
		return ctx.Err()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
