package orderstate

import (
	"errors"
	"fmt"

	"github.com/iurnickita/scrapmart/internal/model"
)

var ErrInvalidTransition = errors.New("invalid transition")

type InvalidTransitionError struct {
	From model.OrderStatus
	To   model.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Таблица допустимых переходов. Терминальные статусы переходов не имеют.
var transitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderStatusPending:   {model.OrderStatusConfirmed, model.OrderStatusCancelled},
	model.OrderStatusConfirmed: {model.OrderStatusPicked, model.OrderStatusCancelled},
	model.OrderStatusPicked:    {model.OrderStatusCompleted},
	model.OrderStatusCompleted: nil,
	model.OrderStatusCancelled: nil,
}

const Initial = model.OrderStatusPending

// Allowed возвращает статусы, достижимые из from за один шаг
func Allowed(from model.OrderStatus) []model.OrderStatus {
	next := transitions[from]
	out := make([]model.OrderStatus, len(next))
	copy(out, next)
	return out
}

func IsTerminal(status model.OrderStatus) bool {
	next, ok := transitions[status]
	return ok && len(next) == 0
}

// Transition проверяет переход from -> to по таблице
func Transition(from, to model.OrderStatus) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return &InvalidTransitionError{From: from, To: to}
}
