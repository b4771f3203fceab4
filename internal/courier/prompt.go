package courier

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/courier-backend/internal/logger"
	"github.com/ignatzorin/courier-backend/internal/models"
	"github.com/ignatzorin/courier-backend/internal/pkg/apperror"
)

// PromptState состояние экрана ответа на назначение.
type PromptState int

const (
	PromptIdle PromptState = iota
	PromptAlerting
	PromptResponding
	PromptResolved
)

func (s PromptState) String() string {
	switch s {
	case PromptIdle:
		return "idle"
	case PromptAlerting:
		return "alerting"
	case PromptResponding:
		return "responding"
	case PromptResolved:
		return "resolved"
	}
	return "unknown"
}

// Outcome итог экрана ответа.
type Outcome string

const (
	OutcomeAccepted       Outcome = "accepted"
	OutcomeRejected       Outcome = "rejected"
	OutcomeAlreadyHandled Outcome = "already_handled"
	OutcomeUnavailable    Outcome = "unavailable"
)

var (
	ErrPromptNotDismissible = errors.New("courier: экран нельзя закрыть без ответа")
	ErrPromptResolved       = errors.New("courier: ответ на заказ уже получен")
	ErrResponseInProgress   = errors.New("courier: ответ уже отправляется")
	ErrDecisionLocked       = errors.New("courier: решение по заказу уже выбрано")
)

// PromptResult результат экрана ответа.
type PromptResult struct {
	OrderID uuid.UUID
	Outcome Outcome
	Order   *models.Order
}

// Prompt экран ответа на одно назначение. Сигнал принадлежит экрану и
// останавливается до отправки ответа на сервер.
type Prompt struct {
	mu        sync.Mutex
	orderID   uuid.UUID
	courierID uuid.UUID
	order     *models.Order
	state     PromptState
	decision  *bool
	sending   bool
	alert     Alert
	result    *PromptResult

	alerter    Alerter
	api        OrderResponder
	cache      *OrderCache
	onResolved func(PromptResult)
	log        *logrus.Entry
}

func newPrompt(payload models.AssignmentPayload, courierID uuid.UUID, alerter Alerter, api OrderResponder, cache *OrderCache, onResolved func(PromptResult)) *Prompt {
	return &Prompt{
		orderID:    payload.OrderID,
		courierID:  courierID,
		order:      payload.Order,
		state:      PromptIdle,
		alerter:    alerter,
		api:        api,
		cache:      cache,
		onResolved: onResolved,
		log:        logger.Component("prompt").WithField("order_id", payload.OrderID),
	}
}

// OrderID идентификатор заказа экрана.
func (p *Prompt) OrderID() uuid.UUID { return p.orderID }

// Order заказ из события о назначении, может быть nil.
func (p *Prompt) Order() *models.Order { return p.order }

// State текущее состояние экрана.
func (p *Prompt) State() PromptState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Result итог экрана после перехода в Resolved.
func (p *Prompt) Result() (PromptResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.result == nil {
		return PromptResult{}, false
	}
	return *p.result, true
}

// Start запускает сигнал и переводит экран в Alerting.
func (p *Prompt) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != PromptIdle {
		return
	}
	p.state = PromptAlerting
	if p.alerter != nil {
		p.alert = p.alerter.StartAlert(p.orderID)
	}
}

// Dismiss закрывает экран. Пока курьер не ответил, закрыть экран нельзя.
func (p *Prompt) Dismiss() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == PromptAlerting || p.state == PromptResponding {
		return ErrPromptNotDismissible
	}
	return nil
}

// Accept принимает заказ.
func (p *Prompt) Accept(ctx context.Context) (PromptResult, error) {
	return p.respond(ctx, true)
}

// Reject отклоняет заказ.
func (p *Prompt) Reject(ctx context.Context) (PromptResult, error) {
	return p.respond(ctx, false)
}

func (p *Prompt) respond(ctx context.Context, accepted bool) (PromptResult, error) {
	p.mu.Lock()
	switch {
	case p.state == PromptResolved:
		p.mu.Unlock()
		return PromptResult{}, ErrPromptResolved
	case p.state == PromptIdle:
		p.mu.Unlock()
		return PromptResult{}, fmt.Errorf("courier: экран ответа не запущен")
	case p.sending:
		p.mu.Unlock()
		return PromptResult{}, ErrResponseInProgress
	case p.decision != nil && *p.decision != accepted:
		p.mu.Unlock()
		return PromptResult{}, ErrDecisionLocked
	}
	p.decision = &accepted
	p.sending = true
	p.state = PromptResponding
	alert := p.alert
	p.alert = nil
	p.mu.Unlock()

	// Сигнал должен замолчать до ответа сервера
	if alert != nil {
		alert.Stop()
	}

	order, err := p.api.RespondToOrder(ctx, p.orderID, p.courierID, accepted)

	p.mu.Lock()
	p.sending = false
	if err != nil {
		outcome, terminal := outcomeForError(err)
		if !terminal {
			p.mu.Unlock()
			p.log.WithError(err).Warn("ответ на заказ не отправлен, можно повторить")
			return PromptResult{}, err
		}
		result := p.resolveLocked(outcome, nil)
		p.mu.Unlock()
		p.log.WithError(err).Info("заказ уже обработан")
		p.finish(result)
		return result, nil
	}

	outcome := OutcomeRejected
	if accepted {
		outcome = OutcomeAccepted
	}
	result := p.resolveLocked(outcome, order)
	p.mu.Unlock()

	if p.cache != nil {
		if accepted && order != nil {
			p.cache.Upsert(*order)
		} else {
			p.cache.MarkRejected(p.orderID, order)
		}
	}
	p.log.WithField("outcome", outcome).Info("ответ на заказ отправлен")
	p.finish(result)
	return result, nil
}

func (p *Prompt) resolveLocked(outcome Outcome, order *models.Order) PromptResult {
	p.state = PromptResolved
	result := PromptResult{OrderID: p.orderID, Outcome: outcome, Order: order}
	p.result = &result
	return result
}

func (p *Prompt) finish(result PromptResult) {
	if p.onResolved != nil {
		p.onResolved(result)
	}
}

// outcomeForError решает, завершает ли ошибка сервера работу экрана.
func outcomeForError(err error) (Outcome, bool) {
	switch {
	case apperror.IsConflict(err):
		return OutcomeAlreadyHandled, true
	case apperror.IsNotFound(err), apperror.IsForbidden(err):
		return OutcomeUnavailable, true
	}
	return "", false
}
