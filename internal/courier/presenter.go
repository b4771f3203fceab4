package courier

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ignatzorin/courier-backend/internal/models"
)

// Presenter владеет экранами ответа: не больше одного активного экрана на заказ.
type Presenter struct {
	mu        sync.Mutex
	prompts   map[uuid.UUID]*Prompt
	courierID uuid.UUID

	alerter    Alerter
	api        OrderResponder
	cache      *OrderCache
	onShow     func(*Prompt)
	onResolved func(PromptResult)
}

// PresenterOption настраивает Presenter.
type PresenterOption func(*Presenter)

// WithOnShow вызывается при открытии нового экрана.
func WithOnShow(fn func(*Prompt)) PresenterOption {
	return func(p *Presenter) { p.onShow = fn }
}

// WithOnResolved вызывается после ответа, экран при этом закрывается.
func WithOnResolved(fn func(PromptResult)) PresenterOption {
	return func(p *Presenter) { p.onResolved = fn }
}

func NewPresenter(courierID uuid.UUID, alerter Alerter, api OrderResponder, cache *OrderCache, opts ...PresenterOption) *Presenter {
	p := &Presenter{
		prompts:   make(map[uuid.UUID]*Prompt),
		courierID: courierID,
		alerter:   alerter,
		api:       api,
		cache:     cache,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Present открывает экран ответа. Если экран по заказу уже открыт и не
// завершён, второй не создаётся.
func (p *Presenter) Present(_ context.Context, payload models.AssignmentPayload) error {
	p.mu.Lock()
	if existing, ok := p.prompts[payload.OrderID]; ok && existing.State() != PromptResolved {
		p.mu.Unlock()
		return nil
	}
	prompt := newPrompt(payload, p.courierID, p.alerter, p.api, p.cache, p.resolved)
	p.prompts[payload.OrderID] = prompt
	p.mu.Unlock()

	prompt.Start()
	if p.onShow != nil {
		p.onShow(prompt)
	}
	return nil
}

// Prompt возвращает экран по заказу.
func (p *Presenter) Prompt(orderID uuid.UUID) (*Prompt, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prompt, ok := p.prompts[orderID]
	return prompt, ok
}

// Active возвращает незавершённые экраны.
func (p *Presenter) Active() []*Prompt {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Prompt, 0, len(p.prompts))
	for _, prompt := range p.prompts {
		if prompt.State() != PromptResolved {
			out = append(out, prompt)
		}
	}
	return out
}

func (p *Presenter) resolved(result PromptResult) {
	p.mu.Lock()
	if prompt, ok := p.prompts[result.OrderID]; ok && prompt.State() == PromptResolved {
		delete(p.prompts, result.OrderID)
	}
	p.mu.Unlock()
	if p.onResolved != nil {
		p.onResolved(result)
	}
}
