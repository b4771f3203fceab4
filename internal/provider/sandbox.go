package provider

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/courier-backend/internal/models"
)

// Sandbox локальная замена провайдера для разработки. Операции принимаются
// сразу, а результат отдаётся через Resolve, как асинхронный колбэк.
type Sandbox struct {
	mu       sync.Mutex
	failNext error
	pending  map[string]decimal.Decimal
	resolve  func(models.ProviderCallback)
}

// NewSandbox создаёт песочницу. resolve вызывается для каждой принятой операции
// до того, как вызывающий сохранит correlation id, поэтому он не должен
// блокироваться и обязан доставлять колбэк асинхронно. При nil колбэки
// отправляются вручную через Complete.
func NewSandbox(resolve func(models.ProviderCallback)) *Sandbox {
	return &Sandbox{
		pending: make(map[string]decimal.Decimal),
		resolve: resolve,
	}
}

// FailNext заставляет следующий вызов синхронно вернуть err.
func (s *Sandbox) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *Sandbox) InitiatePushPayment(ctx context.Context, req PushPaymentRequest) (*Initiation, error) {
	return s.accept(ctx, req.Reference, req.Amount)
}

func (s *Sandbox) InitiatePayout(ctx context.Context, req PayoutRequest) (*Initiation, error) {
	return s.accept(ctx, req.Reference, req.Amount)
}

// Pending возвращает correlation id операций, по которым ещё не было колбэка.
func (s *Sandbox) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	return ids
}

// Complete формирует колбэк по операции и снимает её из ожидающих.
func (s *Sandbox) Complete(correlationID string, success bool, reason string) (models.ProviderCallback, bool) {
	s.mu.Lock()
	amount, ok := s.pending[correlationID]
	delete(s.pending, correlationID)
	s.mu.Unlock()

	return models.ProviderCallback{
		CorrelationID: correlationID,
		Success:       success,
		Amount:        amount,
		Reason:        reason,
	}, ok
}

func (s *Sandbox) accept(ctx context.Context, reference string, amount decimal.Decimal) (*Initiation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if err := s.failNext; err != nil {
		s.failNext = nil
		s.mu.Unlock()
		return nil, err
	}
	correlationID := "sbx-" + uuid.NewString()
	s.pending[correlationID] = amount
	resolve := s.resolve
	s.mu.Unlock()

	if resolve != nil {
		callback, _ := s.Complete(correlationID, true, "")
		callback.Reference = reference
		resolve(callback)
	}

	return &Initiation{CorrelationID: correlationID}, nil
}
