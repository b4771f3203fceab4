package courier

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ignatzorin/courier-backend/internal/models"
)

// callLog общий журнал вызовов, чтобы проверять порядок остановки сигнала и запроса.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	l.calls = append(l.calls, call)
	l.mu.Unlock()
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeAlert struct {
	log     *callLog
	stopped int
}

func (a *fakeAlert) Stop() {
	a.stopped++
	a.log.add("alert-stop")
}

type fakeAlerter struct {
	log    *callLog
	mu     sync.Mutex
	alerts []*fakeAlert
}

func (a *fakeAlerter) StartAlert(orderID uuid.UUID) Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	alert := &fakeAlert{log: a.log}
	a.alerts = append(a.alerts, alert)
	a.log.add("alert-start")
	return alert
}

func (a *fakeAlerter) started() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.alerts)
}

type fakeResponder struct {
	log   *callLog
	calls int
	fn    func(orderID, courierID uuid.UUID, accepted bool) (*models.Order, error)
}

func (r *fakeResponder) RespondToOrder(ctx context.Context, orderID, courierID uuid.UUID, accepted bool) (*models.Order, error) {
	r.calls++
	r.log.add("respond")
	return r.fn(orderID, courierID, accepted)
}

type recordingPresenter struct {
	mu       sync.Mutex
	payloads []models.AssignmentPayload
}

func (p *recordingPresenter) Present(ctx context.Context, payload models.AssignmentPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *recordingPresenter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.payloads)
}

type recordingNotifier struct {
	mu            sync.Mutex
	notifications []Notification
}

func (n *recordingNotifier) ScheduleNow(ctx context.Context, notification Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notification)
	return nil
}

func (n *recordingNotifier) list() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.notifications...)
}

func boolPtr(v bool) *bool { return &v }

func assignedOrder(id, courierID uuid.UUID) *models.Order {
	return &models.Order{
		ID:            id,
		Status:        models.OrderStatusConfirmed,
		PaymentStatus: models.PaymentStatusUnpaid,
		CourierID:     &courierID,
	}
}
