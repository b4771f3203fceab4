package courier

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TerminalAlerter подаёт сигнал в терминал: звонок и строка раз в interval,
// пока сигнал не остановлен.
type TerminalAlerter struct {
	out      io.Writer
	interval time.Duration
	mu       *sync.Mutex
}

func NewTerminalAlerter(out io.Writer, interval time.Duration, mu *sync.Mutex) *TerminalAlerter {
	if interval <= 0 {
		interval = 1500 * time.Millisecond
	}
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &TerminalAlerter{out: out, interval: interval, mu: mu}
}

// StartAlert запускает сигнал для заказа.
func (a *TerminalAlerter) StartAlert(orderID uuid.UUID) Alert {
	alert := &terminalAlert{stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(alert.done)
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			a.ring(orderID)
			select {
			case <-alert.stop:
				return
			case <-ticker.C:
			}
		}
	}()
	return alert
}

func (a *TerminalAlerter) ring(orderID uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprintf(a.out, "\a>>> новый заказ %s: accept %s | reject %s\n", shortID(orderID), orderID, orderID)
}

type terminalAlert struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Stop возвращает управление после остановки сигнала.
func (a *terminalAlert) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
	<-a.done
}

// TerminalNotifier печатает локальные уведомления в терминал.
type TerminalNotifier struct {
	out io.Writer
	mu  *sync.Mutex
}

func NewTerminalNotifier(out io.Writer, mu *sync.Mutex) *TerminalNotifier {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &TerminalNotifier{out: out, mu: mu}
}

// ScheduleNow печатает уведомление и команду для нажатия на него.
func (n *TerminalNotifier) ScheduleNow(_ context.Context, notification Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := fmt.Fprintf(n.out, "[уведомление] %s: %s (tap %s)\n",
		notification.Title, notification.Body, notification.Data[NotificationKeyOrderID])
	return err
}
