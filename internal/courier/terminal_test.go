package courier

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestTerminal_AlertStopsRinging(t *testing.T) {
	out := &lockedBuffer{}
	alerter := NewTerminalAlerter(out, 10*time.Millisecond, nil)
	orderID := uuid.New()

	alert := alerter.StartAlert(orderID)
	require.Eventually(t, func() bool { return strings.Count(out.String(), "\a") >= 2 }, time.Second, 5*time.Millisecond)

	alert.Stop()
	rings := strings.Count(out.String(), "\a")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, rings, strings.Count(out.String(), "\a"))

	// повторная остановка безопасна
	alert.Stop()
}

func TestTerminal_NotifierPrintsTapCommand(t *testing.T) {
	out := &lockedBuffer{}
	notifier := NewTerminalNotifier(out, nil)
	orderID := uuid.New()

	err := notifier.ScheduleNow(context.Background(), Notification{
		Title: "Новый заказ",
		Body:  "заказ",
		Data:  map[string]string{NotificationKeyOrderID: orderID.String()},
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "tap "+orderID.String())
}
