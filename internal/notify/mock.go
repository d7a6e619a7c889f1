package notify

import (
	"context"
	"sync"
)

// MockDispatcher records published events for tests.
type MockDispatcher struct {
	mu            sync.Mutex
	OrderEvents   []PublishedOrderEvent
	PaymentEvents []PublishedPaymentEvent
	PublishErr    error
}

type PublishedOrderEvent struct {
	Subject string
	Event   OrderEvent
}

type PublishedPaymentEvent struct {
	Subject string
	Event   PaymentEvent
}

var _ Dispatcher = (*MockDispatcher)(nil)

func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{}
}

func (d *MockDispatcher) PublishOrderEvent(ctx context.Context, subject string, event OrderEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.PublishErr != nil {
		return d.PublishErr
	}
	d.OrderEvents = append(d.OrderEvents, PublishedOrderEvent{Subject: subject, Event: event})
	return nil
}

func (d *MockDispatcher) PublishPaymentEvent(ctx context.Context, subject string, event PaymentEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.PublishErr != nil {
		return d.PublishErr
	}
	d.PaymentEvents = append(d.PaymentEvents, PublishedPaymentEvent{Subject: subject, Event: event})
	return nil
}

func (d *MockDispatcher) Close() {}

// OrderEventCount returns how many order events were published on subject.
func (d *MockDispatcher) OrderEventCount(subject string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, e := range d.OrderEvents {
		if e.Subject == subject {
			n++
		}
	}
	return n
}

// PaymentEventCount returns how many payment events were published on subject.
func (d *MockDispatcher) PaymentEventCount(subject string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, e := range d.PaymentEvents {
		if e.Subject == subject {
			n++
		}
	}
	return n
}
