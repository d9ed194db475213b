package channel

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type stubTransport struct {
	sent    []string
	lastDst string
	err     error
}

func (s *stubTransport) Send(ctx context.Context, destination, payload string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, payload)
	s.lastDst = destination
	return "msg-1", nil
}

func TestDeliverRoutesByKind(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	email := &stubTransport{}
	sms := &stubTransport{}
	d.Register(KindEmail, email)
	d.Register(KindMessaging, sms)

	receipt, err := d.Deliver(context.Background(), KindEmail, "john.doe@example.com", "123456")
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if receipt.MessageID != "msg-1" || receipt.Kind != KindEmail {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if len(email.sent) != 1 || len(sms.sent) != 0 {
		t.Fatal("expected only the email transport to be used")
	}

	if _, err := d.Deliver(context.Background(), KindMessaging, "6285800650661", "654321"); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if len(sms.sent) != 1 {
		t.Fatal("expected the messaging transport to be used")
	}
}

func TestDeliverValidatesDestinationBeforeTransport(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	email := &stubTransport{}
	d.Register(KindEmail, email)

	_, err := d.Deliver(context.Background(), KindEmail, "not-an-email", "123456")
	if !errors.Is(err, ErrInvalidDestination) {
		t.Fatalf("expected ErrInvalidDestination, got %v", err)
	}
	if len(email.sent) != 0 {
		t.Fatal("transport must not be reached for an invalid destination")
	}

	_, err = d.Deliver(context.Background(), KindMessaging, "abc", "123456")
	if !errors.Is(err, ErrInvalidDestination) {
		t.Fatalf("expected ErrInvalidDestination, got %v", err)
	}
}

func TestDeliverMapsTransportErrors(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	d.Register(KindEmail, &stubTransport{err: errors.New("connection refused")})

	_, err := d.Deliver(context.Background(), KindEmail, "a@example.com", "123456")
	if !errors.Is(err, ErrChannelUnavailable) {
		t.Fatalf("expected ErrChannelUnavailable, got %v", err)
	}

	d.Register(KindEmail, &stubTransport{err: ErrDeliveryRejected})
	_, err = d.Deliver(context.Background(), KindEmail, "a@example.com", "123456")
	if !errors.Is(err, ErrDeliveryRejected) {
		t.Fatalf("expected ErrDeliveryRejected, got %v", err)
	}
}

func TestDeliverUnregisteredKind(t *testing.T) {
	d := NewDispatcher(zap.NewNop())

	_, err := d.Deliver(context.Background(), KindEmail, "a@example.com", "123456")
	if !errors.Is(err, ErrChannelUnavailable) {
		t.Fatalf("expected ErrChannelUnavailable, got %v", err)
	}
}

func TestValidateDestinationUnknownKind(t *testing.T) {
	if err := ValidateDestination(Kind("carrier-pigeon"), "x"); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("expected ErrUnknownChannel, got %v", err)
	}
}
