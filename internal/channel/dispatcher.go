package channel

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"stepup-auth/internal/util"
)

// Kind identifies an out-of-band delivery path for a code.
type Kind string

const (
	KindEmail     Kind = "email"
	KindMessaging Kind = "messaging"
)

var (
	ErrUnknownChannel     = errors.New("unknown channel kind")
	ErrInvalidDestination = errors.New("invalid destination for channel")

	// ErrChannelUnavailable means the transport could not be reached;
	// ErrDeliveryRejected means it was reached but declined the message.
	// Both are recoverable from the caller's side.
	ErrChannelUnavailable = errors.New("channel transport unavailable")
	ErrDeliveryRejected   = errors.New("delivery rejected by transport")
)

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9]{8,15}$`)
)

// ValidKind reports whether the kind names a supported channel.
func ValidKind(kind Kind) bool {
	return kind == KindEmail || kind == KindMessaging
}

// ValidateDestination checks the destination shape for a kind without
// touching any transport.
func ValidateDestination(kind Kind, destination string) error {
	destination = strings.TrimSpace(destination)

	switch kind {
	case KindEmail:
		if !emailPattern.MatchString(destination) {
			return fmt.Errorf("%w: email", ErrInvalidDestination)
		}
	case KindMessaging:
		if !phonePattern.MatchString(destination) {
			return fmt.Errorf("%w: phone", ErrInvalidDestination)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownChannel, kind)
	}
	return nil
}

// Receipt correlates a delivery with the transport's own message ID. Used
// only for audit logging.
type Receipt struct {
	Kind      Kind
	MessageID string
	SentAt    time.Time
}

// Transport is the external collaborator boundary for one channel kind.
// Implementations must treat the payload as ephemeral.
type Transport interface {
	Send(ctx context.Context, destination, payload string) (messageID string, err error)
}

// Dispatcher routes a plaintext code to the transport registered for a
// channel kind. It holds no state beyond the routing table and never
// persists the code.
type Dispatcher struct {
	transports map[Kind]Transport
	timeout    time.Duration
	logger     *zap.Logger
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		transports: make(map[Kind]Transport),
		timeout:    10 * time.Second,
		logger:     logger,
	}
}

// Register binds a transport to a kind, replacing any previous binding.
func (d *Dispatcher) Register(kind Kind, transport Transport) {
	d.transports[kind] = transport
}

// Deliver validates the destination and hands the plaintext code to the
// transport for the kind. A transport timeout surfaces as
// ErrChannelUnavailable without any session state involvement.
func (d *Dispatcher) Deliver(ctx context.Context, kind Kind, destination, code string) (*Receipt, error) {
	if err := ValidateDestination(kind, destination); err != nil {
		return nil, err
	}

	transport, ok := d.transports[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no transport for %q", ErrChannelUnavailable, kind)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	messageID, err := transport.Send(sendCtx, destination, code)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
		}
		if errors.Is(err, ErrDeliveryRejected) || errors.Is(err, ErrChannelUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}

	d.logger.Debug("Code delivered",
		util.String("channel", string(kind)),
		util.String("destination", util.MaskDestination(destination)),
		util.String("message_id", messageID),
	)

	return &Receipt{
		Kind:      kind,
		MessageID: messageID,
		SentAt:    time.Now().UTC(),
	}, nil
}
