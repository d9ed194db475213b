package channel

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stepup-auth/internal/util"
)

// LogTransport is the development transport: it pretends to deliver and
// logs only the masked destination, never the code.
type LogTransport struct {
	kind   Kind
	logger *zap.Logger
}

func NewLogTransport(kind Kind, logger *zap.Logger) *LogTransport {
	return &LogTransport{kind: kind, logger: logger}
}

func (t *LogTransport) Send(ctx context.Context, destination, payload string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	messageID := uuid.New().String()
	t.logger.Info("Simulated delivery",
		util.String("channel", string(t.kind)),
		util.String("destination", util.MaskDestination(destination)),
		util.String("message_id", messageID),
	)
	return messageID, nil
}
