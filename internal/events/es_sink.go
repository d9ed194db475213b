package events

import (
	"context"
	"fmt"

	"stepup-auth/internal/client"
)

// ESSink indexes security events for ad-hoc investigation queries.
type ESSink struct {
	es    *client.ESClient
	index string
}

func NewESSink(es *client.ESClient, index string) *ESSink {
	return &ESSink{
		es:    es,
		index: index,
	}
}

func (s *ESSink) Write(ctx context.Context, event SecurityEvent) error {
	resp, err := s.es.IndexDocument(ctx, s.index, event.ID, event)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return fmt.Errorf("failed to index security event: %s", resp.Status())
	}
	return nil
}
