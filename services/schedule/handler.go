package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	asynqmod "maintenance-engine/pkg/asynq"
)

// HandleGenerateTask is the asynq handler for maintenance:generate tasks.
func (s *Service) HandleGenerateTask(ctx context.Context, t *asynq.Task) error {
	var payload asynqmod.GeneratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		// Malformed payloads never become valid; drop instead of retrying.
		return fmt.Errorf("decode generate payload: %v: %w", err, asynq.SkipRetry)
	}

	asOf := time.Now().UTC()
	if payload.AsOf != "" {
		parsed, err := time.Parse("2006-01-02", payload.AsOf)
		if err != nil {
			return fmt.Errorf("parse as_of %q: %v: %w", payload.AsOf, err, asynq.SkipRetry)
		}
		asOf = parsed
	}

	created, err := s.GenerateDue(ctx, payload.TenantID, asOf, payload.LookaheadDays)
	if err != nil {
		return err
	}

	s.logger.Info("generation task finished",
		zap.String("tenant_id", payload.TenantID),
		zap.Int("created", len(created)))
	return nil
}

// RegisterHandlers binds the schedule handlers onto the asynq mux.
func RegisterHandlers(mux *asynq.ServeMux, s *Service) {
	mux.HandleFunc(asynqmod.GenerateTask, s.HandleGenerateTask)
}
