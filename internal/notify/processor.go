package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/dansestudio/internal/common"
	"github.com/noah-isme/dansestudio/internal/obs"
)

// Processor delivers notification tasks.
type Processor struct {
	Mail      common.EmailSender
	Guard     ReplayGuard
	ReplayTTL time.Duration
	Logger    zerolog.Logger
}

// Register mounts the processor's handlers on mux.
func (p *Processor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeEnrollmentConfirmation, p.ProcessConfirmation)
}

// ProcessConfirmation sends the confirmation email carried by task. Malformed
// payloads are not retried.
func (p *Processor) ProcessConfirmation(ctx context.Context, task *asynq.Task) error {
	c, err := decodeConfirmation(task.Payload())
	if err != nil {
		obs.IncCounterVec(obs.NotificationsTotal, "deliver", "invalid")
		return fmt.Errorf("decode confirmation: %v: %w", err, asynq.SkipRetry)
	}
	logger := p.Logger.With().Str("order_id", c.OrderID).Logger()

	key := "notify:confirmation:" + c.OrderID
	if p.Guard != nil {
		ok, err := p.Guard.Acquire(ctx, key, p.replayTTL())
		if err != nil {
			obs.IncCounterVec(obs.NotificationsTotal, "deliver", "error")
			return fmt.Errorf("acquire replay guard: %w", err)
		}
		if !ok {
			obs.IncCounterVec(obs.NotificationsTotal, "deliver", "duplicate")
			logger.Info().Msg("confirmation already sent")
			return nil
		}
	}

	subject, body, err := RenderConfirmation(c)
	if err != nil {
		p.release(ctx, key)
		obs.IncCounterVec(obs.NotificationsTotal, "deliver", "invalid")
		return fmt.Errorf("render confirmation: %v: %w", err, asynq.SkipRetry)
	}
	mail := p.Mail
	if mail == nil {
		mail = common.LogEmailSender{Logger: p.Logger}
	}
	if err := mail.Send(c.Email, subject, body); err != nil {
		p.release(ctx, key)
		obs.IncCounterVec(obs.NotificationsTotal, "deliver", "error")
		logger.Warn().Err(err).Msg("send confirmation email")
		return fmt.Errorf("send confirmation: %w", err)
	}
	obs.IncCounterVec(obs.NotificationsTotal, "deliver", "ok")
	logger.Info().Msg("confirmation email sent")
	return nil
}

func (p *Processor) replayTTL() time.Duration {
	if p.ReplayTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return p.ReplayTTL
}

func (p *Processor) release(ctx context.Context, key string) {
	if p.Guard == nil {
		return
	}
	if err := p.Guard.Release(ctx, key); err != nil {
		p.Logger.Warn().Err(err).Str("key", key).Msg("release replay guard")
	}
}
