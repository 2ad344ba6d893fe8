package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/banking/riskguard/internal/config"
	"github.com/banking/riskguard/internal/domain"
	"github.com/banking/riskguard/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DossierEvent is the message published by the intake service when a
// dossier is submitted or flagged for reanalysis
type DossierEvent struct {
	DossierID uuid.UUID `json:"dossier_id"`
	Reference string    `json:"reference"`
	EventType string    `json:"event_type"`
	EmittedAt time.Time `json:"emitted_at"`
}

// DossierConsumer consumes dossier lifecycle events and triggers the fraud
// detection and scoring pipeline for each
type DossierConsumer struct {
	consumerGroup sarama.ConsumerGroup
	assessments   *service.AssessmentService
	topics        []string
	logger        *zap.Logger
}

func NewDossierConsumer(cfg config.KafkaConfig, assessments *service.AssessmentService, logger *zap.Logger) (*DossierConsumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Version = sarama.V2_8_0_0

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	topics := []string{cfg.SubmissionTopic, cfg.ReanalysisTopic}

	return &DossierConsumer{
		consumerGroup: consumerGroup,
		assessments:   assessments,
		topics:        topics,
		logger:        logger,
	}, nil
}

func (c *DossierConsumer) Start(ctx context.Context) error {
	handler := &dossierConsumerHandler{
		assessments: c.assessments,
		logger:      c.logger,
	}

	for {
		if err := c.consumerGroup.Consume(ctx, c.topics, handler); err != nil {
			if ctx.Err() != nil {
				return nil // Context canceled
			}
			c.logger.Error("Error from consumer", zap.Error(err))
			time.Sleep(time.Second * 5) // Retry backoff
		}
	}
}

func (c *DossierConsumer) Close() error {
	return c.consumerGroup.Close()
}

type dossierConsumerHandler struct {
	assessments *service.AssessmentService
	logger      *zap.Logger
}

func (h *dossierConsumerHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *dossierConsumerHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }
func (h *dossierConsumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		h.processMessage(session.Context(), message)
		session.MarkMessage(message, "")
	}
	return nil
}

func (h *dossierConsumerHandler) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) {
	var event DossierEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error("Failed to unmarshal dossier event",
			zap.String("topic", msg.Topic),
			zap.Error(err),
		)
		return // Skip malformed
	}
	if event.DossierID == uuid.Nil {
		h.logger.Error("Dossier event without dossier_id", zap.String("topic", msg.Topic))
		return
	}

	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		err := h.assess(ctx, event.DossierID)
		if err == nil {
			break
		}
		if errors.Is(err, domain.ErrDossierNotFound) {
			// Event may have outrun the intake write; retrying is pointless
			// beyond the backoff already spent.
			h.logger.Warn("Dossier not found for event",
				zap.String("dossier_id", event.DossierID.String()),
			)
			return
		}
		h.logger.Error("Failed to assess dossier",
			zap.String("topic", msg.Topic),
			zap.String("dossier_id", event.DossierID.String()),
			zap.Error(err),
			zap.Int("retry", i+1),
		)
		if i < maxRetries-1 {
			time.Sleep(time.Duration(i+1) * time.Second) // Simple backoff
			continue
		}
		h.logger.Error("Dropping event after retries",
			zap.String("dossier_id", event.DossierID.String()),
		)
	}
}

// assess runs fraud detection first so a critical alert parks the dossier
// before any score is recorded on it.
func (h *dossierConsumerHandler) assess(ctx context.Context, dossierID uuid.UUID) error {
	alerts, err := h.assessments.DetectFraud(ctx, dossierID)
	if err != nil {
		return err
	}
	if domain.HasCritical(alerts) {
		h.logger.Warn("dossier escalated on critical fraud alert",
			zap.String("dossier_id", dossierID.String()),
			zap.Int("alerts", len(alerts)),
		)
		return nil
	}

	_, err = h.assessments.EvaluateRisk(ctx, dossierID)
	return err
}
