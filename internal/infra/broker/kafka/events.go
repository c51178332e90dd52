package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"storagepricing/internal/app/dto"
	availabilityapp "storagepricing/internal/app/services/availability"
	"storagepricing/internal/domain/availability"
)

// UnitChangeHandler consumes unit-change messages and applies them to
// the availability service. Messages that fail to decode are logged
// and skipped so a poison message cannot stall the partition; store
// failures are returned so the offset stays unmarked and the message
// is redelivered.
type UnitChangeHandler struct {
	Service *availabilityapp.Service
	Logger  *slog.Logger
}

type unitChangeMessage struct {
	FacilityID int64  `json:"facility_id"`
	UnitType   string `json:"unit_type"`
	UnitSize   string `json:"unit_size"`
	Changes    []struct {
		UnitID        string    `json:"unit_id"`
		Action        string    `json:"action"`
		EffectiveDate time.Time `json:"effective_date"`
	} `json:"changes"`
}

func (h UnitChangeHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var decoded unitChangeMessage
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		h.log().Warn("skipping malformed unit-change message",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
		return nil
	}
	key := availability.Key{
		FacilityID: decoded.FacilityID,
		UnitType:   decoded.UnitType,
		UnitSize:   decoded.UnitSize,
	}
	if len(decoded.Changes) == 0 {
		h.log().Warn("skipping unit-change message without changes", "key", key.String())
		return nil
	}
	changes := make([]availability.UnitChange, 0, len(decoded.Changes))
	for _, c := range decoded.Changes {
		changes = append(changes, availability.UnitChange{
			UnitID:        c.UnitID,
			Action:        availability.Action(c.Action),
			EffectiveDate: c.EffectiveDate,
		})
	}
	if _, err := h.Service.Update(ctx, key, changes); err != nil {
		h.log().Warn("unit-change apply failed", "key", key.String(), "error", err)
		return err
	}
	return nil
}

func (h UnitChangeHandler) log() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var _ MessageHandler = UnitChangeHandler{}

// EventPublisher emits availability-changed events keyed by snapshot
// key, so all events for one key land on the same partition.
type EventPublisher struct {
	Producer *Producer
	Topic    string
	Source   string
}

func (p EventPublisher) AvailabilityChanged(ctx context.Context, snap availability.Snapshot) error {
	data, err := json.Marshal(dto.MapSnapshot(snap))
	if err != nil {
		return err
	}
	evt := map[string]any{
		"specversion":     "1.0",
		"id":              uuid.NewString(),
		"type":            "availability.changed.v1",
		"source":          p.Source,
		"time":            snap.Timestamp,
		"datacontenttype": "application/json",
		"data":            json.RawMessage(data),
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	headers := map[string]string{"content-type": "application/cloudevents+json"}
	return p.Producer.Publish(ctx, p.Topic, snap.Key().String(), payload, headers)
}

var _ availabilityapp.EventPublisher = EventPublisher{}
