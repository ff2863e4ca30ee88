// Package events publishes ride lifecycle events to Kafka for downstream
// consumers (leaderboard, analytics).
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	TypeAccepted  = "ride.accepted"
	TypeConfirmed = "ride.confirmed"
	TypeSettled   = "ride.settled"
)

type Event struct {
	Type     string    `json:"type"`
	RideID   string    `json:"ride_id"`
	DriverID string    `json:"driver_id"`
	RiderID  string    `json:"rider_id"`
	Points   int       `json:"points"`
	At       time.Time `json:"at"`
}

type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaProducer{writer: w}
}

func (k *KafkaProducer) Publish(evt Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	b, _ := json.Marshal(evt)
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(evt.RideID), Value: b})
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
