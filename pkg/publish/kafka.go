// Package publish streams recorded usage rows to Kafka.
package publish

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/menta2k/occupancy-tracker/pkg/dataset"
	"github.com/menta2k/occupancy-tracker/pkg/types"
)

// Config holds Kafka connection settings
type Config struct {
	BootstrapServers string
	SecurityProtocol string
	SASLMechanism    string
	SASLUsername     string
	SASLPassword     string
	Topic            string
	Acks             string
	CompressionType  string
}

// UsageMessage is the JSON payload of one published row
type UsageMessage struct {
	Timestamp    string `json:"timestamp"`
	PeopleCount  int    `json:"people_count"`
	TableUsed    int    `json:"table_used"`
	TableTotal   int    `json:"table_total"`
	BeanbagUsed  int    `json:"beanbag_used"`
	BeanbagTotal int    `json:"beanbag_total"`
	Filename     string `json:"filename"`
	RunID        string `json:"run_id,omitempty"`
}

// Publisher produces one message per recorded frame
type Publisher struct {
	producer     *kafka.Producer
	topic        string
	runID        string
	deliveryChan chan kafka.Event

	messagesSent   atomic.Int64
	messagesAcked  atomic.Int64
	messagesFailed atomic.Int64

	wg sync.WaitGroup
}

// NewPublisher connects a producer. runID is attached to every message.
func NewPublisher(cfg Config, runID string) (*Publisher, error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	producerConfig := &kafka.ConfigMap{
		"bootstrap.servers":   cfg.BootstrapServers,
		"acks":                valueOr(cfg.Acks, "all"),
		"compression.type":    valueOr(cfg.CompressionType, "snappy"),
		"enable.idempotence":  true,
		"request.timeout.ms":  30000,
		"delivery.timeout.ms": 120000,
	}
	if cfg.SecurityProtocol != "" {
		producerConfig.SetKey("security.protocol", cfg.SecurityProtocol)
	}
	if cfg.SASLMechanism != "" {
		producerConfig.SetKey("sasl.mechanism", cfg.SASLMechanism)
		producerConfig.SetKey("sasl.username", cfg.SASLUsername)
		producerConfig.SetKey("sasl.password", cfg.SASLPassword)
	}

	p, err := kafka.NewProducer(producerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	pub := &Publisher{
		producer:     p,
		topic:        cfg.Topic,
		runID:        runID,
		deliveryChan: make(chan kafka.Event, 1000),
	}
	pub.wg.Add(1)
	go pub.handleDeliveryReports()

	log.Printf("Kafka publisher initialized - Topic: %s, Servers: %s", cfg.Topic, cfg.BootstrapServers)
	return pub, nil
}

func (p *Publisher) handleDeliveryReports() {
	defer p.wg.Done()
	for e := range p.deliveryChan {
		m, ok := e.(*kafka.Message)
		if !ok {
			continue
		}
		if m.TopicPartition.Error != nil {
			p.messagesFailed.Add(1)
			log.Printf("Kafka delivery failed for %s: %v", m.Key, m.TopicPartition.Error)
			continue
		}
		p.messagesAcked.Add(1)
	}
}

// Append implements dataset.Sink. Delivery is asynchronous; failures are
// counted and logged by the delivery handler.
func (p *Publisher) Append(r types.FrameResult) error {
	msg, err := NewMessage(p.topic, p.runID, r)
	if err != nil {
		return err
	}
	if err := p.producer.Produce(msg, p.deliveryChan); err != nil {
		p.messagesFailed.Add(1)
		return fmt.Errorf("failed to produce message: %w", err)
	}
	p.messagesSent.Add(1)
	return nil
}

// NewMessage builds the Kafka message for one row, keyed by filename
func NewMessage(topic, runID string, r types.FrameResult) (*kafka.Message, error) {
	payload, err := json.Marshal(UsageMessage{
		Timestamp:    r.Timestamp.Format(dataset.TimestampLayout),
		PeopleCount:  r.PeopleCount,
		TableUsed:    r.TableUsed,
		TableTotal:   r.TableTotal,
		BeanbagUsed:  r.BeanbagUsed,
		BeanbagTotal: r.BeanbagTotal,
		Filename:     r.Filename,
		RunID:        runID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize usage row: %w", err)
	}

	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(r.Filename),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "run_id", Value: []byte(runID)},
		},
	}, nil
}

// Metrics returns message counters
func (p *Publisher) Metrics() map[string]int64 {
	return map[string]int64{
		"messages_sent":   p.messagesSent.Load(),
		"messages_acked":  p.messagesAcked.Load(),
		"messages_failed": p.messagesFailed.Load(),
	}
}

// Close flushes pending messages and shuts the producer down
func (p *Publisher) Close(timeout time.Duration) {
	if remaining := p.producer.Flush(int(timeout.Milliseconds())); remaining > 0 {
		log.Printf("Warning: %d messages still in queue after flush timeout", remaining)
	}
	p.producer.Close()
	close(p.deliveryChan)
	p.wg.Wait()

	m := p.Metrics()
	log.Printf("Kafka publisher closed - Sent: %d | Acked: %d | Failed: %d",
		m["messages_sent"], m["messages_acked"], m["messages_failed"])
}

var _ dataset.Sink = (*Publisher)(nil)

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
