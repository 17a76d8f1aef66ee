package output

import (
	"log/slog"
	"strconv"
	"sync"

	"feed_go/internal/domain"
	"feed_go/internal/infra"

	"github.com/Shopify/sarama"
)

// KafkaConfig selects the destination of the Kafka sink.
type KafkaConfig struct {
	Brokers   []string
	Topic     string
	Partition int32
	ClientID  string
}

// KafkaSink publishes record payloads to one fixed partition. Delivery is
// asynchronous; failures surface on the producer's error channel and are
// counted there.
type KafkaSink struct {
	producer  sarama.AsyncProducer
	topic     string
	partition int32
	metrics   *infra.Metrics
	wg        sync.WaitGroup
}

// ProducerConfig returns the sarama settings used by the sink.
func ProducerConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Producer.Partitioner = sarama.NewManualPartitioner
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Return.Successes = false
	cfg.Producer.Return.Errors = true
	cfg.Producer.Compression = sarama.CompressionSnappy
	return cfg
}

// NewKafkaSink connects an async producer to the brokers.
func NewKafkaSink(cfg KafkaConfig, metrics *infra.Metrics) (*KafkaSink, error) {
	producer, err := sarama.NewAsyncProducer(cfg.Brokers, ProducerConfig(cfg.ClientID))
	if err != nil {
		return nil, domain.NewNetworkError("kafka connect", err)
	}
	return NewKafkaSinkWithProducer(producer, cfg, metrics), nil
}

// NewKafkaSinkWithProducer wraps an existing producer.
func NewKafkaSinkWithProducer(p sarama.AsyncProducer, cfg KafkaConfig, metrics *infra.Metrics) *KafkaSink {
	s := &KafkaSink{producer: p, topic: cfg.Topic, partition: cfg.Partition, metrics: metrics}
	s.wg.Add(1)
	go s.drainErrors()
	return s
}

func (s *KafkaSink) drainErrors() {
	defer s.wg.Done()
	for perr := range s.producer.Errors() {
		s.metrics.RecordSinkError()
		slog.Warn("Kafka delivery failed", slog.String("topic", perr.Msg.Topic), slog.Any("error", perr.Err))
	}
}

// Name identifies the sink in logs.
func (s *KafkaSink) Name() string { return "kafka" }

// Write enqueues the encoded record on the producer. Delivery failures
// surface later through the error drain.
func (s *KafkaSink) Write(rec *domain.Record) error {
	if len(rec.Payload) == 0 {
		return nil
	}
	s.producer.Input() <- &sarama.ProducerMessage{
		Topic:     s.topic,
		Partition: s.partition,
		Key:       sarama.StringEncoder(strconv.FormatInt(rec.Token, 10)),
		Value:     sarama.ByteEncoder(rec.Payload),
	}
	return nil
}

// Close flushes buffered messages and waits for the error drain.
func (s *KafkaSink) Close() error {
	s.producer.AsyncClose()
	s.wg.Wait()
	return nil
}
