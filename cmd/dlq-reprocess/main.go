// Команда dlq-reprocess переотправляет сообщения из DLQ в исходные
// топики. Целевой топик берётся из заголовка x-original-topic,
// проставляемого консьюмером при отправке в DLQ. По умолчанию dry-run.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

type config struct {
	brokers     []string
	sourceTopic string
	fallback    string
	limit       int
	execute     bool
	idleTimeout time.Duration
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig()
	if err != nil {
		fail("%v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		fail("dlq reprocess failed: %v", err)
	}
}

func readConfig() (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: ECOM_BROKER_URL)")
	flag.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	flag.StringVar(&cfg.fallback, "fallback-topic", kafka.TopicOrderEvents, "target topic when x-original-topic header is missing")
	flag.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to scan/replay")
	flag.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	flag.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	flag.Parse()

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("ECOM_BROKER_URL")
	}
	for _, chunk := range strings.Split(brokersRaw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			cfg.brokers = append(cfg.brokers, broker)
		}
	}
	if len(cfg.brokers) == 0 {
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or ECOM_BROKER_URL)")
	}
	if cfg.limit <= 0 {
		return config{}, fmt.Errorf("limit must be > 0")
	}
	if cfg.idleTimeout <= 0 {
		return config{}, fmt.Errorf("idle-timeout must be > 0")
	}

	return cfg, nil
}

func run(ctx context.Context, cfg config) error {
	log.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
	}).Info("starting dlq reprocess")

	clientConfig := sarama.NewConfig()
	clientConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, clientConfig)
	if err != nil {
		return fmt.Errorf("create kafka client: %w", err)
	}
	defer client.Close()

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		return fmt.Errorf("create kafka consumer: %w", err)
	}
	defer consumer.Close()

	var producer *kafka.Producer
	if cfg.execute {
		producer, err = kafka.NewProducer(cfg.brokers)
		if err != nil {
			return fmt.Errorf("create kafka producer: %w", err)
		}
		defer producer.Close()
	}

	partitions, err := client.Partitions(cfg.sourceTopic)
	if err != nil {
		return fmt.Errorf("get partitions for topic %s: %w", cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", cfg.sourceTopic).Warn("source topic has no partitions")
		return nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	var processed, replayed int
	for _, partition := range partitions {
		if processed >= cfg.limit {
			break
		}
		p, r, err := processPartition(ctx, cfg, client, consumer, producer, partition, cfg.limit-processed)
		if err != nil {
			return err
		}
		processed += p
		replayed += r
	}

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":      mode,
		"processed": processed,
		"replayed":  replayed,
	}).Info("dlq reprocess finished")

	return nil
}

func processPartition(
	ctx context.Context,
	cfg config,
	client sarama.Client,
	consumer sarama.Consumer,
	producer *kafka.Producer,
	partition int32,
	limit int,
) (processed, replayed int, err error) {
	oldest, err := client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, 0, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, 0, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return 0, 0, nil
	}

	pc, err := consumer.ConsumePartition(cfg.sourceTopic, partition, oldest)
	if err != nil {
		return 0, 0, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer pc.Close()

	idleTimer := time.NewTimer(cfg.idleTimeout)
	defer idleTimer.Stop()

	for processed < limit {
		select {
		case <-ctx.Done():
			return processed, replayed, ctx.Err()
		case consumeErr := <-pc.Errors():
			if consumeErr != nil {
				return processed, replayed, fmt.Errorf("partition %d consumer error: %w", partition, consumeErr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return processed, replayed, nil
			}
			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(cfg.idleTimeout)

			processed++
			if err := replayMessage(cfg, producer, msg); err != nil {
				return processed, replayed, err
			}
			replayed++

			if msg.Offset+1 >= newest {
				return processed, replayed, nil
			}
		case <-idleTimer.C:
			return processed, replayed, nil
		}
	}

	return processed, replayed, nil
}

// replayMessage публикует DLQ-сообщение в исходный топик, сохраняя
// заголовки события и отбрасывая диагностические x-* заголовки.
func replayMessage(cfg config, producer *kafka.Producer, msg *sarama.ConsumerMessage) error {
	target := kafka.HeaderValue(msg, kafka.HeaderOriginalTopic)
	if target == "" {
		target = cfg.fallback
	}

	headers := make(map[string]string)
	for _, header := range msg.Headers {
		key := string(header.Key)
		switch key {
		case kafka.HeaderOriginalTopic, kafka.HeaderErrorMessage, kafka.HeaderFailedAt, kafka.HeaderRetryCount:
			continue
		}
		headers[key] = string(header.Value)
	}

	if !cfg.execute {
		log.WithFields(log.Fields{
			"partition":    msg.Partition,
			"offset":       msg.Offset,
			"target_topic": target,
			"key":          string(msg.Key),
		}).Info("dlq replay candidate")
		return nil
	}

	if err := producer.PublishMessage(target, string(msg.Key), msg.Value, headers); err != nil {
		return fmt.Errorf("publish replay message: %w", err)
	}
	log.WithFields(log.Fields{
		"partition":    msg.Partition,
		"offset":       msg.Offset,
		"target_topic": target,
	}).Info("dlq message replayed")
	return nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
