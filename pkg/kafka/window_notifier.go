package kafka

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/stateroot-syncer/pkg/kafka/messages"
	"github.com/ava-labs/stateroot-syncer/pkg/metrics"
	"github.com/ava-labs/stateroot-syncer/pkg/stateroot"
)

// WindowNotifier turns window updates into Kafka events: one per published
// root, then one per purged root, all carrying the cycle's cursor as sequence.
type WindowNotifier struct {
	publisher  Publisher
	topic      string
	evmChainID uint64
	log        *zap.SugaredLogger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewWindowNotifier creates a WindowNotifier. m may be nil.
func NewWindowNotifier(
	publisher Publisher,
	topic string,
	evmChainID uint64,
	log *zap.SugaredLogger,
	m *metrics.Metrics,
) *WindowNotifier {
	return &WindowNotifier{
		publisher:  publisher,
		topic:      topic,
		evmChainID: evmChainID,
		log:        log,
		metrics:    m,
		now:        time.Now,
	}
}

// Notify produces the events of update in order. It stops at the first failure.
func (n *WindowNotifier) Notify(ctx context.Context, update stateroot.WindowUpdate) error {
	if !update.Changed() {
		return nil
	}

	seq := update.Current.LastFinalized
	emittedAt := n.now().Unix()

	events := make([]messages.WindowEvent, 0, len(update.Added)+len(update.Evicted))
	for _, e := range update.Added {
		events = append(events, messages.Published(n.evmChainID, seq, e.Number, e.Root, update.Bootstrap, emittedAt))
	}
	for _, num := range update.Evicted {
		events = append(events, messages.Purged(n.evmChainID, seq, num, emittedAt))
	}

	for _, ev := range events {
		if err := n.produce(ctx, ev); err != nil {
			return fmt.Errorf("notify %s for block %d: %w", ev.Type, ev.BlockNumber, err)
		}
	}

	n.log.Debugw("window events produced",
		"sequence", seq,
		"published", len(update.Added),
		"purged", len(update.Evicted),
	)
	return nil
}

func (n *WindowNotifier) produce(ctx context.Context, ev messages.WindowEvent) error {
	value, err := ev.Marshal()
	if err != nil {
		return err
	}
	err = n.publisher.Produce(ctx, Msg{
		Topic: n.topic,
		Key:   ev.Key(),
		Value: value,
		Headers: map[string]string{
			"type": string(ev.Type),
		},
	})
	n.metrics.RecordEventProduced(err)
	return err
}
