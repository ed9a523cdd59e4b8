package billing

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/go-redis/redis/v8"

	"github.com/apimirror/gateway/common"
	"github.com/apimirror/gateway/common/config"
	"github.com/apimirror/gateway/common/logger"
)

// QueuedEntry is one usage log entry on the queue together with its
// delivery accounting.
type QueuedEntry struct {
	ID         string
	Entry      UsageLogEntry
	Deliveries int
}

// Batch is one settlement batch. Ownership of the entries stays with the
// queue until the consumer acks them.
type Batch struct {
	Items []QueuedEntry
}

// Entries projects the batch to the wire shape posted to the authority.
func (b *Batch) Entries() []UsageLogEntry {
	out := make([]UsageLogEntry, len(b.Items))
	for i, item := range b.Items {
		out[i] = item.Entry
	}
	return out
}

// UsageQueue is the at-least-once usage delivery channel between request
// handlers (producers) and the settlement consumer.
type UsageQueue interface {
	// Enqueue hands one entry to the queue.
	Enqueue(ctx context.Context, entry UsageLogEntry) error
	// ReadBatch blocks up to the flush interval and returns at most the
	// configured batch size. An empty batch is a normal timeout.
	ReadBatch(ctx context.Context) (*Batch, error)
	// Ack marks the batch settled; the entries are destroyed.
	Ack(ctx context.Context, batch *Batch) error
	// Nack schedules the batch for redelivery. Entries that exhausted
	// their deliveries are dropped with an error log.
	Nack(ctx context.Context, batch *Batch) error
}

// DefaultQueue is the process-wide usage queue, selected by InitQueue.
var DefaultQueue UsageQueue = NewMemoryQueue(4096, 100, 30*time.Second, 3)

// InitQueue selects the redis stream queue when redis is configured.
func InitQueue() {
	if common.IsRedisEnabled() {
		DefaultQueue = NewRedisQueue(common.RDB,
			config.SettleBatchSize, config.SettleFlushInterval, config.SettleMaxDeliveries)
	} else {
		DefaultQueue = NewMemoryQueue(4096,
			config.SettleBatchSize, config.SettleFlushInterval, config.SettleMaxDeliveries)
	}
}

const (
	usageStream     = "usage:events"
	settlementGroup = "settlement"
)

type redisQueue struct {
	rdb           *redis.Client
	consumer      string
	batchSize     int
	flush         time.Duration
	maxDeliveries int

	groupOnce sync.Once
	groupErr  error
}

// NewRedisQueue builds a UsageQueue on a redis stream with a consumer
// group. Unacked entries from a crashed consumer are reclaimed once
// their idle time exceeds the flush interval.
func NewRedisQueue(rdb *redis.Client, batchSize int, flush time.Duration, maxDeliveries int) UsageQueue {
	return &redisQueue{
		rdb:           rdb,
		consumer:      "settlement-" + strconv.FormatInt(time.Now().UnixNano(), 36),
		batchSize:     batchSize,
		flush:         flush,
		maxDeliveries: maxDeliveries,
	}
}

func (q *redisQueue) ensureGroup(ctx context.Context) error {
	q.groupOnce.Do(func() {
		err := q.rdb.XGroupCreateMkStream(ctx, usageStream, settlementGroup, "0").Err()
		if err != nil && !isBusyGroup(err) {
			q.groupErr = errors.Wrap(err, "create settlement consumer group")
		}
	})
	return q.groupErr
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

func (q *redisQueue) Enqueue(ctx context.Context, entry UsageLogEntry) error {
	if err := q.ensureGroup(ctx); err != nil {
		return err
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "marshal usage log entry")
	}
	err = q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: usageStream,
		Values: map[string]any{"entry": raw, "deliveries": "1"},
	}).Err()
	return errors.Wrap(err, "xadd usage log entry")
}

func (q *redisQueue) ReadBatch(ctx context.Context) (*Batch, error) {
	if err := q.ensureGroup(ctx); err != nil {
		return nil, err
	}
	batch := &Batch{}

	// Reclaim entries a dead consumer left pending before reading new ones.
	claimed, _, err := q.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   usageStream,
		Group:    settlementGroup,
		Consumer: q.consumer,
		MinIdle:  q.flush,
		Start:    "0-0",
		Count:    int64(q.batchSize),
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, errors.Wrap(err, "xautoclaim pending usage entries")
	}
	q.appendMessages(ctx, batch, claimed)

	if len(batch.Items) < q.batchSize {
		streams, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    settlementGroup,
			Consumer: q.consumer,
			Streams:  []string{usageStream, ">"},
			Count:    int64(q.batchSize - len(batch.Items)),
			Block:    q.flush,
		}).Result()
		if err != nil && err != redis.Nil {
			if ctx.Err() != nil {
				return batch, ctx.Err()
			}
			return nil, errors.Wrap(err, "xreadgroup usage entries")
		}
		for _, stream := range streams {
			q.appendMessages(ctx, batch, stream.Messages)
		}
	}
	return batch, nil
}

// appendMessages decodes stream messages into the batch. Undecodable
// messages are acked away immediately; they can never settle.
func (q *redisQueue) appendMessages(ctx context.Context, batch *Batch, msgs []redis.XMessage) {
	for _, msg := range msgs {
		raw, _ := msg.Values["entry"].(string)
		var entry UsageLogEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			logger.Logger.Error("dropping undecodable usage queue message",
				zap.String("id", msg.ID), zap.Error(err))
			q.rdb.XAck(ctx, usageStream, settlementGroup, msg.ID)
			q.rdb.XDel(ctx, usageStream, msg.ID)
			continue
		}
		deliveries := 1
		if d, ok := msg.Values["deliveries"].(string); ok {
			if n, err := strconv.Atoi(d); err == nil {
				deliveries = n
			}
		}
		batch.Items = append(batch.Items, QueuedEntry{ID: msg.ID, Entry: entry, Deliveries: deliveries})
	}
}

func (q *redisQueue) Ack(ctx context.Context, batch *Batch) error {
	ids := batchIDs(batch)
	if len(ids) == 0 {
		return nil
	}
	if err := q.rdb.XAck(ctx, usageStream, settlementGroup, ids...).Err(); err != nil {
		return errors.Wrap(err, "xack usage entries")
	}
	return errors.Wrap(q.rdb.XDel(ctx, usageStream, ids...).Err(), "xdel usage entries")
}

// Nack re-enqueues each entry with its delivery count bumped, then acks
// the originals. Re-add happens first so a crash in between duplicates
// rather than loses entries.
func (q *redisQueue) Nack(ctx context.Context, batch *Batch) error {
	for _, item := range batch.Items {
		if item.Deliveries >= q.maxDeliveries {
			logger.Logger.Error("usage entry exhausted settlement deliveries, dropping",
				zap.String("request_id", item.Entry.RequestId),
				zap.Int("deliveries", item.Deliveries))
			continue
		}
		raw, err := json.Marshal(item.Entry)
		if err != nil {
			return errors.Wrap(err, "marshal usage log entry for redelivery")
		}
		err = q.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: usageStream,
			Values: map[string]any{"entry": raw, "deliveries": strconv.Itoa(item.Deliveries + 1)},
		}).Err()
		if err != nil {
			return errors.Wrap(err, "xadd usage entry for redelivery")
		}
	}
	return q.Ack(ctx, batch)
}

func batchIDs(batch *Batch) []string {
	ids := make([]string, 0, len(batch.Items))
	for _, item := range batch.Items {
		if item.ID != "" {
			ids = append(ids, item.ID)
		}
	}
	return ids
}

type memoryQueue struct {
	ch            chan QueuedEntry
	batchSize     int
	flush         time.Duration
	maxDeliveries int
}

// NewMemoryQueue builds an in-process UsageQueue with the same batch and
// redelivery semantics as the redis one, for deployments without redis.
func NewMemoryQueue(capacity, batchSize int, flush time.Duration, maxDeliveries int) UsageQueue {
	return &memoryQueue{
		ch:            make(chan QueuedEntry, capacity),
		batchSize:     batchSize,
		flush:         flush,
		maxDeliveries: maxDeliveries,
	}
}

func (q *memoryQueue) Enqueue(_ context.Context, entry UsageLogEntry) error {
	select {
	case q.ch <- QueuedEntry{Entry: entry, Deliveries: 1}:
		return nil
	default:
		return errors.New("usage queue full")
	}
}

func (q *memoryQueue) ReadBatch(ctx context.Context) (*Batch, error) {
	batch := &Batch{}
	timer := time.NewTimer(q.flush)
	defer timer.Stop()
	for len(batch.Items) < q.batchSize {
		select {
		case <-ctx.Done():
			// Hand back whatever was drained so shutdown can flush it.
			if len(batch.Items) > 0 {
				return batch, nil
			}
			return nil, ctx.Err()
		case item := <-q.ch:
			batch.Items = append(batch.Items, item)
		case <-timer.C:
			return batch, nil
		}
	}
	return batch, nil
}

func (q *memoryQueue) Ack(context.Context, *Batch) error {
	return nil
}

func (q *memoryQueue) Nack(_ context.Context, batch *Batch) error {
	for _, item := range batch.Items {
		if item.Deliveries >= q.maxDeliveries {
			logger.Logger.Error("usage entry exhausted settlement deliveries, dropping",
				zap.String("request_id", item.Entry.RequestId),
				zap.Int("deliveries", item.Deliveries))
			continue
		}
		item.Deliveries++
		select {
		case q.ch <- item:
		default:
			return errors.New("usage queue full, redelivery dropped")
		}
	}
	return nil
}
