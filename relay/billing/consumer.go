package billing

import (
	"context"
	"time"

	"github.com/Laisky/zap"

	"github.com/apimirror/gateway/common/config"
	"github.com/apimirror/gateway/common/metrics"
	"github.com/apimirror/gateway/relay/authority"
)

// RunSettlementConsumer drains DefaultQueue until ctx is canceled. Each
// batch is posted to the authority once; a failed post nacks the whole
// batch for redelivery. Runs as a single goroutine from main.
func RunSettlementConsumer(ctx context.Context, lg Logger) {
	for {
		batch, err := DefaultQueue.ReadBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			lg.Error("read settlement batch failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if batch == nil || len(batch.Items) == 0 {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		// Settlement of an already-read batch proceeds on its own context
		// so shutdown flushes in-flight entries instead of dropping them.
		settleCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		SettleBatch(settleCtx, lg, batch)
		cancel()
		if ctx.Err() != nil {
			return
		}
	}
}

// Logger is the subset of the shared logger the consumer needs.
type Logger interface {
	Info(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

// SettleBatch posts one batch to the authority and acks or nacks it.
// A panic inside settlement nacks the batch; entries must never be lost
// to an unexpected error.
func SettleBatch(ctx context.Context, lg Logger, batch *Batch) {
	defer func() {
		if r := recover(); r != nil {
			lg.Error("settlement panicked, nacking batch", zap.Any("panic", r))
			nackBatch(ctx, lg, batch)
		}
	}()

	resp, err := authority.SettleUsage(ctx, batch.Entries())
	if err != nil {
		lg.Error("settle usage batch failed",
			zap.Int("entries", len(batch.Items)), zap.Error(err))
		nackBatch(ctx, lg, batch)
		return
	}

	if err := DefaultQueue.Ack(ctx, batch); err != nil {
		// The authority already accepted the batch; a failed ack only
		// means a future duplicate delivery, which settlement tolerates.
		lg.Error("ack settled batch failed", zap.Error(err))
	}
	metrics.RecordSettlementBatch("ack")
	lg.Info("settled usage batch",
		zap.Int("entries", len(batch.Items)),
		zap.Int("processed", resp.ProcessedCount))
}

func nackBatch(ctx context.Context, lg Logger, batch *Batch) {
	for _, item := range batch.Items {
		if item.Deliveries >= config.SettleMaxDeliveries {
			metrics.RecordSettlementBatch("drop")
		}
	}
	if err := DefaultQueue.Nack(ctx, batch); err != nil {
		lg.Error("nack settlement batch failed", zap.Error(err))
	}
	metrics.RecordSettlementBatch("nack")
}
