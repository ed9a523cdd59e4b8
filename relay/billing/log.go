package billing

import (
	"context"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"

	"github.com/apimirror/gateway/common/metrics"
	"github.com/apimirror/gateway/relay/pipeline"
	relaymodel "github.com/apimirror/gateway/relay/model"
)

// UsageLogEntry is one finished request's token accounting, exactly one
// per accepted request. Field names are the settlement wire contract.
type UsageLogEntry struct {
	RequestId        string `json:"requestId"`
	TimestampMs      int64  `json:"timestampMs"`
	UserId           int64  `json:"userId,omitempty"`
	Purpose          string `json:"purpose,omitempty"`
	ProviderName     string `json:"providerName"`
	ModelName        string `json:"modelName"`
	PromptTokens     int    `json:"promptTokens"`
	CompletionTokens int    `json:"completionTokens"`
	CachedTokens     int    `json:"cachedTokens"`
	TotalTokens      int    `json:"totalTokens"`
	IsEstimated      bool   `json:"isEstimated"`
}

// NewUsageLog builds the usage log entry for one request. ModelName
// carries the public provider/model form.
func NewUsageLog(pctx *pipeline.Context, usage relaymodel.Usage, estimated bool) UsageLogEntry {
	return UsageLogEntry{
		RequestId:        pctx.RequestId,
		TimestampMs:      time.Now().UnixMilli(),
		UserId:           pctx.UserId,
		Purpose:          pctx.Purpose,
		ProviderName:     pctx.ProviderName,
		ModelName:        pctx.ModelName,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		CachedTokens:     usage.CachedTokens,
		TotalTokens:      usage.TotalTokens,
		IsEstimated:      estimated,
	}
}

// SendUsageLog enqueues an entry for settlement. Enqueue failures are
// logged and dropped: accounting must never fail the client response.
func SendUsageLog(ctx context.Context, entry UsageLogEntry) {
	if err := DefaultQueue.Enqueue(ctx, entry); err != nil {
		metrics.RecordUsageEnqueueFailure()
		gmw.GetLogger(ctx).Error("enqueue usage log failed",
			zap.String("request_id", entry.RequestId),
			zap.Error(err),
		)
		return
	}
	metrics.RecordUsageLog(entry.IsEstimated)
}
