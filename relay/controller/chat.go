// Package controller implements the relay endpoints: chat completions
// (streaming and not), the aggregated model catalog and ping.
package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v7"
	glog "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/apimirror/gateway/common"
	"github.com/apimirror/gateway/common/ctxkey"
	"github.com/apimirror/gateway/common/helper"
	"github.com/apimirror/gateway/common/metrics"
	"github.com/apimirror/gateway/relay"
	"github.com/apimirror/gateway/relay/adaptor"
	"github.com/apimirror/gateway/relay/billing"
	relaymodel "github.com/apimirror/gateway/relay/model"
	"github.com/apimirror/gateway/relay/pipeline"
)

// RelayChat handles POST /v1/chat/completions. The public model name is
// "<provider>/<model>"; the prefix selects the adaptor and the rest is
// sent upstream.
func RelayChat(c *gin.Context) {
	lg := gmw.GetLogger(c)

	body, err := common.GetRequestBody(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid Body"})
		return
	}
	payload, err := relaymodel.ParsePayload(body)
	if err != nil {
		lg.Debug("unparsable chat request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid Body"})
		return
	}

	publicModel := payload.Model()
	providerName, realModel, ok := strings.Cut(publicModel, "/")
	if !ok || providerName == "" || realModel == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Model not found"})
		return
	}
	provider, ok := relay.GetProvider(providerName)
	if !ok || !provider.ModelAllowed(realModel) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Model not found"})
		return
	}

	pctx := &pipeline.Context{
		RequestId:    helper.GenRequestID(),
		ModelName:    publicModel,
		ProviderName: providerName,
		RealModel:    realModel,
		UserId:       c.GetInt64(ctxkey.UserId),
		Purpose:      c.GetString(ctxkey.Purpose),
	}

	lg = lg.With(
		zap.String("request_id", pctx.RequestId),
		zap.String("model", publicModel),
	)
	ctx := gmw.SetLogger(gmw.Ctx(c), lg)

	pl := pipeline.ForPurpose(pctx.Purpose)
	payload.SetModel(realModel)
	payload = pl.PreprocessRequest(pctx, payload)
	pctx.ChatHistory = payload.Messages()

	if payload.Stream() {
		relayStream(c, ctx, pctx, pl, provider.Adaptor, payload)
		return
	}
	relayNonStream(c, ctx, pctx, pl, provider.Adaptor, payload)
}

func relayNonStream(c *gin.Context, ctx context.Context, pctx *pipeline.Context, pl pipeline.Pipeline, a adaptor.Adaptor, payload relaymodel.Payload) {
	lg := gmw.GetLogger(ctx)
	start := time.Now()
	resp, err := a.ChatCompletions(ctx, payload)
	metrics.RecordRelay(pctx.ProviderName, false, start)
	if err != nil {
		metrics.RecordUpstreamError(pctx.ProviderName)
		lg.Error("upstream chat completion failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	resp = pl.PostprocessResponse(pctx, resp)
	resp["id"] = pctx.RequestId
	resp.SetModel(pctx.ModelName)

	usage, ok := billing.NormalizeUsage(resp.UsageMap())
	estimated := !ok
	if !ok {
		est := billing.EstimateUsage(pctx.ChatHistory, resp.FirstChoice())
		usage = &est
	}
	resp["usage"] = *usage
	entry := billing.NewUsageLog(pctx, *usage, estimated)
	go billing.SendUsageLog(gmw.BackgroundCtx(c), entry)

	c.JSON(http.StatusOK, resp)
}

func relayStream(c *gin.Context, ctx context.Context, pctx *pipeline.Context, pl pipeline.Pipeline, a adaptor.Adaptor, payload relaymodel.Payload) {
	lg := gmw.GetLogger(ctx)
	start := time.Now()
	stream, err := a.ChatCompletionsStream(ctx, payload)
	if err != nil {
		metrics.RecordUpstreamError(pctx.ProviderName)
		lg.Error("upstream stream open failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	defer func() { _ = stream.Close() }()
	defer metrics.RecordRelay(pctx.ProviderName, true, start)

	common.SetEventStreamHeaders(c)

	tracker := billing.NewStreamTracker()
	transformer := pl.NewTransformer(pctx)
	promptEstimate := billing.EstimatePromptTokens(pctx.ChatHistory)

	// The usage log is finalized exactly once, whichever path ends the
	// stream: normal flush, client abort, or a mid-stream upstream error.
	var once sync.Once
	bgCtx := gmw.BackgroundCtx(c)
	finalize := func() {
		once.Do(func() {
			usage, estimated := tracker.BuildUsage(promptEstimate, 0)
			lg.Debug("stream finished",
				zap.Int("sent_chars", tracker.SentChars()),
				zap.Bool("usage_estimated", estimated),
				zap.Int("completion_tokens", usage.CompletionTokens),
			)
			billing.SendUsageLog(bgCtx, billing.NewUsageLog(pctx, usage, estimated))
		})
	}
	defer finalize()

	for {
		line, ok, err := stream.Next()
		if err != nil {
			lg.Warn("upstream stream failed mid-relay", zap.Error(err))
			return
		}
		if !ok {
			return
		}
		if !relayStreamLine(c, lg, pctx, tracker, transformer, line) {
			return
		}
		if c.Request.Context().Err() != nil {
			lg.Debug("client disconnected mid-stream")
			return
		}
	}
}

// relayStreamLine relays one upstream SSE line, rewriting data events and
// passing everything else through verbatim. Returns false when the
// downstream write failed.
func relayStreamLine(c *gin.Context, lg glog.Logger, pctx *pipeline.Context, tracker *billing.StreamTracker, transformer pipeline.Transformer, line string) bool {
	const dataPrefix = "data: "
	if !strings.HasPrefix(line, dataPrefix) || line == "data: [DONE]" {
		return writeStreamLine(c, line)
	}

	lg.Debug("upstream stream line", zap.String("line", line))
	event, err := relaymodel.ParsePayload([]byte(line[len(dataPrefix):]))
	if err != nil {
		// Forward unparsable data events untouched; the client's parser
		// decides what to do with them.
		lg.Warn("unparsable upstream stream event", zap.Error(err))
		return writeStreamLine(c, line)
	}

	event["id"] = pctx.RequestId
	delete(event, "system_fingerprint")
	event.SetModel(pctx.ModelName)

	if delta := event.Delta(); delta != nil {
		if s, ok := delta["content"].(string); ok {
			tracker.TrackContent(s)
		}
		if s, ok := delta["reasoning_content"].(string); ok {
			tracker.TrackContent(s)
		}
		if toolCalls, ok := delta["tool_calls"]; ok {
			if raw, err := json.Marshal(toolCalls); err == nil {
				tracker.TrackContent(string(raw))
			}
		}
	}
	if usage, ok := billing.NormalizeUsage(event.UsageMap()); ok {
		tracker.RecordActualUsage(*usage)
		event["usage"] = *usage
	}

	for _, out := range transformer.Transform(event) {
		raw, err := json.Marshal(out)
		if err != nil {
			lg.Error("marshal stream event failed", zap.Error(err))
			continue
		}
		if !writeStreamLine(c, dataPrefix+string(raw)) {
			return false
		}
	}
	return true
}

func writeStreamLine(c *gin.Context, line string) bool {
	if _, err := fmt.Fprintf(c.Writer, "%s\n\n", line); err != nil {
		return false
	}
	c.Writer.Flush()
	return true
}
