package controller

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/apimirror/gateway/common/config"
	"github.com/apimirror/gateway/common/kv"
	"github.com/apimirror/gateway/relay"
	relaymodel "github.com/apimirror/gateway/relay/model"
)

const modelsCacheKey = "models_list"

// ListModels handles GET /v1/models: the union of all providers' model
// catalogs, ids prefixed with the provider name and filtered by each
// provider's allow-list. The aggregate is cached; a provider that fails
// to answer is skipped rather than failing the whole catalog.
func ListModels(c *gin.Context) {
	lg := gmw.GetLogger(c)
	ctx := gmw.Ctx(c)

	if entry, found, err := kv.Shared.Get(ctx, modelsCacheKey); err != nil {
		lg.Warn("models cache read failed", zap.Error(err))
	} else if found && entry.Tag == "" {
		var list relaymodel.ModelList
		if err := json.Unmarshal(entry.Value, &list); err == nil {
			c.JSON(http.StatusOK, list)
			return
		}
		lg.Warn("models cache entry corrupt, refreshing", zap.Error(err))
	}

	var (
		mu   sync.Mutex
		data []relaymodel.ModelInfo
		wg   sync.WaitGroup
	)
	for name, provider := range relay.Providers() {
		wg.Add(1)
		go func(name string, provider *relay.Provider) {
			defer wg.Done()
			models, err := provider.Adaptor.ListModels(ctx)
			if err != nil {
				lg.Warn("provider model listing failed",
					zap.String("provider", name), zap.Error(err))
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, m := range models {
				if !provider.ModelAllowed(m.Id) {
					continue
				}
				m.Id = name + "/" + m.Id
				if m.OwnedBy == "" {
					m.OwnedBy = name
				}
				data = append(data, m)
			}
		}(name, provider)
	}
	wg.Wait()

	sort.Slice(data, func(i, j int) bool { return data[i].Id < data[j].Id })
	list := relaymodel.ModelList{Object: "list", Data: data}

	// An empty aggregate usually means every upstream is down; caching it
	// would hide the catalog for the whole TTL.
	if len(data) > 0 {
		if raw, err := json.Marshal(list); err == nil {
			if err := kv.Shared.Set(ctx, modelsCacheKey, kv.Entry{Value: raw}, config.ModelsListTTL); err != nil {
				lg.Warn("models cache write failed", zap.Error(err))
			}
		}
	}
	c.JSON(http.StatusOK, list)
}
