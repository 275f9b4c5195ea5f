package command

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/intercept-cache/internal/cache"
	"github.com/any-hub/intercept-cache/internal/settings"
	"github.com/any-hub/intercept-cache/internal/telemetry"
)

// Dispatcher 把消息路由到配置通道或缓存存储。消息之间互不影响，不产生回复。
type Dispatcher struct {
	settings *settings.Cell[settings.Settings]
	store    cache.Store
	logger   *logrus.Logger
	metrics  *telemetry.Metrics
}

// NewDispatcher 创建 Dispatcher。
func NewDispatcher(cell *settings.Cell[settings.Settings], store cache.Store, logger *logrus.Logger, metrics *telemetry.Metrics) *Dispatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dispatcher{settings: cell, store: store, logger: logger, metrics: metrics}
}

// Dispatch 处理单条消息。只有 CLEAR_CACHE 的存储错误会返回给调用方；
// 未知消息记录错误日志后丢弃。
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) error {
	switch m := msg.(type) {
	case SetConfig:
		d.metrics.Message(TypeSetConfig)
		d.settings.Set(m.Settings.Clone())
		d.logger.WithFields(logrus.Fields{
			"action": "set_config",
			"keys":   len(m.Settings),
		}).Info("config_received")
		return nil
	case ClearCache:
		d.metrics.Message(TypeClearCache)
		started := time.Now()
		removed, err := InvalidateAll(ctx, d.store)
		fields := logrus.Fields{
			"action":     "clear_cache",
			"store":      d.store.Name(),
			"removed":    removed,
			"elapsed_ms": time.Since(started).Milliseconds(),
		}
		if err != nil {
			d.metrics.StoreError("delete")
			d.logger.WithFields(fields).WithError(err).Error("cache_clear_failed")
			return err
		}
		d.metrics.Invalidated(removed)
		d.logger.WithFields(fields).Info("cache_cleared")
		return nil
	default:
		tag := ""
		if msg != nil {
			tag = msg.Type()
		}
		d.metrics.Message("unknown")
		d.logger.WithFields(logrus.Fields{
			"action": "dispatch",
			"type":   tag,
		}).Error("unknown_message_type")
		return nil
	}
}
