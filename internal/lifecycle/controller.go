// Package lifecycle manages installed versions of the interception cache.
// Exactly one instance is active at a time; activating a new one supersedes
// the previous instance for every subsequent request.
package lifecycle

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/intercept-cache/internal/cache"
	"github.com/any-hub/intercept-cache/internal/command"
	"github.com/any-hub/intercept-cache/internal/fetch"
	"github.com/any-hub/intercept-cache/internal/gate"
	"github.com/any-hub/intercept-cache/internal/proxy"
	"github.com/any-hub/intercept-cache/internal/settings"
	"github.com/any-hub/intercept-cache/internal/telemetry"
)

// ErrNoActiveInstance 表示尚未激活任何实例，消息无处投递。
var ErrNoActiveInstance = errors.New("no active instance")

// Instance 是一个已安装的版本：独立的配置通道、缓存代理与消息分发器，共享同一个存储。
type Instance struct {
	ID          string
	Version     string
	InstalledAt time.Time

	Settings   *settings.Cell[settings.Settings]
	Proxy      *proxy.Handler
	Dispatcher *command.Dispatcher
}

// Deps 是所有实例共享的依赖。
type Deps struct {
	Fetcher    fetch.Fetcher
	Store      cache.Store
	Logger     *logrus.Logger
	Metrics    *telemetry.Metrics
	KeyHeaders []string
}

// Controller 负责安装与激活实例。
type Controller struct {
	deps   Deps
	active atomic.Pointer[Instance]
}

// NewController 创建 Controller。
func NewController(deps Deps) *Controller {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	return &Controller{deps: deps}
}

// Install 构建一个新实例，但不让它接管拦截。
func (c *Controller) Install(version string) *Instance {
	cell := settings.NewCell[settings.Settings]()
	inst := &Instance{
		ID:          uuid.NewString(),
		Version:     version,
		InstalledAt: time.Now().UTC(),
		Settings:    cell,
		Proxy: proxy.NewHandler(proxy.Options{
			Fetcher:    c.deps.Fetcher,
			Store:      c.deps.Store,
			Settings:   cell,
			Logger:     c.deps.Logger,
			Metrics:    c.deps.Metrics,
			KeyHeaders: c.deps.KeyHeaders,
		}),
		Dispatcher: command.NewDispatcher(cell, c.deps.Store, c.deps.Logger, c.deps.Metrics),
	}
	c.deps.Logger.WithFields(logrus.Fields{
		"action":   "install",
		"instance": inst.ID,
		"version":  version,
		"store":    c.deps.Store.Name(),
	}).Info("instance_installed")
	return inst
}

// Activate 立即让 inst 接管拦截并返回被取代的实例（可能为 nil）。
func (c *Controller) Activate(inst *Instance) *Instance {
	prev := c.active.Swap(inst)
	fields := logrus.Fields{
		"action":   "activate",
		"instance": inst.ID,
		"version":  inst.Version,
	}
	if prev != nil {
		fields["superseded"] = prev.ID
	}
	c.deps.Logger.WithFields(fields).Info("instance_activated")
	return prev
}

// Active 返回当前生效的实例。
func (c *Controller) Active() *Instance {
	return c.active.Load()
}

// Store 返回实例共享的缓存存储。
func (c *Controller) Store() cache.Store {
	return c.deps.Store
}

// Proxy 实现 gate.Resolver。
func (c *Controller) Proxy() gate.Proxy {
	inst := c.active.Load()
	if inst == nil {
		return nil
	}
	return inst.Proxy
}

// Dispatch 把已解码的消息交给当前实例。
func (c *Controller) Dispatch(ctx context.Context, msg command.Message) error {
	inst := c.active.Load()
	if inst == nil {
		return ErrNoActiveInstance
	}
	return inst.Dispatcher.Dispatch(ctx, msg)
}

// Deliver 解码原始消息并投递给当前实例。
func (c *Controller) Deliver(ctx context.Context, raw []byte) error {
	return c.Dispatch(ctx, command.Decode(raw))
}
