package routes

import (
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/intercept-cache/internal/cache"
	"github.com/any-hub/intercept-cache/internal/lifecycle"
	"github.com/any-hub/intercept-cache/internal/version"
)

// StatusOptions 汇总 /-/status 需要读取的运行时状态。
type StatusOptions struct {
	Controller *lifecycle.Controller
	Backend    string
}

type statusPayload struct {
	Version        string         `json:"version"`
	Instance       *instanceState `json:"instance"`
	Store          storeState     `json:"store"`
	ConfigResolved bool           `json:"config_resolved"`
	ConfigKeyCount int            `json:"config_key_count"`
}

type instanceState struct {
	ID          string `json:"id"`
	Version     string `json:"version"`
	InstalledAt string `json:"installed_at"`
}

type storeState struct {
	Backend string `json:"backend"`
	Name    string `json:"name"`
	Entries int    `json:"entries"`
	Error   string `json:"error,omitempty"`
}

// RegisterStatusRoutes 暴露 /-/status 诊断接口，供运维查询当前实例与缓存状态。
func RegisterStatusRoutes(app *fiber.App, opts StatusOptions) {
	if app == nil || opts.Controller == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		return c.JSON(buildStatus(c, opts))
	})
}

func buildStatus(c fiber.Ctx, opts StatusOptions) statusPayload {
	store := opts.Controller.Store()
	payload := statusPayload{
		Version: version.Full(),
		Store: storeState{
			Backend: opts.Backend,
			Name:    store.Name(),
		},
	}
	if n, err := cache.Len(c.Context(), store); err != nil {
		payload.Store.Error = err.Error()
	} else {
		payload.Store.Entries = n
	}

	inst := opts.Controller.Active()
	if inst == nil {
		return payload
	}
	payload.Instance = &instanceState{
		ID:          inst.ID,
		Version:     inst.Version,
		InstalledAt: inst.InstalledAt.Format(time.RFC3339),
	}
	if settings, ok := inst.Settings.Peek(); ok {
		payload.ConfigResolved = true
		payload.ConfigKeyCount = len(settings)
	}
	return payload
}
