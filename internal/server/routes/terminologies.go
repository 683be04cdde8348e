package routes

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/termcache/termcache/internal/cache"
	"github.com/termcache/termcache/internal/registry"
	"github.com/termcache/termcache/internal/server"
	"github.com/termcache/termcache/internal/terminology"
)

// RegisterTerminologyRoutes 暴露 /-/terminologies 接口，供本机工具查询注册表状态、
// 同步获取术语或触发后台加载。
func RegisterTerminologyRoutes(app *fiber.App, terms server.Terminologies, catalog *server.Catalog) {
	if app == nil || terms == nil {
		return
	}

	app.Get("/-/terminologies", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"terminologies": terms.Snapshot(),
			"catalog":       encodeCatalog(catalog.List(), terms),
		})
	})

	app.Get("/-/terminologies/lookup", func(c fiber.Ctx) error {
		id := strings.TrimSpace(c.Query("id"))
		if id == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "id_required"})
		}
		return lookup(c, terms, id)
	})

	app.Get("/-/terminologies/by-name/:name", func(c fiber.Ctx) error {
		entry, ok := catalog.Lookup(c.Params("name"))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "terminology_not_configured"})
		}
		return lookup(c, terms, entry.ID())
	})

	app.Post("/-/terminologies/defer", func(c fiber.Ctx) error {
		id := strings.TrimSpace(c.Query("id"))
		if id == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "id_required"})
		}
		terms.DeferredLoad(id)
		return c.Status(fiber.StatusAccepted).JSON(statusPayload{ID: id, State: terms.State(id)})
	})
}

type statusPayload struct {
	ID    string         `json:"id"`
	State registry.State `json:"state"`
}

type lookupPayload struct {
	ID          string              `json:"id"`
	State       registry.State      `json:"state"`
	Terminology terminology.Summary `json:"terminology"`
}

type catalogPayload struct {
	Name    string         `json:"name"`
	URL     string         `json:"url"`
	Preload bool           `json:"preload"`
	State   registry.State `json:"state"`
}

func lookup(c fiber.Ctx, terms server.Terminologies, id string) error {
	term, err := terms.Load(c.Context(), id)
	if err != nil {
		status, code := classifyLoadError(err)
		if status >= fiber.StatusInternalServerError {
			return fiber.NewError(status, code)
		}
		return c.Status(status).JSON(fiber.Map{"error": code, "id": id})
	}
	return c.JSON(lookupPayload{
		ID:          id,
		State:       registry.StateLoaded,
		Terminology: term.Summary(),
	})
}

// classifyLoadError 把注册表错误映射为 HTTP 状态码与错误码。
func classifyLoadError(err error) (int, string) {
	var fsErr *cache.FilesystemError
	switch {
	case errors.Is(err, registry.ErrUnavailable):
		return fiber.StatusNotFound, "terminology_unavailable"
	case errors.Is(err, registry.ErrWaitTimeout):
		return fiber.StatusGatewayTimeout, "wait_timeout"
	case errors.As(err, &fsErr):
		return fiber.StatusInternalServerError, "cache_failed"
	default:
		return fiber.StatusInternalServerError, "load_failed"
	}
}

func encodeCatalog(entries []server.CatalogEntry, terms server.Terminologies) []catalogPayload {
	if len(entries) == 0 {
		return nil
	}
	result := make([]catalogPayload, 0, len(entries))
	for _, entry := range entries {
		result = append(result, catalogPayload{
			Name:    entry.Config.Name,
			URL:     entry.ID(),
			Preload: entry.Config.Preload,
			State:   terms.State(entry.ID()),
		})
	}
	return result
}
