package handlers

import (
	"sync/atomic"

	"github.com/gofiber/fiber/v2"

	"zetaconvert/internal/catalog"
	u "zetaconvert/internal/utils"
)

// HandleFormats serves the searchable route dataset.
func HandleFormats(c *fiber.Ctx) error {
	routes := catalog.Get().List()
	items := make([]fiber.Map, 0, len(routes))
	for _, r := range routes {
		items = append(items, fiber.Map{
			"slug":     r.Slug,
			"title":    r.Title,
			"desc":     r.Desc,
			"category": r.Category,
			"from":     r.From,
			"to":       r.To,
			"keywords": r.Keywords,
			"emoji":    r.Emoji,
			"multi":    r.Multi,
		})
	}
	return c.JSON(fiber.Map{"items": items})
}

// HandleCatalogReload re-reads the overlay file and swaps in a fresh catalog
// snapshot. Postgres overlay rows stay in effect across the rebuild.
func (svc *ConvertService) HandleCatalogReload(c *fiber.Ctx) error {
	var overlay map[string]bool
	if path := svc.Config.Catalog.OverlayFile; path != "" {
		loaded, err := catalog.LoadOverlayFile(path)
		if err != nil {
			u.Error("Catalog overlay reload failed", "path", path, "error", err)
			return fiber.NewError(fiber.StatusInternalServerError, "Overlay reload failed")
		}
		overlay = loaded
	}

	catalog.SetFileOverlay(overlay)
	catalog.Rebuild()
	u.Info("Catalog reloaded", "overlay_entries", len(overlay))
	return c.JSON(fiber.Map{"reloaded": true, "routes": len(catalog.Get().List())})
}

// HandleStats exposes request counters and worker pool statistics.
func (svc *ConvertService) HandleStats(c *fiber.Ctx) error {
	stats := fiber.Map{
		"requests": atomic.LoadInt64(&svc.totalRequests),
		"failures": atomic.LoadInt64(&svc.totalFailures),
	}
	if svc.Pool != nil {
		stats["pool"] = svc.Pool.GetStats()
	}
	return c.JSON(stats)
}
