// Package catalog holds the capability table of conversion routes exposed by
// the service. Handlers only ever read an immutable snapshot; reloads swap
// the whole snapshot at once.
package catalog

import (
	"sort"
	"sync"
)

// Route describes one conversion offered (or advertised) by the service.
// Implemented marks routes backed by an engine; the rest are catalog-only
// placeholders listed for discovery but rejected by the dispatcher.
type Route struct {
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Desc        string   `json:"desc"`
	Accept      string   `json:"accept"`
	Category    string   `json:"category"`
	Emoji       string   `json:"emoji"`
	Multi       bool     `json:"multi"`
	From        []string `json:"from"`
	To          []string `json:"to"`
	Keywords    []string `json:"keywords"`
	Enabled     bool     `json:"enabled"`
	Implemented bool     `json:"-"`
}

func baseRoutes() []Route {
	return []Route{
		// Images
		{
			Slug: "jpg-to-png", Title: "JPG to PNG",
			Desc:   "Convert JPG images to lossless PNG.",
			Accept: "image/jpeg,.jpg,.jpeg", Category: "images", Emoji: "🔁",
			From: []string{"jpg", "jpeg"}, To: []string{"png"},
			Keywords: []string{"jpeg to png", "convert jpg to png"},
			Enabled:  true, Implemented: true,
		},
		{
			Slug: "png-to-jpg", Title: "PNG to JPG",
			Desc:   "Turn PNG files into compressed JPG.",
			Accept: "image/png,.png", Category: "images", Emoji: "🔁",
			From: []string{"png"}, To: []string{"jpg", "jpeg"},
			Keywords: []string{"png to jpeg"},
			Enabled:  true, Implemented: true,
		},
		{
			Slug: "webp-to-jpg", Title: "WEBP to JPG",
			Desc:   "For apps that do not accept WEBP.",
			Accept: "image/webp,.webp", Category: "images", Emoji: "🔁",
			From: []string{"webp"}, To: []string{"jpg"},
			Keywords: []string{"webp to jpeg"},
			Enabled:  true, Implemented: true,
		},
		{
			Slug: "jpg-to-webp", Title: "JPG to WEBP",
			Desc:   "Shrink images into modern WEBP.",
			Accept: "image/jpeg,.jpg,.jpeg", Category: "images", Emoji: "🔁",
			From: []string{"jpg", "jpeg"}, To: []string{"webp"},
			Enabled: true, Implemented: true,
		},
		{
			Slug: "image-to-pdf", Title: "Image to PDF",
			Desc:   "Build a PDF from a single image.",
			Accept: "image/*", Category: "images", Emoji: "🔁",
			From: []string{"jpg", "jpeg", "png", "webp"}, To: []string{"pdf"},
			Enabled: true, Implemented: true,
		},
		{
			Slug: "pdf-to-jpg", Title: "PDF to JPG (ZIP)",
			Desc:   "Export PDF pages as JPG images in a ZIP.",
			Accept: "application/pdf,.pdf", Category: "images", Emoji: "🔁",
			From: []string{"pdf"}, To: []string{"jpg", "zip"},
			Keywords: []string{"pdf to image"},
			Enabled:  true, Implemented: true,
		},
		{
			Slug: "images-to-pdf", Title: "Multiple images to one PDF",
			Desc:   "Upload several images and get a single PDF.",
			Accept: "image/*", Category: "images", Emoji: "🔁", Multi: true,
			From: []string{"jpg", "jpeg", "png", "webp"}, To: []string{"pdf"},
			Enabled: true, Implemented: true,
		},

		// Video (placeholders)
		{
			Slug: "mp4-to-mp3", Title: "MP4 to MP3",
			Desc:   "Extract the audio track from a video.",
			Accept: ".mp4,video/mp4", Category: "video", Emoji: "🔁",
			From: []string{"mp4"}, To: []string{"mp3"},
			Keywords: []string{"extract audio", "video to mp3"},
			Enabled:  true,
		},
		{
			Slug: "mov-to-mp4", Title: "MOV to MP4",
			Desc:   "Convert MOV (iPhone) to universal MP4.",
			Accept: ".mov,video/quicktime", Category: "video", Emoji: "🔁",
			From: []string{"mov"}, To: []string{"mp4"},
			Enabled: true,
		},
		{
			Slug: "webm-to-mp4", Title: "WEBM to MP4",
			Desc:   "Make WEBM videos broadly compatible.",
			Accept: ".webm,video/webm", Category: "video", Emoji: "🔁",
			From: []string{"webm"}, To: []string{"mp4"},
			Enabled: true,
		},

		// 3D (placeholders)
		{
			Slug: "stl-to-obj", Title: "STL to OBJ",
			Desc:   "Convert STL meshes to OBJ.",
			Accept: ".stl", Category: "3d", Emoji: "🔁",
			From: []string{"stl"}, To: []string{"obj"},
			Enabled: true,
		},
		{
			Slug: "obj-to-stl", Title: "OBJ to STL",
			Desc:   "Turn OBJ files into print-ready STL.",
			Accept: ".obj", Category: "3d", Emoji: "🔁",
			From: []string{"obj"}, To: []string{"stl"},
			Enabled: true,
		},
		{
			Slug: "step-to-stl", Title: "STEP to STL",
			Desc:   "Convert CAD STEP models to STL.",
			Accept: ".step,.stp", Category: "3d", Emoji: "🔁",
			From: []string{"step", "stp"}, To: []string{"stl"},
			Enabled: true,
		},

		// Documents (placeholders)
		{
			Slug: "docx-to-pdf", Title: "Word (DOCX) to PDF",
			Desc:   "Convert documents to shareable PDF.",
			Accept: ".docx,application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			Category: "documents", Emoji: "🔁",
			From: []string{"docx"}, To: []string{"pdf"},
			Enabled: true,
		},
		{
			Slug: "pptx-to-pdf", Title: "PowerPoint (PPTX) to PDF",
			Desc:   "Presentations as PDF in seconds.",
			Accept: ".pptx,application/vnd.openxmlformats-officedocument.presentationml.presentation",
			Category: "documents", Emoji: "🔁",
			From: []string{"pptx"}, To: []string{"pdf"},
			Enabled: true,
		},
		{
			Slug: "xlsx-to-pdf", Title: "Excel (XLSX) to PDF",
			Desc:   "Spreadsheets as readable PDF.",
			Accept: ".xlsx,application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Category: "documents", Emoji: "🔁",
			From: []string{"xlsx"}, To: []string{"pdf"},
			Enabled: true,
		},
		{
			Slug: "pdf-merge", Title: "Merge PDF",
			Desc:   "Join several PDFs into one.",
			Accept: "application/pdf,.pdf", Category: "documents", Emoji: "🔁",
			From: []string{"pdf"}, To: []string{"pdf"},
			Keywords: []string{"merge pdf", "join pdf"},
			Enabled:  true,
		},
		{
			Slug: "pdf-split", Title: "Split PDF",
			Desc:   "Split a PDF into pages or ranges.",
			Accept: "application/pdf,.pdf", Category: "documents", Emoji: "🔁",
			From: []string{"pdf"}, To: []string{"pdf", "zip"},
			Keywords: []string{"split pdf"},
			Enabled:  true,
		},
		{
			Slug: "pdf-compress", Title: "Compress PDF",
			Desc:   "Reduce file size while keeping quality.",
			Accept: "application/pdf,.pdf", Category: "documents", Emoji: "🔁",
			From: []string{"pdf"}, To: []string{"pdf"},
			Keywords: []string{"compress pdf"},
			Enabled:  true,
		},
	}
}

// Catalog is an immutable snapshot of the route table.
type Catalog struct {
	routes []Route
	bySlug map[string]int
}

// Build assembles a snapshot from the built-in route table with the given
// enabled-flag overlay applied. Overlay keys that match no route are ignored.
func Build(overlay map[string]bool) *Catalog {
	routes := baseRoutes()
	for i := range routes {
		if enabled, ok := overlay[routes[i].Slug]; ok {
			routes[i].Enabled = enabled
		}
	}
	bySlug := make(map[string]int, len(routes))
	for i, r := range routes {
		bySlug[r.Slug] = i
	}
	return &Catalog{routes: routes, bySlug: bySlug}
}

// Lookup returns the route with the given slug.
func (c *Catalog) Lookup(slug string) (Route, bool) {
	i, ok := c.bySlug[slug]
	if !ok {
		return Route{}, false
	}
	return c.routes[i], true
}

// List returns all enabled routes in table order.
func (c *Catalog) List() []Route {
	out := make([]Route, 0, len(c.routes))
	for _, r := range c.routes {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

// RelatedBySource returns the other enabled routes that accept at least one
// of the given route's source extensions.
func (c *Catalog) RelatedBySource(route Route) []Route {
	from := make(map[string]struct{}, len(route.From))
	for _, e := range route.From {
		from[e] = struct{}{}
	}
	var related []Route
	for _, r := range c.routes {
		if r.Slug == route.Slug || !r.Enabled || len(r.From) == 0 {
			continue
		}
		for _, e := range r.From {
			if _, ok := from[e]; ok {
				related = append(related, r)
				break
			}
		}
	}
	return related
}

// PossibleTargets returns the sorted union of target extensions reachable
// from the route's source formats, across the route and its related routes.
func (c *Catalog) PossibleTargets(route Route) []string {
	targets := make(map[string]struct{})
	for _, t := range route.To {
		targets[t] = struct{}{}
	}
	for _, r := range c.RelatedBySource(route) {
		for _, t := range r.To {
			targets[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(targets))
	for t := range targets {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// The two overlay sources are recorded separately so every rebuild applies
// them in the same order: overlay file first, Postgres rows on top.
var overlays struct {
	sync.Mutex
	file map[string]bool
	db   map[string]bool
}

// SetFileOverlay records the overlay-file rows used by Rebuild.
func SetFileOverlay(m map[string]bool) {
	overlays.Lock()
	overlays.file = m
	overlays.Unlock()
}

// SetDBOverlay records the Postgres overlay rows used by Rebuild.
func SetDBOverlay(m map[string]bool) {
	overlays.Lock()
	overlays.db = m
	overlays.Unlock()
}

// Rebuild merges the recorded overlays and swaps in the resulting snapshot.
// A refresh of one source never discards the flags of the other.
func Rebuild() *Catalog {
	overlays.Lock()
	merged := make(map[string]bool, len(overlays.file)+len(overlays.db))
	for id, enabled := range overlays.file {
		merged[id] = enabled
	}
	for id, enabled := range overlays.db {
		merged[id] = enabled
	}
	overlays.Unlock()

	c := Build(merged)
	Replace(c)
	return c
}

var current struct {
	sync.RWMutex
	cat *Catalog
}

func init() {
	current.cat = Build(nil)
}

// Get returns the active catalog snapshot.
func Get() *Catalog {
	current.RLock()
	defer current.RUnlock()
	return current.cat
}

// Replace swaps in a new snapshot.
func Replace(c *Catalog) {
	current.Lock()
	current.cat = c
	current.Unlock()
}
