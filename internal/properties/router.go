package properties

import (
	"chable_leads_backend/platform/logger"
	"chable_leads_backend/platform/sanitize"
)

// minReverseMatch is the shortest project mention that may match inside a longer alias.
const minReverseMatch = 4

// Router resolves a lead's interests to one property key.
type Router struct {
	registry *Registry
	log      *logger.Logger
}

// NewRouter creates a router over the registry's current catalog.
func NewRouter(registry *Registry, log *logger.Logger) *Router {
	return &Router{registry: registry, log: log}
}

// Resolve returns exactly one property key: the project match, then the
// region match, then the catalog default. It never fails.
func (r *Router) Resolve(projectInterest, cityInterest string) string {
	catalog := r.registry.Current()
	project := sanitize.Normalize(projectInterest)
	city := sanitize.Normalize(cityInterest)

	if key, ok := matchProject(catalog, project); ok {
		return key
	}
	if key, ok := matchRegion(catalog, city); ok {
		return key
	}

	if r.log != nil {
		r.log.RoutingFallback(projectInterest, cityInterest, catalog.DefaultKey())
	}
	return catalog.DefaultKey()
}

func matchProject(c *Catalog, project string) (string, bool) {
	if project == "" {
		return "", false
	}
	if p, ok := c.Get(project); ok {
		return p.Key, true
	}

	// Exact name matches first, then containment, both in declaration order.
	for i, p := range c.properties {
		for _, name := range c.projectTerms[i] {
			if name.text == project {
				return p.Key, true
			}
		}
	}
	var reverse *term
	if len(project) >= minReverseMatch {
		t := newTerm(project)
		reverse = &t
	}
	for i, p := range c.properties {
		for _, name := range c.projectTerms[i] {
			if name.within(project) || (reverse != nil && reverse.within(name.text)) {
				return p.Key, true
			}
		}
	}
	return "", false
}

func matchRegion(c *Catalog, city string) (string, bool) {
	if city == "" {
		return "", false
	}
	for i, p := range c.properties {
		for _, region := range c.regionTerms[i] {
			if region.text == city {
				return p.Key, true
			}
		}
	}
	for i, p := range c.properties {
		for _, region := range c.regionTerms[i] {
			if region.within(city) {
				return p.Key, true
			}
		}
	}
	return "", false
}
