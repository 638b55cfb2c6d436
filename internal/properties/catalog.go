// Package properties holds the static catalog of real-estate developments and
// the router that assigns a lead to exactly one of them.
package properties

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync/atomic"

	"chable_leads_backend/platform/sanitize"

	"gopkg.in/yaml.v3"
)

// CredentialLookup resolves the name of a credential to its secret value.
type CredentialLookup func(name string) (string, bool)

// SalesContact is the person notified when a property receives a lead.
type SalesContact struct {
	Name  string `yaml:"name" json:"name"`
	Phone string `yaml:"phone" json:"phone"`
	Email string `yaml:"email" json:"email,omitempty"`
}

// Property is one development and its CRM destination.
type Property struct {
	Key           string        `yaml:"key" json:"key"`
	CRMID         int           `yaml:"crm_id" json:"crm_id"`
	DisplayName   string        `yaml:"display_name" json:"display_name"`
	CredentialEnv string        `yaml:"credential_env" json:"credential_env"`
	Aliases       []string      `yaml:"aliases" json:"aliases"`
	Regions       []string      `yaml:"regions" json:"regions"`
	SalesContact  *SalesContact `yaml:"sales_contact" json:"sales_contact,omitempty"`

	credential string
}

// Credential returns the resolved CRM API key, empty when unconfigured.
func (p Property) Credential() string {
	return p.credential
}

// Configured reports whether the property can receive CRM dispatches.
func (p Property) Configured() bool {
	return p.credential != "" && p.CRMID > 0
}

type catalogFile struct {
	Default    string     `yaml:"default"`
	Properties []Property `yaml:"properties"`
}

// Catalog is an immutable, ordered set of properties. Declaration order
// matters: when two properties claim the same region alias the first wins.
type Catalog struct {
	properties []Property
	byKey      map[string]int
	defaultKey string
	// Word patterns for routing, indexed like properties.
	projectTerms [][]term
	regionTerms  [][]term
}

// term is a normalized name with its word-boundary pattern.
type term struct {
	text    string
	pattern *regexp.Regexp
}

// within reports whether t appears in haystack on word boundaries.
func (t term) within(haystack string) bool {
	return strings.Contains(haystack, t.text) && t.pattern.MatchString(haystack)
}

func newTerm(text string) term {
	return term{text: text, pattern: regexp.MustCompile(`\b` + regexp.QuoteMeta(text) + `\b`)}
}

func compileTerms(raw []string) []term {
	out := make([]term, 0, len(raw))
	for _, r := range raw {
		if text := sanitize.Normalize(r); text != "" {
			out = append(out, newTerm(text))
		}
	}
	return out
}

// Parse builds a catalog from YAML, resolving credentials through lookup.
func Parse(data []byte, lookup CredentialLookup) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse property catalog: %w", err)
	}
	return New(file.Properties, file.Default, lookup)
}

// LoadFile reads and parses a YAML catalog from disk.
func LoadFile(path string, lookup CredentialLookup) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read property catalog: %w", err)
	}
	return Parse(data, lookup)
}

// New builds a catalog from already-decoded properties. An empty defaultKey
// selects the first property.
func New(props []Property, defaultKey string, lookup CredentialLookup) (*Catalog, error) {
	if len(props) == 0 {
		return nil, errors.New("property catalog is empty")
	}

	c := &Catalog{
		properties: make([]Property, 0, len(props)),
		byKey:      make(map[string]int, len(props)),
	}
	for _, p := range props {
		p.Key = normalizeKey(p.Key)
		if p.Key == "" {
			return nil, errors.New("property with empty key")
		}
		if _, dup := c.byKey[p.Key]; dup {
			return nil, fmt.Errorf("duplicate property key %q", p.Key)
		}
		if p.CredentialEnv != "" && lookup != nil {
			if value, ok := lookup(p.CredentialEnv); ok {
				p.credential = strings.TrimSpace(value)
			}
		}
		c.byKey[p.Key] = len(c.properties)
		c.properties = append(c.properties, p)
		c.projectTerms = append(c.projectTerms, compileTerms(append([]string{strings.ReplaceAll(p.Key, "_", " "), p.DisplayName}, p.Aliases...)))
		c.regionTerms = append(c.regionTerms, compileTerms(p.Regions))
	}

	c.defaultKey = normalizeKey(defaultKey)
	if c.defaultKey == "" {
		c.defaultKey = c.properties[0].Key
	}
	if _, ok := c.byKey[c.defaultKey]; !ok {
		return nil, fmt.Errorf("default property %q is not in the catalog", c.defaultKey)
	}
	return c, nil
}

// Get returns the property for key.
func (c *Catalog) Get(key string) (Property, bool) {
	i, ok := c.byKey[normalizeKey(key)]
	if !ok {
		return Property{}, false
	}
	return c.properties[i], true
}

// All returns the properties in declaration order.
func (c *Catalog) All() []Property {
	out := make([]Property, len(c.properties))
	copy(out, c.properties)
	return out
}

// DefaultKey is the fallback routing target.
func (c *Catalog) DefaultKey() string {
	return c.defaultKey
}

// Regions returns every region alias across the catalog.
func (c *Catalog) Regions() []string {
	var out []string
	for _, p := range c.properties {
		out = append(out, p.Regions...)
	}
	return out
}

// ProjectNames returns every key, display name and alias across the catalog.
func (c *Catalog) ProjectNames() []string {
	var out []string
	for _, p := range c.properties {
		out = append(out, strings.ReplaceAll(p.Key, "_", " "), p.DisplayName)
		out = append(out, p.Aliases...)
	}
	return out
}

func normalizeKey(key string) string {
	return strings.ReplaceAll(sanitize.Normalize(key), " ", "_")
}

// Registry holds the current catalog. Reads are lock-free; Swap replaces the
// whole catalog on explicit reload.
type Registry struct {
	current atomic.Pointer[Catalog]
	path    string
	lookup  CredentialLookup
}

// NewRegistry wraps an initial catalog. path may be empty when reload is not supported.
func NewRegistry(initial *Catalog, path string, lookup CredentialLookup) *Registry {
	r := &Registry{path: path, lookup: lookup}
	r.current.Store(initial)
	return r
}

// Current returns the active catalog.
func (r *Registry) Current() *Catalog {
	return r.current.Load()
}

// Reload re-reads the catalog file. The active catalog is kept on error.
func (r *Registry) Reload() (*Catalog, error) {
	if r.path == "" {
		return nil, errors.New("property catalog has no backing file")
	}
	next, err := LoadFile(r.path, r.lookup)
	if err != nil {
		return nil, err
	}
	r.current.Store(next)
	return next, nil
}
