package prompt

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"ai-voice-chat/backend/internal/models"
)

// Persona is a named conversational style
type Persona struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

var builtinPersonas = []Persona{
	{
		Name:        models.DefaultPersonality,
		Description: "a laid-back, casual friend who keeps things light and easygoing",
	},
	{
		Name:        "supportive_listener",
		Description: "a patient, casual friend who listens closely and responds with empathy",
	},
	{
		Name:        "playful_banter",
		Description: "a witty, casual friend who enjoys teasing jokes and playful back-and-forth",
	},
	{
		Name:        "curious_explorer",
		Description: "an inquisitive, casual friend who loves digging into ideas and asking questions",
	},
}

// Catalog holds the personalities a session may select
type Catalog struct {
	mu       sync.RWMutex
	personas map[string]Persona
}

// DefaultCatalog returns a catalog with the built-in personalities
func DefaultCatalog() *Catalog {
	c := &Catalog{personas: make(map[string]Persona, len(builtinPersonas))}
	for _, p := range builtinPersonas {
		c.personas[p.Name] = p
	}
	return c
}

type personaFile struct {
	Personas []Persona `yaml:"personas"`
}

// LoadCatalog reads personalities from a YAML file on top of the built-in set.
// Entries with a built-in name replace it.
func LoadCatalog(path string) (*Catalog, error) {
	c := DefaultCatalog()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read personas file: %w", err)
	}
	if err := c.Merge(data); err != nil {
		return nil, fmt.Errorf("failed to parse personas file %s: %w", path, err)
	}
	return c, nil
}

// Merge adds the personalities of a YAML document
func (c *Catalog) Merge(data []byte) error {
	var file personaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range file.Personas {
		if p.Name == "" || p.Description == "" {
			return fmt.Errorf("persona entries need a name and a description")
		}
		c.personas[p.Name] = p
	}
	return nil
}

// Has reports whether name is a known personality
func (c *Catalog) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.personas[name]
	return ok
}

// Describe returns the style description of name, falling back to the default personality
func (c *Catalog) Describe(name string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.personas[name]; ok {
		return p.Description
	}
	return c.personas[models.DefaultPersonality].Description
}

// Names lists the known personalities in sorted order
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.personas))
	for name := range c.personas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
