package catalog

import (
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"tapsync/backend/internal"
)

// ErrEmptyPool means neither the theme nor the default pool has any symbols.
// This is a fatal setup error for the room that asked.
var ErrEmptyPool = errors.New("symbol pool is empty")

// Template is one room blueprint from the themes directory.
type Template struct {
	Id          string               `json:"id"`
	DisplayName string               `json:"display_name"`
	MaxPlayers  int                  `json:"max_players"`
	Mode        internal.GameMode    `json:"mode"`
	StartPolicy internal.StartPolicy `json:"start_policy"`
	Palette     []string             `json:"palette,omitempty"`
	Symbols     []string             `json:"symbols,omitempty"`
}

// DefaultSymbolPool is the fallback pool used when a theme ships no symbols
// of its own.
var DefaultSymbolPool = []string{
	"😀", "😂", "😊", "😎", "🥳", "🤯", "😱", "👻", "👽", "🤖", "👾", "🤠", "🧐", "🧑‍🚀", "🦸",
	"🧑‍🌾", "🧑‍🍳", "🧑‍🔧", "🧑‍🎨", "🧑‍🎤", "🐶", "🐱", "🐭", "🦊", "🐻", "🐼", "🐨", "🐵", "🦁", "🐸",
	"🐳", "🦋", "🦄", "🐞", "🐢", "🌵", "🌴", "🌸", "🍁", "🍄", "🍎", "🍌", "🍉", "🍕", "🍔",
	"🍟", "🍩", "🍿", "🍭", "🍹", "⚽️", "🏀", "🎯", "🎮", "🎲", "🚀", "⚓️", "💡", "💎", "🎁",
	"🎉", "🔑", "💰", "💣", "⚙️", "🧭", "🔭", "🔮", "🛡️", "🏳️", "❤️", "⭐", "☀️", "🌙", "⚡️",
	"🔥", "💧", "🌈", "✨", "⏳",
}

// Catalog is the read-only lookup from theme id to template. Loaded once at
// startup, never mutated afterwards.
type Catalog struct {
	templates map[string]Template
}

func defaultTemplate() Template {
	return Template{
		Id:          "DEFAULT",
		DisplayName: "Default Room",
		MaxPlayers:  internal.DefaultMaxPlayers,
		Mode:        internal.ModeMatch,
		StartPolicy: internal.StartAllReady,
	}
}

// New builds a catalog from explicit templates. The builtin default template
// is always present unless overridden.
func New(templates ...Template) *Catalog {
	c := &Catalog{templates: make(map[string]Template)}
	c.put(defaultTemplate())
	for _, t := range templates {
		c.put(t)
	}
	return c
}

// LoadDir reads every *.json template in dir. A missing or empty directory is
// not an error; the builtin default template always remains available.
func LoadDir(dir string) (*Catalog, error) {
	c := New()

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Printf("[catalog.LoadDir] themes dir %q not readable, using builtin defaults: %v", dir, err)
		return c, nil
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Printf("[catalog.LoadDir] skipping unreadable template %s: %v", path, err)
			continue
		}
		var t Template
		if err := json.Unmarshal(raw, &t); err != nil {
			log.Printf("[catalog.LoadDir] skipping invalid template %s: %v", path, err)
			continue
		}
		if t.Id == "" {
			log.Printf("[catalog.LoadDir] skipping template %s: missing id", path)
			continue
		}
		c.put(t)
		loaded++
	}

	log.Printf("[catalog.LoadDir] loaded %d theme templates from %s", loaded, dir)
	return c, nil
}

func (c *Catalog) put(t Template) {
	if t.MaxPlayers <= 0 {
		t.MaxPlayers = internal.DefaultMaxPlayers
	}
	if t.Mode == "" {
		t.Mode = internal.ModeMatch
	}
	if t.StartPolicy == "" {
		t.StartPolicy = internal.StartAllReady
	}
	if t.DisplayName == "" {
		t.DisplayName = t.Id
	}
	c.templates[strings.ToUpper(t.Id)] = t
}

// GetTemplate looks up a template by theme id, case-insensitively.
func (c *Catalog) GetTemplate(themeId string) (Template, bool) {
	t, ok := c.templates[strings.ToUpper(themeId)]
	return t, ok
}

// SymbolsForTheme returns the theme's own pool, or the default pool when the
// theme has none. The result is a copy; callers may shuffle it freely.
func (c *Catalog) SymbolsForTheme(themeId string) []string {
	pool := DefaultSymbolPool
	if t, ok := c.GetTemplate(themeId); ok && len(t.Symbols) > 0 {
		pool = t.Symbols
	}
	out := make([]string, len(pool))
	copy(out, pool)
	return out
}

// BuildPool draws `need` symbols for one room session. A pool smaller than
// `need` is extended by repeating itself before shuffling (with a warning);
// only a completely empty pool fails.
func (c *Catalog) BuildPool(themeId string, need int) ([]string, error) {
	pool := c.SymbolsForTheme(themeId)
	if len(pool) == 0 {
		return nil, ErrEmptyPool
	}

	if len(pool) < need {
		log.Printf("[catalog.BuildPool] theme %s pool too small (%d < %d), repeating pool", themeId, len(pool), need)
		base := pool
		for len(pool) < need {
			pool = append(pool, base...)
		}
	}

	rand.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	return pool[:need], nil
}
