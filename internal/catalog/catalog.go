// Package catalog holds the sellable items: subscription plans, credit packs
// and portrait styles. Defaults are compiled in; a TOML file can replace them.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
)

const FreePlanID = "free"

var (
	ErrUnknownPlan    = errors.New("unknown plan")
	ErrUnknownPackage = errors.New("unknown credit package")
	ErrUnknownStyle   = errors.New("unknown style")
)

// Plan is a subscription tier. MonthlyCredits is granted on every activation.
type Plan struct {
	ID             string          `toml:"id" json:"id"`
	Name           string          `toml:"name" json:"name"`
	PriceMonthly   decimal.Decimal `toml:"price_monthly" json:"price_monthly"`
	Currency       string          `toml:"currency" json:"currency"`
	MonthlyCredits int64           `toml:"monthly_credits" json:"monthly_credits"`
}

// Free reports whether the plan is never billed
func (p Plan) Free() bool {
	return p.PriceMonthly.IsZero()
}

// Package is a one-off credit pack
type Package struct {
	ID       string          `toml:"id" json:"id"`
	Name     string          `toml:"name" json:"name"`
	Credits  int64           `toml:"credits" json:"credits"`
	Price    decimal.Decimal `toml:"price" json:"price"`
	Currency string          `toml:"currency" json:"currency"`
}

// Style is a portrait look. Prompt may reference {pet} and {extra}.
type Style struct {
	ID     string `toml:"id" json:"id"`
	Name   string `toml:"name" json:"name"`
	Prompt string `toml:"prompt" json:"-"`
}

// BuildPrompt renders the provider prompt for one pet
func (s Style) BuildPrompt(petName, extra string) string {
	petName = strings.TrimSpace(petName)
	if petName == "" {
		petName = "the pet"
	}
	out := strings.NewReplacer("{pet}", petName, "{extra}", strings.TrimSpace(extra)).Replace(s.Prompt)
	return strings.Join(strings.Fields(out), " ")
}

// Catalog is immutable after Load
type Catalog struct {
	Plans    []Plan    `toml:"plans"`
	Packages []Package `toml:"packages"`
	Styles   []Style   `toml:"styles"`

	plans    map[string]Plan
	packages map[string]Package
	styles   map[string]Style
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Default returns the built-in catalog
func Default() *Catalog {
	c := &Catalog{
		Plans: []Plan{
			{ID: FreePlanID, Name: "Free", PriceMonthly: decimal.Zero, Currency: "USD", MonthlyCredits: 3},
			{ID: "basic", Name: "Basic", PriceMonthly: money("9.99"), Currency: "USD", MonthlyCredits: 30},
			{ID: "premium", Name: "Premium", PriceMonthly: money("19.99"), Currency: "USD", MonthlyCredits: 100},
		},
		Packages: []Package{
			{ID: "starter", Name: "Starter pack", Credits: 10, Price: money("4.99"), Currency: "USD"},
			{ID: "popular", Name: "Popular pack", Credits: 50, Price: money("19.99"), Currency: "USD"},
			{ID: "studio", Name: "Studio pack", Credits: 120, Price: money("39.99"), Currency: "USD"},
		},
		Styles: []Style{
			{ID: "renaissance", Name: "Renaissance", Prompt: "A regal renaissance oil portrait of {pet}, dressed as nobility, dramatic lighting, museum quality. {extra}"},
			{ID: "watercolor", Name: "Watercolor", Prompt: "A soft watercolor painting of {pet}, pastel palette, loose brush strokes, white paper background. {extra}"},
			{ID: "pop-art", Name: "Pop Art", Prompt: "A bold pop art portrait of {pet} in the style of screen prints, vivid flat colors, halftone dots. {extra}"},
			{ID: "cartoon", Name: "Cartoon", Prompt: "A cheerful cartoon illustration of {pet}, clean outlines, bright colors, expressive eyes. {extra}"},
			{ID: "astronaut", Name: "Space Explorer", Prompt: "A cinematic portrait of {pet} as an astronaut in a detailed space suit, stars and nebula behind. {extra}"},
		},
	}
	if err := c.index(); err != nil {
		panic(err)
	}
	return c
}

// Load reads a TOML catalog. An empty path returns Default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(string(data))
}

// Parse decodes a TOML catalog document
func Parse(doc string) (*Catalog, error) {
	var c Catalog
	md, err := toml.Decode(doc, &c)
	if err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("decode catalog: unknown keys %v", undecoded)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) index() error {
	c.plans = make(map[string]Plan, len(c.Plans))
	c.packages = make(map[string]Package, len(c.Packages))
	c.styles = make(map[string]Style, len(c.Styles))

	for _, p := range c.Plans {
		if p.ID == "" {
			return errors.New("catalog: plan without id")
		}
		if _, dup := c.plans[p.ID]; dup {
			return fmt.Errorf("catalog: duplicate plan %q", p.ID)
		}
		if p.MonthlyCredits < 0 || p.PriceMonthly.IsNegative() {
			return fmt.Errorf("catalog: plan %q has negative price or credits", p.ID)
		}
		c.plans[p.ID] = p
	}
	for _, p := range c.Packages {
		if p.ID == "" {
			return errors.New("catalog: package without id")
		}
		if _, dup := c.packages[p.ID]; dup {
			return fmt.Errorf("catalog: duplicate package %q", p.ID)
		}
		if p.Credits <= 0 || !p.Price.IsPositive() {
			return fmt.Errorf("catalog: package %q needs positive credits and price", p.ID)
		}
		c.packages[p.ID] = p
	}
	for _, s := range c.Styles {
		if s.ID == "" || s.Prompt == "" {
			return errors.New("catalog: style needs id and prompt")
		}
		if _, dup := c.styles[s.ID]; dup {
			return fmt.Errorf("catalog: duplicate style %q", s.ID)
		}
		c.styles[s.ID] = s
	}
	if _, ok := c.plans[FreePlanID]; !ok {
		return fmt.Errorf("catalog: plan %q is required", FreePlanID)
	}
	return nil
}

func (c *Catalog) Plan(id string) (Plan, error) {
	p, ok := c.plans[id]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %s", ErrUnknownPlan, id)
	}
	return p, nil
}

func (c *Catalog) Package(id string) (Package, error) {
	p, ok := c.packages[id]
	if !ok {
		return Package{}, fmt.Errorf("%w: %s", ErrUnknownPackage, id)
	}
	return p, nil
}

func (c *Catalog) Style(id string) (Style, error) {
	s, ok := c.styles[id]
	if !ok {
		return Style{}, fmt.Errorf("%w: %s", ErrUnknownStyle, id)
	}
	return s, nil
}
