package catalog

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrUnknownAsset  = errors.New("unknown asset class")
	ErrInvalidSymbol = errors.New("invalid symbol")
)

// Class groups symbols served by the same ordered provider list. A symbol
// belongs to the first class with a matching prefix or suffix, otherwise to
// the default class.
type Class struct {
	Name      string
	Providers []string
	Suffixes  []string
	Prefixes  []string
	Default   bool
}

// Asset is a resolved symbol.
type Asset struct {
	Symbol    string
	Canonical string
	Class     string
	Providers []string
}

type Catalog struct {
	classes  []Class
	fallback *Class
	aliases  map[string]string
}

func New(classes []Class, aliases map[string]string) (*Catalog, error) {
	if len(classes) == 0 {
		return nil, errors.New("at least one asset class is required")
	}

	c := &Catalog{
		classes: make([]Class, 0, len(classes)),
		aliases: make(map[string]string, len(aliases)),
	}

	seen := make(map[string]struct{}, len(classes))
	for _, cl := range classes {
		if cl.Name == "" {
			return nil, errors.New("asset class name is required")
		}
		if _, dup := seen[cl.Name]; dup {
			return nil, fmt.Errorf("duplicate asset class %q", cl.Name)
		}
		seen[cl.Name] = struct{}{}

		if len(cl.Providers) == 0 {
			return nil, fmt.Errorf("asset class %q has no providers", cl.Name)
		}

		cl = Class{
			Name:      cl.Name,
			Providers: slices.Clone(cl.Providers),
			Suffixes:  upper(cl.Suffixes),
			Prefixes:  upper(cl.Prefixes),
			Default:   cl.Default,
		}
		c.classes = append(c.classes, cl)
	}

	for i := range c.classes {
		if !c.classes[i].Default {
			continue
		}
		if c.fallback != nil {
			return nil, fmt.Errorf("asset classes %q and %q are both default", c.fallback.Name, c.classes[i].Name)
		}
		c.fallback = &c.classes[i]
	}

	for alias, canonical := range aliases {
		a, canon := normalize(alias), normalize(canonical)
		if a == "" || canon == "" {
			return nil, fmt.Errorf("alias %q -> %q must not be empty", alias, canonical)
		}
		c.aliases[a] = canon
	}

	return c, nil
}

// Resolve normalizes symbol, applies aliases and picks its asset class.
func (c *Catalog) Resolve(symbol string) (Asset, error) {
	sym := normalize(symbol)
	if sym == "" || strings.ContainsAny(sym, " /?#") {
		return Asset{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}

	canonical := sym
	if target, ok := c.aliases[sym]; ok {
		canonical = target
	}

	cl := c.match(canonical)
	if cl == nil {
		return Asset{}, fmt.Errorf("%w: no class for %s", ErrUnknownAsset, canonical)
	}

	return Asset{
		Symbol:    sym,
		Canonical: canonical,
		Class:     cl.Name,
		Providers: slices.Clone(cl.Providers),
	}, nil
}

// Classes returns a copy of the configured classes.
func (c *Catalog) Classes() []Class {
	out := make([]Class, len(c.classes))
	for i, cl := range c.classes {
		cl.Providers = slices.Clone(cl.Providers)
		cl.Suffixes = slices.Clone(cl.Suffixes)
		cl.Prefixes = slices.Clone(cl.Prefixes)
		out[i] = cl
	}
	return out
}

func (c *Catalog) match(symbol string) *Class {
	for i := range c.classes {
		cl := &c.classes[i]
		for _, s := range cl.Suffixes {
			if strings.HasSuffix(symbol, s) {
				return cl
			}
		}
		for _, p := range cl.Prefixes {
			if strings.HasPrefix(symbol, p) {
				return cl
			}
		}
	}
	return c.fallback
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func upper(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = normalize(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
