package pages

import (
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"ambrosia-pos-gateway/internal/domain/modules"
	"ambrosia-pos-gateway/internal/platform/errors"
)

var (
	// ErrUnknownComponentBase is a configuration error: the base names no strategy.
	ErrUnknownComponentBase = stderrors.New("unknown component base")
	// ErrComponentNotFound is wrapped by every ResolutionError.
	ErrComponentNotFound = stderrors.New("component not found")
)

// ResolutionError lists every location tried before giving up.
type ResolutionError struct {
	Key       ComponentKey
	Attempted []string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve component %s: not found, tried %s", e.Key, strings.Join(e.Attempted, ", "))
}

func (e *ResolutionError) Unwrap() error { return ErrComponentNotFound }

// Exports is the export table of one location in the modules tree.
type Exports struct {
	Default Factory
	Named   map[string]Factory
}

type alias struct {
	modulesPath string
}

// Catalog holds both component trees. Register everything before the first
// Resolve; after that the catalogue is read only.
type Catalog struct {
	mu      sync.RWMutex
	modules map[string]Exports
	pages   map[string]Factory
	aliases map[string]alias
}

func NewCatalog() *Catalog {
	return &Catalog{
		modules: make(map[string]Exports),
		pages:   make(map[string]Factory),
		aliases: make(map[string]alias),
	}
}

// RegisterModule adds the exports found at modules/<path>.
func (c *Catalog) RegisterModule(path string, exports Exports) error {
	loc := joinLocation("modules", path)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.modules[loc]; dup {
		return errors.New(errors.KindConfig, "pages.register", "duplicate module location "+loc)
	}
	if exports.Default == nil && len(exports.Named) == 0 {
		return errors.New(errors.KindConfig, "pages.register", loc+" exports nothing")
	}
	c.modules[loc] = exports
	return nil
}

// RegisterPage adds a component at a pages location such as
// "store/Orders/OrdersPage" (the "pages/" prefix is implied).
func (c *Catalog) RegisterPage(location string, factory Factory) error {
	loc := joinLocation("pages", strings.TrimPrefix(strings.Trim(location, "/"), "pages/"))
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.pages[loc]; dup {
		return errors.New(errors.KindConfig, "pages.register", "duplicate page location "+loc)
	}
	if factory == nil {
		return errors.New(errors.KindConfig, "pages.register", loc+" has no factory")
	}
	c.pages[loc] = factory
	return nil
}

// Alias sends a pages lookup for (pagesPath, file) to modules/<modulesPath>.
func (c *Catalog) Alias(pagesPath, file, modulesPath string) error {
	key := joinLocation(pagesPath, file)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.aliases[key]; dup {
		return errors.New(errors.KindConfig, "pages.alias", "duplicate alias "+key)
	}
	c.aliases[key] = alias{modulesPath: modulesPath}
	return nil
}

// lookup runs the strategy for key.Base and returns the factory and the
// location it was found at.
func (c *Catalog) lookup(key ComponentKey) (Factory, string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch key.Base {
	case modules.BaseModules:
		return c.lookupModule(key, key.Path, nil)
	case modules.BasePages:
		if a, ok := c.aliases[joinLocation(key.Path, key.File)]; ok {
			return c.lookupModule(key, a.modulesPath, []string{"alias " + joinLocation("pages", key.Path, key.File)})
		}
		return c.lookupPage(key)
	default:
		return nil, "", &errors.Error{
			Kind:    errors.KindConfig,
			Op:      "pages.resolve",
			Message: fmt.Sprintf("base %q for component %s", key.Base, key.File),
			Cause:   ErrUnknownComponentBase,
		}
	}
}

func (c *Catalog) lookupModule(key ComponentKey, path string, attempted []string) (Factory, string, error) {
	loc := joinLocation("modules", path)
	named := loc + "#" + key.File
	def := loc + "#default"

	exports, ok := c.modules[loc]
	if ok {
		if f, ok := exports.Named[key.File]; ok && f != nil {
			return f, named, nil
		}
		if exports.Default != nil {
			return exports.Default, def, nil
		}
	}
	return nil, "", &ResolutionError{Key: key, Attempted: append(attempted, named, def)}
}

func (c *Catalog) lookupPage(key ComponentKey) (Factory, string, error) {
	candidates := []string{
		joinLocation("pages", key.Path, key.File),
		joinLocation("pages", key.Path, key.File, key.File+"Page"),
		joinLocation("pages", key.Path, key.File, "index"),
	}
	for _, loc := range candidates {
		if f, ok := c.pages[loc]; ok {
			return f, loc, nil
		}
	}
	return nil, "", &ResolutionError{Key: key, Attempted: candidates}
}

// Verify resolves every route of every enabled module and joins the failures.
func (c *Catalog) Verify(reg *modules.Registry) error {
	var errs []error
	for _, m := range reg.Enabled() {
		m := m
		for i := range m.Routes {
			rc := &modules.ResolvedRouteConfig{Module: &m, Route: &m.Routes[i]}
			if _, _, err := c.lookup(KeyFor(rc, "")); err != nil {
				errs = append(errs, fmt.Errorf("%s %s: %w", m.Key, m.Routes[i].Path, err))
			}
		}
	}
	return stderrors.Join(errs...)
}
