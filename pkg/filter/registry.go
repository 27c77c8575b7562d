// pkg/filter/registry.go
package filter

import (
	"fmt"
	"sync"

	"github.com/Masterminds/semver/v3"

	"imagefetch/pkg/utils"
)

// Registration describes a filter plugin as it's advertised to the
// Registry. MinEngineVersion is a semver constraint (e.g. ">= 1.2.0")
// that guards against registering a filter whose Identifier contract was
// written against cache-key rules a running engine predates. When the
// running engine's version isn't valid semver (e.g. a "dev" build), the
// constraint check is skipped and registration always succeeds.
type Registration struct {
	Name             string
	Filter           Filter
	MinEngineVersion string
}

// Registry is a name-keyed set of available filters, gated by engine
// version compatibility at registration time.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]Filter
	log     *utils.Logger
	engineVersion string
}

// NewRegistry builds an empty Registry checked against engineVersion.
func NewRegistry(engineVersion string, log *utils.Logger) *Registry {
	if log == nil {
		log = utils.NewLogger(utils.Config{})
	}
	return &Registry{
		byName:        make(map[string]Filter),
		log:           log,
		engineVersion: engineVersion,
	}
}

// Register adds reg.Filter under reg.Name, rejecting it if the running
// engine version doesn't satisfy reg.MinEngineVersion.
func (r *Registry) Register(reg Registration) error {
	if reg.MinEngineVersion != "" {
		ok, err := r.satisfies(reg.MinEngineVersion)
		if err != nil {
			r.log.WithFunc().WithError(err).WithField("filter", reg.Name).
				Warn("filter: engine version is not valid semver, skipping compatibility gate")
		} else if !ok {
			return fmt.Errorf("filter %q requires engine %s, running %s", reg.Name, reg.MinEngineVersion, r.engineVersion)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[reg.Name] = reg.Filter
	return nil
}

func (r *Registry) satisfies(constraint string) (bool, error) {
	v, err := semver.NewVersion(r.engineVersion)
	if err != nil {
		return false, err
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, err
	}
	return c.Check(v), nil
}

// Get returns the named filter, if registered.
func (r *Registry) Get(name string) (Filter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byName[name]
	return f, ok
}

// Names returns every registered filter name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	return names
}
