// Package catalog holds the fixed universe of services, hosts, and
// environments a generation session draws labels from. The catalog is built
// once per session and read-only afterwards; every emitted record references
// only catalog members.
package catalog

import (
	"fmt"
	"sort"
)

// Catalog is the immutable entity universe for one session.
type Catalog struct {
	services     []string
	hosts        []string
	environments []string
	hostsFor     map[string][]string
	envsFor      map[string][]string
	dependents   map[string][]string
}

// Spec configures catalog construction. HostsFor/EnvironmentsFor restrict a
// service to a plausible subset instead of the full cross-product; services
// absent from the maps use the global lists. Dependents is the static
// dependency graph used to cascade service outages.
type Spec struct {
	Services     []string
	Hosts        []string
	Environments []string
	HostsFor     map[string][]string
	EnvsFor      map[string][]string
	Dependents   map[string][]string
}

// New validates the spec and builds a Catalog.
func New(spec Spec) (*Catalog, error) {
	if len(spec.Services) == 0 {
		return nil, fmt.Errorf("catalog: at least one service required")
	}
	if len(spec.Hosts) == 0 {
		return nil, fmt.Errorf("catalog: at least one host required")
	}
	if len(spec.Environments) == 0 {
		return nil, fmt.Errorf("catalog: at least one environment required")
	}

	known := make(map[string]struct{}, len(spec.Services))
	for _, svc := range spec.Services {
		if svc == "" {
			return nil, fmt.Errorf("catalog: empty service name")
		}
		if _, dup := known[svc]; dup {
			return nil, fmt.Errorf("catalog: duplicate service %q", svc)
		}
		known[svc] = struct{}{}
	}

	c := &Catalog{
		services:     append([]string(nil), spec.Services...),
		hosts:        append([]string(nil), spec.Hosts...),
		environments: append([]string(nil), spec.Environments...),
		hostsFor:     make(map[string][]string, len(spec.Services)),
		envsFor:      make(map[string][]string, len(spec.Services)),
		dependents:   make(map[string][]string, len(spec.Dependents)),
	}

	for _, svc := range spec.Services {
		hosts := spec.HostsFor[svc]
		if len(hosts) == 0 {
			hosts = c.hosts
		}
		c.hostsFor[svc] = append([]string(nil), hosts...)

		envs := spec.EnvsFor[svc]
		if len(envs) == 0 {
			envs = c.environments
		}
		c.envsFor[svc] = append([]string(nil), envs...)
	}

	for svc, deps := range spec.Dependents {
		if _, ok := known[svc]; !ok {
			return nil, fmt.Errorf("catalog: dependency graph references unknown service %q", svc)
		}
		kept := make([]string, 0, len(deps))
		for _, dep := range deps {
			if _, ok := known[dep]; !ok {
				return nil, fmt.Errorf("catalog: dependency graph references unknown service %q", dep)
			}
			if dep != svc {
				kept = append(kept, dep)
			}
		}
		sort.Strings(kept)
		c.dependents[svc] = kept
	}

	return c, nil
}

// Services returns all service names.
func (c *Catalog) Services() []string { return c.services }

// Hosts returns all host names.
func (c *Catalog) Hosts() []string { return c.hosts }

// Environments returns all environment names.
func (c *Catalog) Environments() []string { return c.environments }

// HostsFor returns the hosts a service plausibly runs on.
func (c *Catalog) HostsFor(service string) []string { return c.hostsFor[service] }

// EnvironmentsFor returns the environments a service deploys to.
func (c *Catalog) EnvironmentsFor(service string) []string { return c.envsFor[service] }

// Dependents returns the services that depend on the given service and fail
// with it during an outage cascade.
func (c *Catalog) Dependents(service string) []string { return c.dependents[service] }

// Contains reports whether the service is a catalog member.
func (c *Catalog) Contains(service string) bool {
	_, ok := c.hostsFor[service]
	return ok
}
