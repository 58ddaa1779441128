// Package services resolves the remoting destination each envelope body
// addresses against a catalogue of configured services. Nothing is invoked.
package services

import (
	"slices"
	"sort"
	"sync"
)

// Service is a remoting destination and the operations it exposes.
type Service interface {
	Name() string
	Operations() []string
}

// Destination is a statically configured Service.
type Destination struct {
	ID  string
	Ops []string
}

func (d Destination) Name() string { return d.ID }
func (d Destination) Operations() []string { return d.Ops }

// ServiceRegistry stores services by destination name.
type ServiceRegistry struct {
	repo map[string]Service
	mu   sync.RWMutex
}

func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{
		repo: make(map[string]Service),
	}
}

// Register adds a service by name, replacing any previous one.
func (sr *ServiceRegistry) Register(s Service) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.repo[s.Name()] = s
}

// All returns a snapshot of all registered services.
func (sr *ServiceRegistry) All() map[string]Service {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	out := make(map[string]Service, len(sr.repo))
	for name, svc := range sr.repo {
		out[name] = svc
	}
	return out
}

func (sr *ServiceRegistry) Get(name string) (Service, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	s, ok := sr.repo[name]
	return s, ok
}

// Names lists registered destinations in sorted order.
func (sr *ServiceRegistry) Names() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	names := make([]string, 0, len(sr.repo))
	for name := range sr.repo {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Exposes reports whether destination dest is registered and lists op. A
// service without operations accepts any.
func (sr *ServiceRegistry) Exposes(dest, op string) (known bool, exposed bool) {
	svc, ok := sr.Get(dest)
	if !ok {
		return false, false
	}
	ops := svc.Operations()
	return true, len(ops) == 0 || slices.Contains(ops, op)
}
