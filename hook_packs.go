package providerlink

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// HookPack is a named set of hooks a binary can select at startup.
type HookPack struct {
	Name  string
	Hooks HookFuncs
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

// HookPacks collects hook packs and command/query bundles contributed by
// downstream packages.
type HookPacks struct {
	mu sync.RWMutex

	packs   map[string]HookPack
	bundles map[string]CommandQueryBundleFactory
}

func NewHookPacks() *HookPacks {
	return &HookPacks{
		packs:   map[string]HookPack{},
		bundles: map[string]CommandQueryBundleFactory{},
	}
}

// Register rejects packs missing any required hook so a bad pack fails at
// registration rather than at engine construction.
func (h *HookPacks) Register(pack HookPack) error {
	if h == nil {
		return fmt.Errorf("providerlink: hook packs are nil")
	}
	name := strings.TrimSpace(strings.ToLower(pack.Name))
	if name == "" {
		return fmt.Errorf("providerlink: hook pack name is required")
	}
	if missing := pack.Hooks.MissingHooks(); len(missing) > 0 {
		return fmt.Errorf("providerlink: hook pack %q is missing %s", name, strings.Join(missing, ", "))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.packs[name]; exists {
		return fmt.Errorf("providerlink: hook pack %q already registered", name)
	}
	h.packs[name] = HookPack{Name: name, Hooks: pack.Hooks}
	return nil
}

func (h *HookPacks) Resolve(name string) (HookFuncs, error) {
	if h == nil {
		return HookFuncs{}, fmt.Errorf("providerlink: hook packs are nil")
	}
	name = strings.TrimSpace(strings.ToLower(name))
	h.mu.RLock()
	defer h.mu.RUnlock()
	pack, ok := h.packs[name]
	if !ok {
		return HookFuncs{}, fmt.Errorf("providerlink: unknown hook pack %q (registered: %s)", name, strings.Join(h.namesLocked(), ", "))
	}
	return pack.Hooks, nil
}

func (h *HookPacks) Names() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.namesLocked()
}

func (h *HookPacks) namesLocked() []string {
	names := make([]string, 0, len(h.packs))
	for name := range h.packs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (h *HookPacks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("providerlink: hook packs are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("providerlink: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("providerlink: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("providerlink: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

func (h *HookPacks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("providerlink: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		names = append(names, name)
		factories[name] = factory
	}
	h.mu.RUnlock()
	sort.Strings(names)

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}
