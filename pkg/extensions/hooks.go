// Package extensions provides a generic hook/plugin/interceptor framework
// over the turn pipeline's lifecycle: hook points name governance events
// (turn ingested, contradiction detected, gate rejection, contradiction
// resolved).
package extensions

import (
	"context"
	"fmt"
	"sync"
)

// HookPoint names a point in the turn pipeline where hooks can observe or
// react to what just happened.
type HookPoint string

const (
	// Turn lifecycle
	HookBeforeIngestTurn HookPoint = "before_ingest_turn"
	HookAfterIngestTurn  HookPoint = "after_ingest_turn"
	HookTurnRefused      HookPoint = "turn_refused"

	// Contradiction lifecycle
	HookContradictionDetected HookPoint = "contradiction_detected"
	HookContradictionResolved HookPoint = "contradiction_resolved"

	// Gate decisions
	HookGateRejected HookPoint = "gate_rejected"
	HookGatePassed   HookPoint = "gate_passed"

	// Disclosure
	HookCaveatInjected HookPoint = "caveat_injected"
	HookCaveatMissing  HookPoint = "caveat_missing"

	// Authentication & Authorization (demo HTTP shim only)
	HookAfterAuthentication HookPoint = "after_authentication"
	HookBeforeAuthorization HookPoint = "before_authorization"
	HookAfterAuthorization  HookPoint = "after_authorization"

	// Cache operations
	HookCacheMiss         HookPoint = "cache_miss"
	HookCacheHit          HookPoint = "cache_hit"
	HookCacheInvalidation HookPoint = "cache_invalidation"
)

// Hook is a function executed at a hook point.
type Hook func(ctx context.Context, data interface{}) error

// HookManager manages hooks for extension points. The Orchestrator treats
// every hook as best-effort: it fires them through ExecuteAsync, which
// discards hook errors, so a failing hook never fails the turn.
type HookManager struct {
	hooks map[HookPoint][]Hook
	mu    sync.RWMutex
}

func NewHookManager() *HookManager {
	return &HookManager{hooks: make(map[HookPoint][]Hook)}
}

// Register registers a hook for a specific hook point.
func (m *HookManager) Register(point HookPoint, hook Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[point] = append(m.hooks[point], hook)
}

// Execute runs every hook registered for point, in registration order,
// stopping at the first error.
func (m *HookManager) Execute(ctx context.Context, point HookPoint, data interface{}) error {
	m.mu.RLock()
	hooks := m.hooks[point]
	m.mu.RUnlock()

	for i, hook := range hooks {
		if err := hook(ctx, data); err != nil {
			return fmt.Errorf("hook %d at %s failed: %w", i, point, err)
		}
	}
	return nil
}

// ExecuteAsync runs every hook registered for point concurrently,
// discarding errors. This is the call shape the orchestrator uses: hook
// failures must never affect turn outcomes.
func (m *HookManager) ExecuteAsync(ctx context.Context, point HookPoint, data interface{}) {
	m.mu.RLock()
	hooks := m.hooks[point]
	m.mu.RUnlock()

	for _, hook := range hooks {
		go func(h Hook) {
			_ = h(ctx, data)
		}(hook)
	}
}

// Clear removes all hooks for a specific hook point.
func (m *HookManager) Clear(point HookPoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hooks, point)
}

// ClearAll removes all registered hooks.
func (m *HookManager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = make(map[HookPoint][]Hook)
}

// TurnHookData is passed to turn-lifecycle hooks.
type TurnHookData struct {
	ThreadID   string
	TurnNumber int
	UserText   string
	Metadata   map[string]interface{}
}

// ContradictionHookData is passed to contradiction-lifecycle hooks.
type ContradictionHookData struct {
	ThreadID        string
	ContradictionID string
	Slot            string
	Method          string
}

// Plugin represents an extension plugin that registers its own hooks.
type Plugin interface {
	Name() string
	Version() string
	Initialize(ctx context.Context) error
	RegisterHooks(manager *HookManager) error
	Shutdown(ctx context.Context) error
}

// PluginManager manages plugins.
type PluginManager struct {
	plugins     map[string]Plugin
	hookManager *HookManager
	mu          sync.RWMutex
}

func NewPluginManager(hookManager *HookManager) *PluginManager {
	return &PluginManager{plugins: make(map[string]Plugin), hookManager: hookManager}
}

func (m *PluginManager) Register(plugin Plugin) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := plugin.Name()
	if _, exists := m.plugins[name]; exists {
		return fmt.Errorf("plugin %s already registered", name)
	}
	if err := plugin.Initialize(context.Background()); err != nil {
		return fmt.Errorf("failed to initialize plugin %s: %w", name, err)
	}
	if err := plugin.RegisterHooks(m.hookManager); err != nil {
		return fmt.Errorf("failed to register hooks for plugin %s: %w", name, err)
	}
	m.plugins[name] = plugin
	return nil
}

func (m *PluginManager) Unregister(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	plugin, exists := m.plugins[name]
	if !exists {
		return fmt.Errorf("plugin %s not found", name)
	}
	if err := plugin.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("failed to shutdown plugin %s: %w", name, err)
	}
	delete(m.plugins, name)
	return nil
}

func (m *PluginManager) GetPlugin(name string) (Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	plugin, exists := m.plugins[name]
	return plugin, exists
}

func (m *PluginManager) ListPlugins() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.plugins))
	for name := range m.plugins {
		names = append(names, name)
	}
	return names
}

// Interceptor allows modifying data at extension points.
type Interceptor interface {
	Intercept(ctx context.Context, data interface{}) (interface{}, error)
}

// InterceptorChain chains multiple interceptors.
type InterceptorChain struct {
	interceptors []Interceptor
}

func NewInterceptorChain(interceptors ...Interceptor) *InterceptorChain {
	return &InterceptorChain{interceptors: interceptors}
}

func (c *InterceptorChain) Process(ctx context.Context, data interface{}) (interface{}, error) {
	var err error
	for _, interceptor := range c.interceptors {
		data, err = interceptor.Intercept(ctx, data)
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

// ExtensionRegistry manages all extension points.
type ExtensionRegistry struct {
	hookManager   *HookManager
	pluginManager *PluginManager
	interceptors  map[string]*InterceptorChain
	mu            sync.RWMutex
}

func NewExtensionRegistry() *ExtensionRegistry {
	hookManager := NewHookManager()
	return &ExtensionRegistry{
		hookManager:   hookManager,
		pluginManager: NewPluginManager(hookManager),
		interceptors:  make(map[string]*InterceptorChain),
	}
}

func (r *ExtensionRegistry) RegisterInterceptor(point string, interceptor Interceptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.interceptors[point] == nil {
		r.interceptors[point] = NewInterceptorChain()
	}
	r.interceptors[point].interceptors = append(r.interceptors[point].interceptors, interceptor)
}

func (r *ExtensionRegistry) ProcessInterceptors(ctx context.Context, point string, data interface{}) (interface{}, error) {
	r.mu.RLock()
	chain, exists := r.interceptors[point]
	r.mu.RUnlock()
	if !exists {
		return data, nil
	}
	return chain.Process(ctx, data)
}

func (r *ExtensionRegistry) GetHookManager() *HookManager {
	return r.hookManager
}

func (r *ExtensionRegistry) GetPluginManager() *PluginManager {
	return r.pluginManager
}
