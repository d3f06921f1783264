package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	"golang.org/x/time/rate"

	"github.com/sabio/grafana-explore-assistant/pkg/assistant"
	"github.com/sabio/grafana-explore-assistant/pkg/config"
)

// Make sure Plugin implements required interfaces
var (
	_ backend.CallResourceHandler = (*Plugin)(nil)
	_ backend.CheckHealthHandler  = (*Plugin)(nil)
)

// SetupFunc builds the assistant for one instance
type SetupFunc func(ctx context.Context, settings *config.Settings) (*assistant.Service, error)

// Plugin is the main plugin struct that manages instances
type Plugin struct {
	mu         sync.RWMutex
	instances  map[int64]*Instance
	setupLocks map[int64]*sync.Mutex

	setup  SetupFunc
	getenv func(string) string
}

// Instance is the assistant serving one organization
type Instance struct {
	manager  *assistant.Manager
	health   func(ctx context.Context) error
	limiter  *rate.Limiter
	timeout  time.Duration
	backend  string
	settings *config.Settings
}

// NewPlugin creates a new Plugin
func NewPlugin() *Plugin {
	return &Plugin{
		instances:  make(map[int64]*Instance),
		setupLocks: make(map[int64]*sync.Mutex),
		setup:      assistant.Setup,
		getenv:     os.Getenv,
	}
}

// CallResource handles HTTP requests to plugin resources
func (p *Plugin) CallResource(ctx context.Context, req *backend.CallResourceRequest, sender backend.CallResourceResponseSender) error {
	log.DefaultLogger.Info("CallResource", "path", req.Path, "method", req.Method)

	instance, err := p.getInstance(ctx, req.PluginContext)
	if err != nil {
		return sendError(sender, 500, fmt.Sprintf("Failed to get plugin instance: %v", err))
	}

	switch req.Path {
	case "explore":
		return instance.handleExplore(ctx, req, sender)
	case "explore-stream":
		return instance.handleExploreStream(ctx, req, sender)
	case "classify":
		return instance.handleClassify(ctx, req, sender)
	case "summarize":
		return instance.handleSummarize(ctx, req, sender)
	case "history":
		return instance.handleHistory(ctx, req, sender)
	case "health":
		return instance.handleHealth(ctx, req, sender)
	default:
		return sendError(sender, 404, "Not found")
	}
}

// CheckHealth reports whether the instance can be built and the host is reachable
func (p *Plugin) CheckHealth(ctx context.Context, req *backend.CheckHealthRequest) (*backend.CheckHealthResult, error) {
	instance, err := p.getInstance(ctx, req.PluginContext)
	if err != nil {
		return &backend.CheckHealthResult{
			Status:  backend.HealthStatusError,
			Message: fmt.Sprintf("Failed to initialize explore assistant: %v", err),
		}, nil
	}

	healthCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	if err := instance.health(healthCtx); err != nil {
		return &backend.CheckHealthResult{
			Status:  backend.HealthStatusError,
			Message: fmt.Sprintf("Host API unreachable: %v", err),
		}, nil
	}

	return &backend.CheckHealthResult{
		Status:  backend.HealthStatusOk,
		Message: fmt.Sprintf("Explore assistant ready (backend: %s)", instance.backend),
	}, nil
}

// getInstance gets or creates an instance for the given plugin context.
// Setup runs under a per-org lock so a slow host only delays its own org.
// Failed setups are not cached and are retried on the next request.
func (p *Plugin) getInstance(ctx context.Context, pluginCtx backend.PluginContext) (*Instance, error) {
	instanceID := pluginCtx.OrgID

	if instance, exists := p.lookupInstance(instanceID); exists {
		return instance, nil
	}

	lock := p.setupLock(instanceID)
	lock.Lock()
	defer lock.Unlock()

	// Another request may have finished setup while we waited
	if instance, exists := p.lookupInstance(instanceID); exists {
		return instance, nil
	}

	instance, err := p.createInstance(ctx, pluginCtx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.instances[instanceID] = instance
	p.mu.Unlock()

	return instance, nil
}

func (p *Plugin) lookupInstance(instanceID int64) (*Instance, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	instance, exists := p.instances[instanceID]
	return instance, exists
}

func (p *Plugin) setupLock(instanceID int64) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, ok := p.setupLocks[instanceID]
	if !ok {
		lock = &sync.Mutex{}
		p.setupLocks[instanceID] = lock
	}
	return lock
}

// createInstance creates a new plugin instance
func (p *Plugin) createInstance(ctx context.Context, pluginCtx backend.PluginContext) (*Instance, error) {
	log.DefaultLogger.Info("Creating new plugin instance", "org_id", pluginCtx.OrgID)

	// Get settings from AppInstanceSettings if available, otherwise use DataSourceInstanceSettings
	var jsonData []byte
	var decryptedSecrets map[string]string

	if pluginCtx.AppInstanceSettings != nil {
		jsonData = pluginCtx.AppInstanceSettings.JSONData
		decryptedSecrets = pluginCtx.AppInstanceSettings.DecryptedSecureJSONData
	} else if pluginCtx.DataSourceInstanceSettings != nil {
		jsonData = pluginCtx.DataSourceInstanceSettings.JSONData
		decryptedSecrets = pluginCtx.DataSourceInstanceSettings.DecryptedSecureJSONData
	}

	settings, err := config.LoadSettings(jsonData)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	settings.ApplySecrets(decryptedSecrets)
	settings.ApplyEnv(p.getenv)

	svc, err := p.setup(ctx, settings)
	if err != nil {
		return nil, err
	}

	return newInstance(svc.Manager, svc.Health, svc.Backend, settings), nil
}

func newInstance(manager *assistant.Manager, health func(context.Context) error, backendName string, settings *config.Settings) *Instance {
	perSecond := rate.Limit(float64(settings.RequestsPerMinute) / 60)

	return &Instance{
		manager:  manager,
		health:   health,
		limiter:  rate.NewLimiter(perSecond, settings.RequestsPerMinute),
		timeout:  settings.Timeout(),
		backend:  backendName,
		settings: settings,
	}
}

// sendJSON sends a JSON response
func sendJSON(sender backend.CallResourceResponseSender, status int, data interface{}) error {
	body, err := json.Marshal(data)
	if err != nil {
		return sendError(sender, 500, fmt.Sprintf("Failed to marshal JSON: %v", err))
	}

	return sender.Send(&backend.CallResourceResponse{
		Status:  status,
		Headers: map[string][]string{"Content-Type": {"application/json"}},
		Body:    body,
	})
}

// sendError sends an error response
func sendError(sender backend.CallResourceResponseSender, status int, message string) error {
	body, _ := json.Marshal(map[string]string{"error": message})
	return sender.Send(&backend.CallResourceResponse{
		Status:  status,
		Headers: map[string][]string{"Content-Type": {"application/json"}},
		Body:    body,
	})
}
