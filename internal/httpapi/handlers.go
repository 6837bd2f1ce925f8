package httpapi

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/loquat-fw/loquat/pkg/format"
)

type emptyInput struct{}

type rootOutput struct {
	Body Envelope[RootInfo]
}

// RootInfo is the response body for GET /.
type RootInfo struct {
	Name    string `json:"name" doc:"Service name"`
	Version string `json:"version" doc:"Build version"`
	Status  string `json:"status" doc:"Engine lifecycle status"`
}

type healthOutput struct {
	Body Envelope[HealthInfo]
}

// HealthInfo is the response body for GET /health.
type HealthInfo struct {
	Status          string  `json:"status"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
	CPUCores        int     `json:"cpu_cores"`
	LoadPercent1m   float64 `json:"load_percent_1m"`
	MemoryUsedMB    float64 `json:"memory_used_mb"`
	MemoryUsedHuman string  `json:"memory_used_human"`
	Processed       uint64  `json:"processed"`
	ProcessedHuman  string  `json:"processed_human"`
	Failed          uint64  `json:"failed"`
	FailedHuman     string  `json:"failed_human"`
	LastLatencyMs   int64   `json:"last_latency_ms"`
}

type artifactOutput struct {
	Body Envelope[ArtifactInfo]
}

type artifactListOutput struct {
	Body Envelope[[]ArtifactInfo]
}

// ArtifactInfo is the uniform response shape for a loaded Plugin or
// Adapter: Kind distinguishes which.
type ArtifactInfo struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type nameInput struct {
	Name string `path:"name"`
}

type reloadOutput struct {
	Body Envelope[ReloadResult]
}

// ReloadResult reports how many artifacts a reload operation targeted.
type ReloadResult struct {
	Triggered int `json:"triggered"`
}

type configOutput struct {
	Body Envelope[ConfigInfo]
}

// ConfigInfo is a safe, read-only summary of the running configuration —
// it never includes secrets.
type ConfigInfo struct {
	Environment      string `json:"environment"`
	Name             string `json:"name"`
	LogLevel         string `json:"log_level"`
	WebAddress       string `json:"web_address"`
	PipelineCap      int    `json:"pipeline_iteration_cap"`
	AutoRoute        bool   `json:"auto_route"`
	AutoCreateChans  bool   `json:"auto_create_channels"`
	EvictionSchedule string `json:"channel_eviction_schedule"`
	StatsLogSchedule string `json:"stats_log_schedule"`
}

func errNotFound(name string) error {
	return fmt.Errorf("no artifact named %q", name)
}

func registerRoutes(api huma.API, deps Deps) {
	huma.Register(api, huma.Operation{OperationID: "getRoot", Method: "GET", Path: "/", Summary: "Service banner"},
		func(_ context.Context, _ *emptyInput) (*rootOutput, error) {
			status := "Unknown"
			if deps.Engine != nil {
				status = deps.Engine.Status().String()
			}
			return &rootOutput{Body: ok(RootInfo{Name: "loquat", Version: deps.Version, Status: status})}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "getHealth", Method: "GET", Path: "/health", Summary: "Health check", Tags: []string{"System"}},
		func(_ context.Context, _ *emptyInput) (*healthOutput, error) {
			return &healthOutput{Body: ok(buildHealthInfo(deps))}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "listPlugins", Method: "GET", Path: "/api/plugins", Summary: "List loaded plugins", Tags: []string{"Plugins"}},
		func(_ context.Context, _ *emptyInput) (*artifactListOutput, error) {
			return &artifactListOutput{Body: ok(pluginInfos(deps))}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "getPlugin", Method: "GET", Path: "/api/plugins/{name}", Summary: "Get one plugin", Tags: []string{"Plugins"}},
		func(_ context.Context, in *nameInput) (*artifactOutput, error) {
			if deps.Plugins == nil {
				return &artifactOutput{Body: fail[ArtifactInfo](errNotFound(in.Name))}, nil
			}
			h, found := deps.Plugins.Get(in.Name)
			if !found {
				return &artifactOutput{Body: fail[ArtifactInfo](errNotFound(in.Name))}, nil
			}
			snap := h.Snapshot()
			return &artifactOutput{Body: ok(ArtifactInfo{Kind: "plugin", Name: snap.Name, Status: snap.Status.String(), Error: snap.Error})}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "reloadPlugins", Method: "POST", Path: "/api/plugins/reload", Summary: "Force-reload every plugin", Tags: []string{"Plugins"}},
		func(ctx context.Context, _ *emptyInput) (*reloadOutput, error) {
			n := 0
			if deps.PluginWatcher != nil {
				deps.PluginWatcher.ReloadAll(ctx)
				if deps.Plugins != nil {
					n = deps.Plugins.Count()
				}
			}
			return &reloadOutput{Body: ok(ReloadResult{Triggered: n})}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "listAdapters", Method: "GET", Path: "/api/adapters", Summary: "List loaded adapters", Tags: []string{"Adapters"}},
		func(_ context.Context, _ *emptyInput) (*artifactListOutput, error) {
			return &artifactListOutput{Body: ok(adapterInfos(deps))}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "getAdapter", Method: "GET", Path: "/api/adapters/{name}", Summary: "Get one adapter", Tags: []string{"Adapters"}},
		func(_ context.Context, in *nameInput) (*artifactOutput, error) {
			if deps.Adapters == nil {
				return &artifactOutput{Body: fail[ArtifactInfo](errNotFound(in.Name))}, nil
			}
			h, found := deps.Adapters.Get(in.Name)
			if !found {
				return &artifactOutput{Body: fail[ArtifactInfo](errNotFound(in.Name))}, nil
			}
			snap := h.Snapshot()
			return &artifactOutput{Body: ok(ArtifactInfo{Kind: "adapter", Name: snap.Name, Status: snap.Status.String()})}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "reloadAdapters", Method: "POST", Path: "/api/adapters/reload", Summary: "Force-reload every adapter", Tags: []string{"Adapters"}},
		func(ctx context.Context, _ *emptyInput) (*reloadOutput, error) {
			n := 0
			if deps.AdapterWatcher != nil {
				deps.AdapterWatcher.ReloadAll(ctx)
				if deps.Adapters != nil {
					n = deps.Adapters.Count()
				}
			}
			return &reloadOutput{Body: ok(ReloadResult{Triggered: n})}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "reloadAll", Method: "POST", Path: "/api/reload", Summary: "Force-reload every plugin and adapter", Tags: []string{"System"}},
		func(ctx context.Context, _ *emptyInput) (*reloadOutput, error) {
			n := 0
			if deps.PluginWatcher != nil {
				deps.PluginWatcher.ReloadAll(ctx)
				if deps.Plugins != nil {
					n += deps.Plugins.Count()
				}
			}
			if deps.AdapterWatcher != nil {
				deps.AdapterWatcher.ReloadAll(ctx)
				if deps.Adapters != nil {
					n += deps.Adapters.Count()
				}
			}
			return &reloadOutput{Body: ok(ReloadResult{Triggered: n})}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "getConfig", Method: "GET", Path: "/api/config", Summary: "Read-only configuration summary", Tags: []string{"System"}},
		func(_ context.Context, _ *emptyInput) (*configOutput, error) {
			return &configOutput{Body: ok(buildConfigInfo(deps))}, nil
		})
}

func buildHealthInfo(deps Deps) HealthInfo {
	info := HealthInfo{Status: "healthy"}
	if deps.Engine != nil {
		info.Status = deps.Engine.Status().String()
		stats := deps.Engine.StatsSnapshot()
		info.Processed = stats.Processed
		info.ProcessedHuman = format.NumberCompact(int64(stats.Processed))
		info.Failed = stats.Failed
		info.FailedHuman = format.NumberCompact(int64(stats.Failed))
		info.LastLatencyMs = stats.LastLatencyMs
	}
	if deps.HealthCollector != nil {
		snap := deps.HealthCollector.Collect()
		info.UptimeSeconds = snap.Uptime.Seconds()
		info.CPUCores = snap.CPU.Cores
		info.LoadPercent1m = snap.CPU.LoadPercentage1Min
		info.MemoryUsedMB = snap.Memory.UsedMemoryMB
		info.MemoryUsedHuman = format.Bytes(int64(snap.Memory.UsedMemoryMB * 1024 * 1024))
	}
	return info
}

func pluginInfos(deps Deps) []ArtifactInfo {
	if deps.Plugins == nil {
		return nil
	}
	snaps := deps.Plugins.List()
	out := make([]ArtifactInfo, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, ArtifactInfo{Kind: "plugin", Name: s.Name, Status: s.Status.String(), Error: s.Error})
	}
	return out
}

func adapterInfos(deps Deps) []ArtifactInfo {
	if deps.Adapters == nil {
		return nil
	}
	snaps := deps.Adapters.List()
	out := make([]ArtifactInfo, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, ArtifactInfo{Kind: "adapter", Name: s.Name, Status: s.Status.String()})
	}
	return out
}

func buildConfigInfo(deps Deps) ConfigInfo {
	if deps.Config == nil {
		return ConfigInfo{}
	}
	c := deps.Config
	return ConfigInfo{
		Environment:     c.General.Environment,
		Name:            c.General.Name,
		LogLevel:        c.Logging.Level,
		WebAddress:      c.Web.Address(),
		PipelineCap:     c.Pipeline.IterationCap,
		AutoRoute:       c.Pipeline.AutoRoute,
		AutoCreateChans: c.Pipeline.AutoCreateChannels,
		EvictionSchedule: format.CronDescription(c.Housekeeping.ChannelEvictionCron),
		StatsLogSchedule: format.CronDescription(c.Housekeeping.StatsLogCron),
	}
}
