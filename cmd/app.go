package cmd

import (
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/GroundedSearchMCP/internal/api"
	"github.com/router-for-me/GroundedSearchMCP/internal/auth"
	"github.com/router-for-me/GroundedSearchMCP/internal/config"
	"github.com/router-for-me/GroundedSearchMCP/internal/logging"
	"github.com/router-for-me/GroundedSearchMCP/internal/usage"
	"github.com/router-for-me/GroundedSearchMCP/internal/util"
)

// app bundles the long-lived collaborators shared by the commands. The
// active config is swapped atomically so the watcher can reload it while
// searches are in flight.
type app struct {
	cfgStore     *config.Store
	tokenStore   *auth.FileTokenStore
	flow         *auth.FlowManager
	tokens       *auth.Manager
	orchestrator *api.Orchestrator
	usage        *usage.Recorder

	current atomic.Pointer[config.Config]
}

func newApp() (*app, error) {
	logging.SetupBaseLogger()

	cfgStore, errStore := config.NewStore("")
	if errStore != nil {
		return nil, fmt.Errorf("open config store: %w", errStore)
	}
	cfg := cfgStore.Load()
	logging.SetVerbose(cfg.Verbose)

	tokenStore, errTokens := auth.NewFileTokenStore("")
	if errTokens != nil {
		return nil, fmt.Errorf("open token store: %w", errTokens)
	}

	// Search calls are bounded per request by the configured timeout, so the
	// shared client carries none of its own.
	searchClient := util.NewHTTPClient(cfg.ProxyURL, 0)
	authClient := util.NewHTTPClient(cfg.ProxyURL, 30*time.Second)

	a := &app{
		cfgStore:   cfgStore,
		tokenStore: tokenStore,
		flow:       auth.NewFlowManager(tokenStore, authClient),
		tokens:     auth.NewManager(tokenStore, authClient),
	}
	a.current.Store(cfg)

	recorder, errUsage := usage.NewRecorder("")
	if errUsage != nil {
		log.Warnf("usage counters disabled: %v", errUsage)
	} else {
		a.usage = recorder
	}

	var rec api.UsageRecorder
	if a.usage != nil {
		rec = a.usage
	}
	resolver := api.NewURLResolver(searchClient)
	a.orchestrator = api.NewOrchestrator(tokenStore, a.tokens, searchClient, resolver, rec, a.activeConfig)
	return a, nil
}

// activeConfig returns the config snapshot the orchestrator should use.
func (a *app) activeConfig() *config.Config {
	return a.current.Load()
}

// reloadConfig installs a freshly loaded config, used as the watcher callback.
func (a *app) reloadConfig(cfg *config.Config) {
	a.current.Store(cfg)
	logging.SetVerbose(cfg.Verbose)
	log.Infof("config reloaded: provider=%s thinking=%s timeout=%dms", cfg.DefaultProvider, cfg.DefaultThinking, cfg.Timeout)
}
