// Package tools registers the MCP tools exposed by the stdio server and
// binds them to the search orchestrator, the auth stack and the config store.
package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/GroundedSearchMCP/internal/api"
	"github.com/router-for-me/GroundedSearchMCP/internal/auth"
	"github.com/router-for-me/GroundedSearchMCP/internal/config"
	"github.com/router-for-me/GroundedSearchMCP/internal/constant"
	"github.com/router-for-me/GroundedSearchMCP/internal/usage"
)

// Deps carries the collaborators the tool handlers need.
type Deps struct {
	Orchestrator *api.Orchestrator
	Flow         *auth.FlowManager
	Store        *auth.FileTokenStore
	Config       *config.Store
	Usage        *usage.Recorder
}

// Register adds the grounded_search, auth and config tools to the server.
func Register(s *mcpserver.MCPServer, deps Deps) {
	registerSearchTool(s, deps)
	registerAuthTool(s, deps)
	registerConfigTool(s, deps)
}

func registerSearchTool(s *mcpserver.MCPServer, deps Deps) {
	searchTool := mcp.NewTool("grounded_search",
		mcp.WithDescription("Search the web with Google-grounded results. Returns an answer with cited sources and the queries used."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The search query"),
		),
		mcp.WithString("thinking",
			mcp.Description("Thinking level for providers that support it: 'high', 'low' or 'none'. Defaults to the configured level."),
		),
	)

	s.AddTool(searchTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})

		query, _ := args["query"].(string)
		if strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("query must not be empty"), nil
		}
		thinking, _ := args["thinking"].(string)
		if thinking != "" && !validThinking(thinking) {
			return mcp.NewToolResultError(fmt.Sprintf("thinking must be %q, %q or %q", config.ThinkingHigh, config.ThinkingLow, config.ThinkingNone)), nil
		}

		log.Debugf("tools: grounded_search %q", query)
		md := deps.Orchestrator.SearchWithFallback(ctx, api.SearchOptions{
			Query:    query,
			Thinking: thinking,
		})
		return mcp.NewToolResultText(md), nil
	})
}

func registerAuthTool(s *mcpserver.MCPServer, deps Deps) {
	authTool := mcp.NewTool("auth",
		mcp.WithDescription("Manage provider authentication: check status, sign in, sign out or pick the default provider."),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("One of 'status', 'login', 'logout', 'set-default'"),
		),
		mcp.WithString("provider",
			mcp.Description("Provider name: 'gemini' or 'antigravity'. Required for login and set-default; omit on logout to sign out of everything."),
		),
		mcp.WithBoolean("no_browser",
			mcp.Description("On login, print the authorization URL instead of opening a browser"),
		),
	)

	s.AddTool(authTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})

		action, _ := args["action"].(string)
		provider, _ := args["provider"].(string)
		noBrowser, _ := args["no_browser"].(bool)

		if provider != "" && !constant.IsProvider(provider) {
			return mcp.NewToolResultError(fmt.Sprintf("unknown provider %q", provider)), nil
		}

		switch action {
		case "status":
			md, errStatus := AuthStatusMarkdown(deps.Store, deps.Usage)
			if errStatus != nil {
				return mcp.NewToolResultError(errStatus.Error()), nil
			}
			return mcp.NewToolResultText(md), nil

		case "login":
			if provider == "" {
				return mcp.NewToolResultError("login requires a provider"), nil
			}
			token, errLogin := deps.Flow.LoginLocal(ctx, provider, noBrowser)
			if errLogin != nil {
				return mcp.NewToolResultError(fmt.Sprintf("login failed: %v", errLogin)), nil
			}
			who := token.Email
			if who == "" {
				who = "your Google account"
			}
			return mcp.NewToolResultText(fmt.Sprintf("Signed in to %s as %s.", provider, who)), nil

		case "logout":
			targets := []string{provider}
			if provider == "" {
				targets = constant.Providers
			}
			for _, name := range targets {
				if errDelete := deps.Store.DeleteProviderTokens(name); errDelete != nil {
					return mcp.NewToolResultError(fmt.Sprintf("logout %s: %v", name, errDelete)), nil
				}
			}
			return mcp.NewToolResultText(fmt.Sprintf("Signed out of %s.", strings.Join(targets, ", "))), nil

		case "set-default":
			if provider == "" {
				return mcp.NewToolResultError("set-default requires a provider"), nil
			}
			if errSet := deps.Store.SetDefaultProvider(provider); errSet != nil {
				return mcp.NewToolResultError(fmt.Sprintf("set default provider: %v", errSet)), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("Default provider set to %s.", provider)), nil

		default:
			return mcp.NewToolResultError(fmt.Sprintf("unknown action %q (expected status, login, logout or set-default)", action)), nil
		}
	})
}

func registerConfigTool(s *mcpserver.MCPServer, deps Deps) {
	configTool := mcp.NewTool("config",
		mcp.WithDescription("Read or change server settings: defaultProvider, defaultThinking, includeThoughts, timeout, verbose."),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("One of 'get', 'set', 'reset'"),
		),
		mcp.WithString("key",
			mcp.Description("Setting name, required for set"),
		),
		mcp.WithString("value",
			mcp.Description("New value, required for set"),
		),
	)

	s.AddTool(configTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})

		action, _ := args["action"].(string)
		key, _ := args["key"].(string)
		value, _ := args["value"].(string)

		switch action {
		case "get":
			return mcp.NewToolResultText(ConfigMarkdown(deps.Config.Load())), nil

		case "set":
			if key == "" || value == "" {
				return mcp.NewToolResultError("set requires key and value"), nil
			}
			updated, errUpdate := SetConfigKey(deps.Config, key, value)
			if errUpdate != nil {
				return mcp.NewToolResultError(errUpdate.Error()), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("Updated %s.\n\n%s", key, ConfigMarkdown(updated))), nil

		case "reset":
			reset, errReset := deps.Config.Update(func(cfg *config.Config) {
				*cfg = *config.DefaultConfig()
			})
			if errReset != nil {
				return mcp.NewToolResultError(fmt.Sprintf("reset config: %v", errReset)), nil
			}
			return mcp.NewToolResultText("Configuration reset to defaults.\n\n" + ConfigMarkdown(reset)), nil

		default:
			return mcp.NewToolResultError(fmt.Sprintf("unknown action %q (expected get, set or reset)", action)), nil
		}
	})
}

// SetConfigKey validates and applies one key/value pair to the stored config.
func SetConfigKey(store *config.Store, key, value string) (*config.Config, error) {
	apply := func(cfg *config.Config) error {
		switch key {
		case "defaultProvider":
			cfg.DefaultProvider = value
		case "defaultThinking":
			cfg.DefaultThinking = value
		case "includeThoughts":
			parsed, errParse := strconv.ParseBool(value)
			if errParse != nil {
				return fmt.Errorf("includeThoughts must be true or false, got %q", value)
			}
			cfg.IncludeThoughts = parsed
		case "timeout":
			parsed, errParse := strconv.Atoi(value)
			if errParse != nil {
				return fmt.Errorf("timeout must be an integer (milliseconds), got %q", value)
			}
			cfg.Timeout = parsed
		case "verbose":
			parsed, errParse := strconv.ParseBool(value)
			if errParse != nil {
				return fmt.Errorf("verbose must be true or false, got %q", value)
			}
			cfg.Verbose = parsed
		case "proxyUrl":
			cfg.ProxyURL = value
		default:
			return fmt.Errorf("unknown config key %q", key)
		}
		return nil
	}

	var applyErr error
	updated, errUpdate := store.Update(func(cfg *config.Config) {
		applyErr = apply(cfg)
	})
	if applyErr != nil {
		return nil, applyErr
	}
	if errUpdate != nil {
		return nil, errUpdate
	}
	return updated, nil
}

// ConfigMarkdown renders the active configuration as a markdown block.
func ConfigMarkdown(cfg *config.Config) string {
	var b strings.Builder
	b.WriteString("## Configuration\n\n")
	fmt.Fprintf(&b, "- **defaultProvider**: %s\n", cfg.DefaultProvider)
	fmt.Fprintf(&b, "- **defaultThinking**: %s\n", cfg.DefaultThinking)
	fmt.Fprintf(&b, "- **includeThoughts**: %t\n", cfg.IncludeThoughts)
	fmt.Fprintf(&b, "- **timeout**: %d ms\n", cfg.Timeout)
	fmt.Fprintf(&b, "- **verbose**: %t", cfg.Verbose)
	if cfg.ProxyURL != "" {
		fmt.Fprintf(&b, "\n- **proxyUrl**: %s", cfg.ProxyURL)
	}
	return b.String()
}

// AuthStatusMarkdown renders per-provider authentication state plus usage
// counters when a recorder is available.
func AuthStatusMarkdown(store *auth.FileTokenStore, recorder *usage.Recorder) (string, error) {
	tokens, errLoad := store.Load()
	if errLoad != nil {
		return "", fmt.Errorf("load tokens: %w", errLoad)
	}

	var stats map[string]usage.ProviderStats
	if recorder != nil {
		if loaded, errStats := recorder.Stats(); errStats == nil {
			stats = loaded
		}
	}

	var b strings.Builder
	b.WriteString("## Authentication Status\n")
	for _, name := range constant.Providers {
		fmt.Fprintf(&b, "\n### %s\n", name)

		var token *auth.ProviderToken
		defaultProvider := ""
		if tokens != nil {
			token = tokens.Provider(name)
			defaultProvider = tokens.DefaultProvider
		}
		if token == nil {
			b.WriteString("- Not authenticated\n")
			continue
		}

		if token.Email != "" {
			fmt.Fprintf(&b, "- Account: %s\n", token.Email)
		}
		expiry := time.UnixMilli(token.ExpiresAt).UTC()
		if auth.IsTokenExpired(token.ExpiresAt, time.Now()) {
			fmt.Fprintf(&b, "- Access token: expired (%s), will refresh on next search\n", expiry.Format(time.RFC3339))
		} else {
			fmt.Fprintf(&b, "- Access token: valid until %s\n", expiry.Format(time.RFC3339))
		}
		if name == defaultProvider {
			b.WriteString("- Default provider\n")
		}
		if s, ok := stats[name]; ok {
			fmt.Fprintf(&b, "- Usage: %d searches (%d as fallback), %d failures\n", s.Searches, s.Fallbacks, s.Failures)
		}
	}
	return b.String(), nil
}

func validThinking(level string) bool {
	switch level {
	case config.ThinkingHigh, config.ThinkingLow, config.ThinkingNone:
		return true
	}
	return false
}
