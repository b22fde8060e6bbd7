// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command maestro runs autonomous engineering sessions from a seed.
//
// Usage:
//
//	maestro run seed.yaml --config config.yaml
//	maestro validate seed.yaml --config config.yaml
//	maestro version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/maestro/pkg/ac"
	"github.com/kadirpekel/maestro/pkg/agentpool"
	"github.com/kadirpekel/maestro/pkg/checkpoint"
	"github.com/kadirpekel/maestro/pkg/config"
	"github.com/kadirpekel/maestro/pkg/event"
	"github.com/kadirpekel/maestro/pkg/llm"
	"github.com/kadirpekel/maestro/pkg/logger"
	"github.com/kadirpekel/maestro/pkg/orchestrator"
	"github.com/kadirpekel/maestro/pkg/routing"
	"github.com/kadirpekel/maestro/pkg/security"
	"github.com/kadirpekel/maestro/pkg/seed"
	"github.com/kadirpekel/maestro/pkg/session"
	"github.com/kadirpekel/maestro/pkg/tokens"
	"github.com/kadirpekel/maestro/pkg/tools"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Run      RunCmd      `cmd:"" help:"Execute a seed to completion."`
	Validate ValidateCmd `cmd:"" help:"Validate a seed and configuration without running."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (text or json)." default:"text"`
	EnvFile   string `help:"Env file loaded before anything else." type:"path"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("maestro version %s\n", version)
	return nil
}

// RunCmd executes one seed end to end.
type RunCmd struct {
	Seed string `arg:"" help:"Path to the seed file (yaml or json)." type:"path"`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}
	s, err := loadSeed(c.Seed)
	if err != nil {
		return err
	}

	core, err := buildCore(cfg)
	if err != nil {
		return err
	}
	defer core.close()

	slog.Info("Starting run",
		"seed_id", s.ID(),
		"goal", s.Goal(),
		"criteria", len(s.AcceptanceCriteria()))

	result, err := core.runner.Run(ctx, s)
	if err != nil {
		return err
	}

	fmt.Printf("\nsession:  %s\n", result.SessionID)
	fmt.Printf("status:   %s\n", map[bool]string{true: "completed", false: "failed"}[result.Success])
	fmt.Printf("messages: %d\n", result.MessagesProcessed)
	fmt.Printf("duration: %.1fs\n", result.DurationSeconds)
	fmt.Printf("summary:  %s\n", result.Summary)
	if result.FinalMessage != "" {
		fmt.Printf("\n%s\n", result.FinalMessage)
	}

	if !result.Success {
		return fmt.Errorf("run did not complete: %s", result.Summary)
	}
	return nil
}

// ValidateCmd checks a seed and the configuration without executing.
type ValidateCmd struct {
	Seed string `arg:"" optional:"" help:"Path to the seed file (yaml or json)." type:"path"`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	fmt.Println("config: ok")

	if c.Seed != "" {
		s, err := loadSeed(c.Seed)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		fmt.Printf("seed:   ok (%s, %d acceptance criteria)\n", s.ID(), len(s.AcceptanceCriteria()))
	}

	catalog, err := routing.NewCatalog(&cfg.Tiers)
	if err != nil {
		return fmt.Errorf("tier catalog: %w", err)
	}
	if errs := catalog.ValidateConfiguration(); len(errs) > 0 {
		return fmt.Errorf("tier catalog: %v", errs[0])
	}
	fmt.Println("tiers:  ok")
	return nil
}

// loadConfig reads and decodes the config file. ${VAR} references are
// expanded from the environment before parsing, so secrets can stay out of
// the file. No path means defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg, err := config.Decode(raw)
	if err != nil {
		return nil, err
	}
	slog.Info("Loaded configuration", "path", path)
	return cfg, nil
}

func loadSeed(path string) (*seed.Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return seed.ParseJSON(data)
	}
	return seed.ParseYAML(data)
}

// core holds everything the runner needs, plus what must be torn down
// afterwards.
type core struct {
	runner    *orchestrator.Runner
	pool      *agentpool.Pool
	events    event.Store
	providers []llm.Provider
}

func (c *core) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.pool.Stop(ctx); err != nil {
		slog.Warn("Pool shutdown incomplete", "error", err)
	}
	for _, p := range c.providers {
		if err := p.Close(); err != nil {
			slog.Warn("Provider close failed", "provider", p.Name(), "error", err)
		}
	}
	if err := c.events.Close(); err != nil {
		slog.Warn("Event store close failed", "error", err)
	}
}

// buildCore wires the full service graph from configuration.
func buildCore(cfg *config.Config) (*core, error) {
	events, err := newEventStore(cfg)
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewRepository(events)
	if err != nil {
		return nil, err
	}
	controller, err := routing.NewController(&cfg.Routing, events)
	if err != nil {
		return nil, err
	}
	catalog, err := routing.NewCatalog(&cfg.Tiers)
	if err != nil {
		return nil, err
	}

	registry, providers, err := newProviders(cfg, catalog)
	if err != nil {
		return nil, err
	}

	toolRegistry := newToolRegistry(cfg)
	gate, err := security.NewGate(&cfg.Security)
	if err != nil {
		return nil, err
	}

	worker := &orchestrator.Worker{
		Controller: controller,
		Catalog:    catalog,
		Providers:  registry,
		Tools:      toolRegistry,
		Gate:       gate,
		Events:     events,
		Credential: workerCredential(cfg),
	}

	pool, err := agentpool.New(&cfg.Pool, worker)
	if err != nil {
		return nil, err
	}
	if err := pool.Start(); err != nil {
		return nil, err
	}

	checkProvider, checkModel, err := tierClient(catalog, registry, routing.TierFrugal)
	if err != nil {
		return nil, err
	}
	decomposeProvider, decomposeModel, err := tierClient(catalog, registry, routing.TierFrontier)
	if err != nil {
		return nil, err
	}
	compressProvider, compressModel, err := tierClient(catalog, registry, routing.TierStandard)
	if err != nil {
		return nil, err
	}

	criteria := ac.Criteria{
		MaxComplexity:      cfg.Atomicity.MaxComplexity,
		MaxToolCount:       cfg.Atomicity.MaxToolCount,
		MaxDurationSeconds: float64(cfg.Atomicity.MaxDurationSeconds),
	}
	checker := ac.NewChecker(checkProvider, checkModel, criteria)
	decomposer, err := ac.NewDecomposer(decomposeProvider, decomposeModel, events, 0)
	if err != nil {
		return nil, err
	}

	counter, err := tokens.NewCounter("gpt-4o")
	if err != nil {
		slog.Warn("Token counter unavailable, using estimates", "error", err)
		counter = nil
	}

	checkpoints, err := checkpoint.NewStore(&cfg.Checkpoint)
	if err != nil {
		return nil, err
	}

	return &core{
		runner: &orchestrator.Runner{
			Sessions:      sessions,
			Events:        events,
			Tools:         toolRegistry,
			Pool:          pool,
			Checker:       checker,
			Decomposer:    decomposer,
			Worker:        worker,
			Compressor:    compressProvider,
			CompressModel: compressModel,
			Counter:       counter,
			Checkpoints:   checkpoints,
			Bounds:        orchestrator.BoundsFromConfig(cfg.Context),
		},
		pool:      pool,
		events:    events,
		providers: providers,
	}, nil
}

func newEventStore(cfg *config.Config) (event.Store, error) {
	if cfg.Events.Backend == "sql" {
		store, err := event.NewSQLStoreFromConfig(&cfg.Events)
		if err != nil {
			return nil, err
		}
		slog.Info("Using sql event store", "driver", cfg.Events.Driver)
		return store, nil
	}
	slog.Info("Using in-memory event store; this run will not be persisted")
	return event.NewMemoryStore(), nil
}

// newProviders builds one provider per distinct name referenced by the tier
// catalog. API keys come from config or from <NAME>_API_KEY in the
// environment.
func newProviders(cfg *config.Config, catalog *routing.Catalog) (*llm.Registry, []llm.Provider, error) {
	registry := llm.NewRegistry()
	var providers []llm.Provider

	seen := map[string]bool{}
	for _, tier := range []routing.Tier{routing.TierFrugal, routing.TierStandard, routing.TierFrontier} {
		entry, err := catalog.TierConfig(tier)
		if err != nil {
			return nil, nil, err
		}
		for _, ref := range entry.Models {
			if seen[ref.Provider] {
				continue
			}
			seen[ref.Provider] = true

			pc := cfg.Providers[ref.Provider]
			if pc.APIKey == "" {
				pc.APIKey = os.Getenv(strings.ToUpper(ref.Provider) + "_API_KEY")
			}
			pc.SetDefaults()

			provider, err := llm.NewOpenAIProvider(llm.OpenAIConfig{
				APIKey:       pc.APIKey,
				BaseURL:      pc.BaseURL,
				ProviderName: ref.Provider,
				Timeout:      time.Duration(pc.TimeoutSeconds) * time.Second,
			})
			if err != nil {
				return nil, nil, fmt.Errorf("provider %s: %w", ref.Provider, err)
			}
			if err := registry.RegisterProvider(ref.Provider, provider); err != nil {
				return nil, nil, err
			}
			providers = append(providers, provider)
		}
	}
	return registry, providers, nil
}

func newToolRegistry(cfg *config.Config) *tools.Registry {
	var builtins []tools.Tool
	if cfg.Tools.Workdir != "" {
		builtins = tools.Builtins(cfg.Tools.Workdir)
	}

	var sources []tools.Source
	for _, mc := range cfg.Tools.MCPServers {
		server, err := tools.NewMCPServer(tools.MCPServerConfig{
			Name:      mc.Name,
			Transport: mc.Transport,
			Command:   mc.Command,
			Args:      mc.Args,
			Env:       mc.Env,
			URL:       mc.URL,
			Prefix:    mc.Prefix,
		})
		if err != nil {
			slog.Warn("Skipping mcp server", "name", mc.Name, "error", err)
			continue
		}
		sources = append(sources, server)
	}
	return tools.NewRegistry(builtins, sources...)
}

// workerCredential picks what the worker presents to the security gate.
func workerCredential(cfg *config.Config) string {
	if cred := os.Getenv("MAESTRO_CREDENTIAL"); cred != "" {
		return cred
	}
	if cfg.Security.AuthMethod == config.AuthBearerToken && cfg.Security.SharedSecret != "" {
		return security.SignBearerToken(cfg.Security.SharedSecret, "worker", time.Now())
	}
	return ""
}

// tierClient resolves one (provider, model) pair for a tier.
func tierClient(catalog *routing.Catalog, registry *llm.Registry, tier routing.Tier) (llm.Provider, llm.RequestConfig, error) {
	ref, err := catalog.ModelForTier(tier)
	if err != nil {
		return nil, llm.RequestConfig{}, err
	}
	provider, err := registry.ProviderFor(ref.Provider)
	if err != nil {
		return nil, llm.RequestConfig{}, err
	}
	return provider, llm.RequestConfig{Model: ref.Model}, nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("maestro"),
		kong.Description("maestro - autonomous engineering orchestrator"),
		kong.UsageOnError(),
	)

	if cli.EnvFile != "" {
		if err := godotenv.Load(cli.EnvFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", err)
			os.Exit(1)
		}
	} else {
		_ = godotenv.Load()
	}

	logger.Setup(cli.LogLevel, logger.Format(cli.LogFormat))

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
