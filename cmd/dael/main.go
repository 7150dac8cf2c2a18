// Command dael is the executable entrypoint: it can serve workflows and
// tools over MCP, or run one-off CLI operations against the same engine
// (validate a workflow file, test-run a workflow, inspect the tool and
// workflow registries, inspect configuration).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/ploston/dael"
	"github.com/ploston/dael/config"
	"github.com/ploston/dael/mcpserver"
	"github.com/ploston/dael/sandbox"
	"github.com/ploston/dael/tools"
)

func main() {
	cmd := &cli.Command{
		Name:  "dael",
		Usage: "deterministic agent execution layer: run workflows, front tools over MCP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to ploston-config.yaml"},
		},
		Commands: []*cli.Command{
			serveCommand(),
			toolsCommand(),
			workflowsCommand(),
			validateCommand(),
			configCommand(),
			testCommand(),
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		printErr(err)
		os.Exit(1)
	}
}

// app bundles everything a command needs: loaded config, registries, and
// the engine, built fresh for each invocation.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	wfReg    *dael.WorkflowRegistry
	toolsReg *tools.Registry
	invoker  *tools.Invoker
	engine   *dael.Engine
	backends []*tools.MCPBackend
}

func bootstrap(ctx context.Context, cmd *cli.Command) (*app, error) {
	cfg, err := config.Load(cmd.Root().String("config"))
	if err != nil {
		return nil, err
	}

	level := dael.ParseLevel(cfg.Logging.Level)
	var logger *slog.Logger
	if cfg.Logging.Format == "json" {
		logger = dael.NewJSONLogger(level)
	} else {
		logger = dael.NewLogger(level)
	}
	// Tag every log line for this process invocation with a correlation id,
	// so lines from concurrent `dael test`/`dael serve` runs in the same
	// log aggregator can be told apart.
	logger = logger.With("request_id", uuid.NewString())

	wfReg := dael.NewWorkflowRegistry(cfg.WorkflowsDir)
	if err := wfReg.Refresh(); err != nil {
		logger.Warn("workflow registry refresh had errors", "error", err)
	}

	var backends []*tools.MCPBackend
	for _, b := range cfg.MCPBackends {
		backend, err := tools.NewMCPBackend(ctx, b.ID, b.Command, b.Args, b.Env)
		if err != nil {
			logger.Error("failed to start MCP backend", "id", b.ID, "error", err)
			continue
		}
		backends = append(backends, backend)
	}

	// The registry's workflow-runner closure needs the Engine, and the
	// Engine's sandbox factory needs the Invoker, which needs the
	// registry — broken by having the closure capture engine through a
	// pointer that is filled in once the Engine is built.
	var engine *dael.Engine
	reg := tools.New(wfReg, backendSlice(backends), func(ctx context.Context, name string, params map[string]any) (any, error) {
		wfName := strings.TrimPrefix(name, "workflow:")
		result, err := engine.Execute(ctx, wfName, params)
		if err != nil {
			return nil, err
		}
		return result.Outputs, nil
	})
	invoker := tools.NewInvoker(reg)

	sandboxFor := func(wf *dael.Workflow) dael.CodeRunner {
		return sandbox.New(wf.Packages(), invoker)
	}

	systemTimeout := time.Duration(cfg.Execution.SystemTimeoutSecs * float64(time.Second))
	engine = dael.NewEngine(wfReg, invoker, sandboxFor, systemTimeout, int64(cfg.Execution.MaxConcurrent))
	tools.RegisterPythonExec(reg, sandbox.New(nil, invoker), func() *dael.ExecutionContext {
		return dael.NewExecutionContext(dael.NewExecutionID(), nil, nil)
	})
	if err := reg.Refresh(ctx); err != nil {
		logger.Warn("tool registry refresh had errors", "error", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		wfReg:    wfReg,
		toolsReg: reg,
		invoker:  invoker,
		engine:   engine,
		backends: backends,
	}, nil
}

func backendSlice(backends []*tools.MCPBackend) []tools.Backend {
	out := make([]tools.Backend, len(backends))
	for i, b := range backends {
		out[i] = b
	}
	return out
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve workflows and tools over MCP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Value: "running", Usage: "configuration or running"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := bootstrap(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeBackends(a.backends)

			mode := config.Mode(cmd.String("mode"))
			if mode == "" {
				mode = a.cfg.Mode
			}
			if mode == config.ModeConfiguration {
				store := config.NewStore(filepath.Join(filepath.Dir(a.cfg.WorkflowsDir), "ploston-config.yaml"), nil)
				tools.RegisterConfigTools(a.toolsReg, store)
				if err := a.toolsReg.Refresh(ctx); err != nil {
					a.logger.Warn("tool registry refresh had errors", "error", err)
				}
			}

			stop := make(chan struct{})
			defer close(stop)
			go a.wfReg.WatchAndRefresh(5*time.Second, stop, func(err error) {
				a.logger.Warn("workflow registry refresh failed", "error", err)
			})

			srv := mcpserver.New("dael", "0.1.0", a.toolsReg, a.invoker)
			if err := srv.Refresh(); err != nil {
				return err
			}
			a.logger.Info("serving over stdio", "mode", mode)
			return srv.ServeStdio(ctx)
		},
	}
}

func toolsCommand() *cli.Command {
	return &cli.Command{
		Name:  "tools",
		Usage: "inspect the tool registry",
		Commands: []*cli.Command{
			{
				Name: "list",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					a, err := bootstrap(ctx, cmd)
					if err != nil {
						return err
					}
					defer closeBackends(a.backends)
					for _, d := range a.toolsReg.List() {
						fmt.Printf("%-30s %-10s %s\n", d.Name, d.Source, d.Description)
					}
					return nil
				},
			},
			{
				Name: "show",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					a, err := bootstrap(ctx, cmd)
					if err != nil {
						return err
					}
					defer closeBackends(a.backends)
					name := cmd.Args().First()
					d, _, ok := a.toolsReg.Lookup(name)
					if !ok {
						return fmt.Errorf("no tool named %q", name)
					}
					return printJSON(d)
				},
			},
			{
				Name: "refresh",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					a, err := bootstrap(ctx, cmd)
					if err != nil {
						return err
					}
					defer closeBackends(a.backends)
					return a.toolsReg.Refresh(ctx)
				},
			},
		},
	}
}

func workflowsCommand() *cli.Command {
	return &cli.Command{
		Name:  "workflows",
		Usage: "inspect the workflow registry",
		Commands: []*cli.Command{
			{
				Name: "list",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					a, err := bootstrap(ctx, cmd)
					if err != nil {
						return err
					}
					defer closeBackends(a.backends)
					for _, wf := range a.wfReg.List() {
						fmt.Printf("%-30s v%-10s %s\n", wf.Name(), wf.Version(), wf.Description())
					}
					return nil
				},
			},
		},
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "validate a workflow YAML file",
		ArgsUsage: "<file>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("usage: dael validate <file>")
			}
			wf, err := dael.LoadFile(path)
			if err != nil {
				return err
			}
			color.Green("valid: %s v%s (%d steps)", wf.Name(), wf.Version(), len(wf.Steps()))
			return nil
		},
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "inspect resolved configuration",
		Commands: []*cli.Command{
			{
				Name: "show",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := config.Load(cmd.Root().String("config"))
					if err != nil {
						return err
					}
					return printJSON(cfg)
				},
			},
		},
	}
}

func testCommand() *cli.Command {
	return &cli.Command{
		Name:      "test",
		Usage:     "run a workflow once with the given inputs",
		ArgsUsage: "<workflow> [--input k=v ...]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "input", Usage: "input key=value, repeatable"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := bootstrap(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeBackends(a.backends)

			name := cmd.Args().First()
			if name == "" {
				return fmt.Errorf("usage: dael test <workflow> --input k=v")
			}
			inputs, err := parseInputs(cmd.StringSlice("input"))
			if err != nil {
				return err
			}

			result, err := a.engine.Execute(ctx, name, inputs)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

func parseInputs(pairs []string) (map[string]any, error) {
	inputs := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --input %q, expected key=value", pair)
		}
		key, raw := parts[0], parts[1]
		inputs[key] = parseScalar(raw)
	}
	return inputs, nil
}

func parseScalar(raw string) any {
	if raw == "true" || raw == "false" {
		return raw == "true"
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
		return parsed
	}
	return raw
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func printErr(err error) {
	if derr, ok := err.(*dael.Error); ok {
		b, _ := json.MarshalIndent(derr, "", "  ")
		fmt.Fprintln(os.Stderr, string(b))
		return
	}
	color.Red("error: %v", err)
}

func closeBackends(backends []*tools.MCPBackend) {
	for _, b := range backends {
		_ = b.Close()
	}
}
