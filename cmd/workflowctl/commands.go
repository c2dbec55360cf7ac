package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/orbitreg/compliance-workflow/internal/compliance"
	"github.com/orbitreg/compliance-workflow/internal/definition"
	"github.com/orbitreg/compliance-workflow/internal/domain/workflow"
	"github.com/orbitreg/compliance-workflow/pkg/utils"
)

type cli struct {
	v      *viper.Viper
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New(), logger: zap.NewNop()}

	root := &cobra.Command{
		Use:               "workflowctl",
		Short:             "Author and test workflow definitions",
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}
	root.PersistentFlags().String("log-level", "warn", "log level: debug, info, warn or error")
	root.PersistentFlags().Int("max-auto-transitions", workflow.DefaultMaxAutoTransitions, "auto-transition cap per evaluation")
	root.PersistentFlags().Bool("debug", false, "log every applied transition")

	simulate := &cobra.Command{
		Use:   "simulate <file|builtin-id>",
		Short: "Run a transition and the auto-evaluation loop in memory",
		Args:  cobra.ExactArgs(1),
		RunE:  c.simulate,
	}
	simulate.Flags().String("state", "", "current state (default: the initial state)")
	simulate.Flags().String("event", "", "event to fire before evaluating")
	simulate.Flags().String("data", "{}", "instance context as a JSON object")
	simulate.Flags().Bool("no-evaluate", false, "skip the auto-evaluation loop")

	root.AddCommand(
		&cobra.Command{
			Use:   "validate <file|builtin-id>...",
			Short: "Check definitions and report lint warnings",
			Args:  cobra.MinimumNArgs(1),
			RunE:  c.validate,
		},
		&cobra.Command{
			Use:   "graph <file|builtin-id>",
			Short: "Print the state graph in Graphviz DOT format",
			Args:  cobra.ExactArgs(1),
			RunE:  c.graph,
		},
		&cobra.Command{
			Use:   "describe <file|builtin-id>",
			Short: "Print a JSON summary of a definition",
			Args:  cobra.ExactArgs(1),
			RunE:  c.describe,
		},
		simulate,
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, args []string) error {
	c.v.SetEnvPrefix("WORKFLOWCTL")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()
	if err := c.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      c.v.GetString("log-level"),
		OutputPath: "stderr",
		Format:     "console",
	})
	if err != nil {
		return err
	}
	c.logger = logger
	return nil
}

// load reads a definition file, falling back to the built-in workflows
func (c *cli) load(arg string) (*workflow.Definition, error) {
	if _, err := os.Stat(arg); err == nil {
		return definition.NewLoader(definition.WithLoaderLogger(c.logger)).LoadFile(arg)
	}
	for _, def := range compliance.Definitions() {
		if def.ID == arg {
			return def, nil
		}
	}
	return nil, fmt.Errorf("%s: no such file or built-in workflow", arg)
}

func (c *cli) engine(def *workflow.Definition) (*workflow.Engine, error) {
	return workflow.NewEngine(def,
		workflow.WithMaxAutoTransitions(c.v.GetInt("max-auto-transitions")),
		workflow.WithDebug(c.v.GetBool("debug")),
		workflow.WithLogger(c.logger),
	)
}

func (c *cli) validate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	var errs []error
	for _, arg := range args {
		def, err := c.load(arg)
		if err == nil {
			_, err = c.engine(def)
		}
		if err != nil {
			fmt.Fprintf(out, "FAIL %s\n  %v\n", arg, err)
			errs = append(errs, err)
			continue
		}

		fmt.Fprintf(out, "ok   %s (%s, %d states)\n", arg, def.ID, len(def.States))
		for _, warning := range workflow.Lint(def) {
			fmt.Fprintf(out, "  warning: %s\n", warning)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d definitions invalid", len(errs), len(args))
	}
	return nil
}

func (c *cli) graph(cmd *cobra.Command, args []string) error {
	def, err := c.load(args[0])
	if err != nil {
		return err
	}
	_, err = io.WriteString(cmd.OutOrStdout(), definition.Graph(def))
	return err
}

func (c *cli) describe(cmd *cobra.Command, args []string) error {
	def, err := c.load(args[0])
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), definition.Describe(def))
}

// simulation is the JSON report of the simulate command
type simulation struct {
	Transition *workflow.TransitionResult     `json:"transition,omitempty"`
	Evaluation *workflow.EvaluationResult     `json:"evaluation,omitempty"`
	FinalState workflow.State                 `json:"final_state"`
	Terminal   bool                           `json:"terminal"`
	Available  []workflow.AvailableTransition `json:"available"`
	Context    workflow.Context               `json:"context"`
}

func (c *cli) simulate(cmd *cobra.Command, args []string) error {
	def, err := c.load(args[0])
	if err != nil {
		return err
	}
	engine, err := c.engine(def)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	rawData, _ := flags.GetString("data")
	data := workflow.Context{}
	if err := json.Unmarshal([]byte(rawData), &data); err != nil {
		return fmt.Errorf("invalid --data: %w", err)
	}

	stateName, _ := flags.GetString("state")
	state := engine.InitialState()
	if stateName != "" {
		state = workflow.State(stateName)
	}

	ctx := context.Background()
	report := simulation{}

	if evt, _ := flags.GetString("event"); evt != "" {
		res := engine.ExecuteTransition(ctx, state, workflow.Event(evt), data)
		report.Transition = &res
		state = res.CurrentState
	}

	noEval, _ := flags.GetBool("no-evaluate")
	if !noEval && (report.Transition == nil || report.Transition.Success) {
		eval := engine.EvaluateTransitions(ctx, state, data)
		report.Evaluation = &eval
		state = eval.FinalState
	}

	report.FinalState = state
	report.Terminal = engine.IsTerminalState(state)
	report.Available = engine.GetAvailableTransitions(state, data)
	report.Context = data

	if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if report.Transition != nil && !report.Transition.Success {
		return errors.New(report.Transition.Error)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
