package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"godeplete/internal/chain"
	"godeplete/internal/comm"
	"godeplete/internal/config"
	"godeplete/internal/geometry"
	"godeplete/internal/history"
	"godeplete/internal/operator"
)

var (
	verbose    bool
	configPath string
	steps      int

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "godeplete",
	Short: "Couple a nuclide-depletion solver to an external neutron-transport simulator",
	Long: `godeplete drives the transport side of a depletion calculation: it
decomposes the material set across a rank group, renders the
simulator's input documents from the current nuclide densities, runs
the simulator, and pulls back power-normalized reaction rates.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run [geometry.json]",
	Short: "Run coupled transport steps over a local rank group",
	Args:  cobra.ExactArgs(1),
	RunE:  runSteps,
}

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Summarize the configured depletion chain",
	RunE:  showChain,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded coupling steps",
	RunE:  showHistory,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the settings file")
	runCmd.Flags().IntVar(&steps, "steps", 1, "number of coupled steps to run")
	rootCmd.AddCommand(runCmd, chainCmd, historyCmd)
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("a settings file is required (--config)")
	}
	return config.Load(configPath)
}

func runSteps(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	geom, err := geometry.Load(args[0])
	if err != nil {
		return err
	}

	var hist *history.Store
	if cfg.Paths.History != "" {
		hist, err = history.Open(cfg.Paths.History)
		if err != nil {
			return err
		}
		defer hist.Close()
	}

	comms, err := comm.NewLocalGroup(cfg.Depletion.Ranks)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	for _, c := range comms {
		c := c
		g.Go(func() error {
			opts := operator.Options{Log: logger}
			if c.Rank() == 0 {
				opts.History = hist
			}
			op, err := operator.New(c, geom, cfg, opts)
			if err != nil {
				return fmt.Errorf("rank %d: %w", c.Rank(), err)
			}
			vecs := op.InitialCondition()
			for s := 0; s < steps; s++ {
				res, err := op.Eval(ctx, vecs)
				if err != nil {
					return fmt.Errorf("rank %d step %d: %w", c.Rank(), s, err)
				}
				if c.Rank() == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "step %d: k=%.6f seed=%d scale=%.6g\n",
						s, res.K, res.Seed, res.Scale)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func showChain(cmd *cobra.Command, args []string) error {
	var chainPath string
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		chainPath = cfg.Paths.Chain
	}
	ch, err := chain.Load(chainPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "nuclides: %d\nreactions: %v\n", len(ch.Nuclides), ch.Reactions)
	for _, n := range ch.Nuclides {
		if n.FissionEnergy > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "  %-8s fission energy %.4g MeV\n", n.Name, n.FissionEnergy)
		}
	}
	return nil
}

func showHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Paths.History == "" {
		return fmt.Errorf("no history ledger configured")
	}
	store, err := history.Open(cfg.Paths.History)
	if err != nil {
		return err
	}
	defer store.Close()

	rows, err := store.Steps(cmd.Context())
	if err != nil {
		return err
	}
	for _, st := range rows {
		fmt.Fprintf(cmd.OutOrStdout(), "step %d  run=%s  k=%.6f  seed=%d  power=%.6g  scale=%.6g\n",
			st.Step, st.RunID, st.K, st.Seed, st.MeasuredPower, st.Scale)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
