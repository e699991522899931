// Command tune searches sampler and objective hyperparameters with CMA-ES.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/seisinv/config"
)

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

// tuneRow is one line of tune_log.csv.
type tuneRow struct {
	Eval             int     `csv:"eval"`
	Fitness          float64 `csv:"fitness"`
	Accepted         float64 `csv:"accepted"`
	LearningRate     float64 `csv:"learning_rate"`
	FinalLR          float64 `csv:"final_learning_rate"`
	WeightDecay      float64 `csv:"weight_decay"`
	Friction         float64 `csv:"friction"`
	LambdaPerceptual float64 `csv:"lambda_perceptual"`
	LambdaWell       float64 `csv:"lambda_well"`
}

func newTuneRow(eval int, fitness, accepted float64, cfg *config.Config) tuneRow {
	return tuneRow{
		Eval:             eval,
		Fitness:          fitness,
		Accepted:         accepted,
		LearningRate:     cfg.Sampler.LearningRate,
		FinalLR:          cfg.Sampler.FinalLearningRate,
		WeightDecay:      cfg.Sampler.WeightDecay,
		Friction:         cfg.Sampler.Friction,
		LambdaPerceptual: cfg.Objective.LambdaPerceptual,
		LambdaWell:       cfg.Objective.LambdaWell,
	}
}

var (
	configPath string
	seeds      int
	maxEvals   int
	population int
	outputDir  string
)

var rootCmd = &cobra.Command{
	Use:          "tune",
	Short:        "CMA-ES search over sampler hyperparameters",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&configPath, "config", "", "Base config YAML file (empty = use defaults)")
	f.IntVar(&seeds, "seeds", 3, "Number of seeds per evaluation")
	f.IntVar(&maxEvals, "max-evals", 200, "Maximum number of evaluations")
	f.IntVar(&population, "population", 0, "CMA-ES population size (0 = auto)")
	f.StringVar(&outputDir, "output", "", "Output directory for results")
	_ = rootCmd.MarkFlagRequired("output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	baseCfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := baseCfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	params := NewParamVector()

	evalSeeds := make([]int64, seeds)
	for i := range evalSeeds {
		evalSeeds[i] = int64(i*1000 + 42)
	}
	evaluator := NewFitnessEvaluator(params, evalSeeds, baseCfg, logger)

	dim := params.Dim()
	initX := params.Normalize(params.ExtractFromConfig(baseCfg))

	popSize := population
	if popSize == 0 {
		popSize = 4 + int(3.0*float64(dim)/2.0)
	}
	method := &optimize.CmaEsChol{
		InitStepSize: 0.3,
		Population:   popSize,
	}
	settings := &optimize.Settings{
		FuncEvaluations: maxEvals,
		Concurrent:      0, // seeds already run in parallel
	}

	logPath := filepath.Join(outputDir, "tune_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("creating tune log: %w", err)
	}
	defer logFile.Close()

	evalCount := 0
	bestFitness := math.Inf(1)
	var bestParams []float64
	startTime := time.Now()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			raw := params.Clamp(params.Denormalize(x))
			fitness := evaluator.Evaluate(raw)
			evalCount++

			if fitness < bestFitness {
				bestFitness = fitness
				bestParams = raw
			}

			applied := *baseCfg
			params.ApplyToConfig(&applied, raw)
			rows := []tuneRow{newTuneRow(evalCount, fitness, evaluator.LastAccepted(), &applied)}
			write := gocsv.MarshalWithoutHeaders
			if evalCount == 1 {
				write = gocsv.Marshal
			}
			if err := write(rows, logFile); err != nil {
				logger.Error("failed to write tune log", "error", err)
			}

			elapsed := time.Since(startTime)
			remaining := time.Duration(maxEvals-evalCount) * (elapsed / time.Duration(evalCount))
			fmt.Printf("Eval %d/%d: fitness=%.4f accepted=%.0f%% (best=%.4f) | elapsed: %s, ETA: %s\n",
				evalCount, maxEvals, fitness, 100*evaluator.LastAccepted(), bestFitness,
				formatDuration(elapsed), formatDuration(remaining))

			return fitness
		},
	}

	fmt.Printf("Starting CMA-ES search with %d parameters, population=%d, max_evals=%d, seeds=%d\n",
		dim, popSize, maxEvals, seeds)

	result, err := optimize.Minimize(problem, initX, settings, method)
	if err != nil {
		logger.Warn("optimization ended", "error", err)
	}
	if bestParams == nil {
		if result == nil {
			return errors.New("no evaluations completed")
		}
		bestParams = params.Clamp(params.Denormalize(result.X))
	}

	fmt.Printf("\nSearch complete after %d evaluations in %s\n", evalCount, formatDuration(time.Since(startTime)))
	fmt.Printf("Best fitness: %.4f\n", bestFitness)
	fmt.Println("\nBest parameters:")
	for i, spec := range params.Specs {
		fmt.Printf("  %s (%s): %.6g\n", spec.Name, spec.Path, bestParams[i])
	}

	bestCfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	params.ApplyToConfig(bestCfg, bestParams)
	configOutPath := filepath.Join(outputDir, "best_config.yaml")
	if err := bestCfg.WriteYAML(configOutPath); err != nil {
		return err
	}
	fmt.Printf("\nBest config saved to: %s\n", configOutPath)

	// The hall of fame doubles as a warm start for seisinv invert.
	if hof := evaluator.BestHallOfFame(); hof != nil && hof.Size() > 0 {
		hofPath := filepath.Join(outputDir, "hall_of_fame.json")
		data, err := hof.MarshalJSON()
		if err != nil {
			return fmt.Errorf("marshaling hall of fame: %w", err)
		}
		if err := os.WriteFile(hofPath, data, 0644); err != nil {
			return fmt.Errorf("writing hall of fame: %w", err)
		}
		fmt.Printf("Hall of fame saved to: %s\n", hofPath)
	}
	return nil
}
