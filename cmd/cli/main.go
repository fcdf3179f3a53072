// Fleet CLI - water heater fleet operations tool.
//
// Usage:
//   fleet predict --type lifespan_estimation --features features.json
//   fleet seed --count 10
//   fleet version
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"heater-fleet/internal/device"
	"heater-fleet/internal/repository"
	"heater-fleet/pkg/platform"
	"heater-fleet/pkg/prediction"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	platform.LoadDotenv()

	app := &cli.App{
		Name:    "fleet",
		Usage:   "Water heater fleet management tool",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "model-config",
				Usage:   "Path to YAML model tuning overrides",
				EnvVars: []string{"MODEL_CONFIG"},
			},
		},

		Commands: []*cli.Command{
			predictCommand(),
			seedCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// PREDICT COMMAND
// =============================================================================

func predictCommand() *cli.Command {
	return &cli.Command{
		Name:  "predict",
		Usage: "Run a prediction model on a feature map from a JSON file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "type",
				Aliases:  []string{"t"},
				Usage:    "Prediction type (lifespan_estimation, anomaly_detection, usage_patterns, multi_factor, descaling_requirement)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "features",
				Aliases:  []string{"f"},
				Usage:    "Path to features JSON file",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "device",
				Aliases: []string{"d"},
				Value:   "cli-device",
				Usage:   "Device ID to stamp on the result",
			},
		},
		Action: runPredict,
	}
}

func runPredict(c *cli.Context) error {
	cfg, err := loadModelConfig(c.String("model-config"))
	if err != nil {
		return err
	}

	data, err := os.ReadFile(c.String("features"))
	if err != nil {
		return fmt.Errorf("failed to read features file: %w", err)
	}
	var features prediction.Features
	if err := json.Unmarshal(data, &features); err != nil {
		return fmt.Errorf("failed to parse features file: %w", err)
	}

	logger := platform.InitLogger("fleet-cli")
	svc := prediction.NewService(cfg, nil, nil, logger, nil)

	result := svc.Predict(c.String("device"), features, prediction.PredictionType(c.String("type")))
	if result == nil {
		return fmt.Errorf("unknown prediction type: %s", c.String("type"))
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func loadModelConfig(path string) (prediction.Config, error) {
	if path == "" {
		return prediction.DefaultConfig(), nil
	}
	cfg, err := prediction.LoadConfig(path)
	if err != nil {
		return prediction.Config{}, fmt.Errorf("failed to load model config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SEED COMMAND
// =============================================================================

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Write demo devices through the configured repository backend",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Value:   10,
				Usage:   "Number of devices to create",
			},
		},
		Action: runSeed,
	}
}

var seedModels = []string{"HydroMax 200", "HydroMax 300", "ThermoFlow 150", "AquaCore X1"}
var seedLocations = []string{"basement", "garage", "utility-room", "rooftop"}
var seedIntensities = []string{"light", "normal", "heavy"}

func runSeed(c *cli.Context) error {
	ctx := context.Background()
	logger := platform.InitLogger("fleet-cli")

	repo, err := repository.New(ctx, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	count := c.Int("count")
	for i := 0; i < count; i++ {
		ageYears := rng.Float64() * 12
		d := &device.Device{
			ID:                fmt.Sprintf("wh-seed-%03d", i+1),
			Name:              fmt.Sprintf("Demo Heater %03d", i+1),
			Model:             seedModels[rng.Intn(len(seedModels))],
			Location:          seedLocations[rng.Intn(len(seedLocations))],
			InstallationDate:  time.Now().AddDate(0, 0, -int(ageYears*365.25)),
			WaterHardnessPPM:  50 + rng.Float64()*250,
			TargetTemperature: 45 + rng.Float64()*20,
			UsageIntensity:    seedIntensities[rng.Intn(len(seedIntensities))],
			ComponentHealth: map[string]float64{
				"heating_element": 0.5 + rng.Float64()*0.5,
				"thermostat":      0.5 + rng.Float64()*0.5,
				"anode_rod":       0.3 + rng.Float64()*0.7,
				"pressure_valve":  0.5 + rng.Float64()*0.5,
				"tank_integrity":  0.5 + rng.Float64()*0.5,
			},
		}
		if err := repo.Create(ctx, d); err != nil {
			return fmt.Errorf("failed to create %s: %w", d.ID, err)
		}
		logger.Info().Str("device_id", d.ID).Str("model", d.Model).Msg("seeded device")
	}

	fmt.Printf("Seeded %d devices\n", count)
	return nil
}
