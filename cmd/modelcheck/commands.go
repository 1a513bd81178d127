package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"krishimitra/config"
	"krishimitra/ml"
	"krishimitra/predict"
)

var errUnhealthy = errors.New("one or more models are unhealthy")

type options struct {
	configPath string
	modelsDir  string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "modelcheck",
		Short:         "Inspect krishimitra model artifacts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "config file")
	root.PersistentFlags().StringVar(&opts.modelsDir, "models-dir", "", "override models.dir from the config")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log load attempts")

	root.AddCommand(newCheckCmd(opts), newPredictCmd(opts))
	return root
}

// guard builds a model guard from the config the same way the server does.
func (o *options) guard() (*ml.Guard, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.modelsDir != "" {
		cfg.Models.Dir = o.modelsDir
	}

	logger := zap.NewNop()
	if o.verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			return nil, err
		}
	}

	store := ml.NewStore(cfg.Models.Dir, []ml.Spec{
		predict.CropSpec(cfg.Models.Crop.Classifier),
		predict.SoilSpec(cfg.Models.Soil.Health, cfg.Models.Soil.Issues, cfg.Models.Soil.Scaler),
	}, logger)
	return ml.NewGuard(store, logger), nil
}

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load every model and report its health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			guard, err := opts.guard()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MODEL\tSTATUS\tDETAIL")
			failed := false
			for _, id := range guard.Store().IDs() {
				_ = guard.Reload(ctx, id)
				h := guard.Health(ctx, id)
				if h.Status != "healthy" {
					failed = true
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", id, h.Status, h.Error)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if failed {
				return errUnhealthy
			}
			return nil
		},
	}
}

func newPredictCmd(opts *options) *cobra.Command {
	var (
		input    string
		detailed bool
	)
	cmd := &cobra.Command{
		Use:   "predict <model>",
		Short: "Run one prediction from a JSON object of named features",
		Long: `Run one prediction from a JSON object of named features.

The model is crop_recommendation or soil_health. The input is read from
--input, or from stdin when --input is "-".`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{predict.CropModelID, predict.SoilModelID},
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readFeatures(cmd.InOrStdin(), input)
			if err != nil {
				return err
			}
			guard, err := opts.guard()
			if err != nil {
				return err
			}

			var out any
			switch args[0] {
			case predict.CropModelID:
				out, err = predict.NewCropService(guard, nil, nil).Predict(cmd.Context(), raw)
			case predict.SoilModelID:
				out, err = predict.NewSoilService(guard, nil, nil).Predict(cmd.Context(), raw, detailed)
			default:
				return fmt.Errorf("unknown model %q", args[0])
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "JSON features file, or - for stdin")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "report soil issue probabilities")
	return cmd
}

func readFeatures(stdin io.Reader, path string) (map[string]float64, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}
	return raw, nil
}
