// cmd/fertismart/predict.go
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fertismart/internal/fertilizer"
	"fertismart/internal/models"
)

var errSubmissionFailed = errors.New("prediction failed")

func newPredictCmd(a *app) *cobra.Command {
	form := make(map[string]*string, len(models.FormFields))
	var strict bool

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Recommend a fertilizer for the given readings",
		Example: `  fertismart predict --nitrogen 40 --phosphorus 30 --potassium 20 \
    --temperature 26 --humidity 60 --ph 6.5 --rainfall 120 --moisture 35 --crop Maize`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			raw := make(map[string]string, len(form))
			for field, value := range form {
				raw[field] = *value
			}

			session := fertilizer.NewSession(
				a.provider,
				a.client,
				fertilizer.NewTracker(),
				consoleNotifier{w: cmd.ErrOrStderr()},
				a.log,
				fertilizer.WithStrictCropCheck(strict || a.cfg.Inference.StrictCrops),
			)
			defer session.Close()

			// Crop options are only needed for labels and strict checking;
			// a failure here does not block the prediction.
			if _, err := session.LoadMetadata(ctx); err != nil {
				a.log.Debug("continuing without metadata", map[string]interface{}{"error": err.Error()})
			}

			st := session.Submit(ctx, raw)
			out := cmd.OutOrStdout()

			switch st.Phase {
			case fertilizer.PhaseSuccess:
				fmt.Fprintf(out, "Recommended fertilizer: %s\n", st.Response.Fertilizer)
				fmt.Fprintf(out, "Predicted class:        %d", st.Response.PredictedClass)
				if label, ok := session.Label(ctx, st.Response.PredictedClass); ok && label != st.Response.Fertilizer {
					fmt.Fprintf(out, " (%s)", label)
				}
				fmt.Fprintln(out)
				return nil
			case fertilizer.PhaseFailed:
				return fmt.Errorf("%w: %s", errSubmissionFailed, st.Message)
			case fertilizer.PhaseLoading:
				fmt.Fprintln(cmd.ErrOrStderr(), "prediction cancelled")
				return nil
			default:
				// rejected before any request; the notifier already said why
				return errSubmissionFailed
			}
		},
	}

	usage := map[string]string{
		models.FieldNitrogen:    "Nitrogen (N) content",
		models.FieldPhosphorus:  "Phosphorus (P) content",
		models.FieldPotassium:   "Potassium (K) content",
		models.FieldTemperature: "Temperature in °C",
		models.FieldHumidity:    "Relative humidity in %",
		models.FieldPH:          "Soil pH",
		models.FieldRainfall:    "Rainfall in mm",
		models.FieldMoisture:    "Soil moisture in %",
		models.FieldCrop:        "Crop name as listed by `fertismart metadata`",
	}
	for _, field := range models.FormFields {
		form[field] = cmd.Flags().String(field, "", usage[field])
	}
	cmd.Flags().BoolVar(&strict, "strict-crops", false, "Reject crops the service does not list")

	return cmd
}
