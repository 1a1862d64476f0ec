// cmd/fertismart/metadata.go
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	apperrors "fertismart/internal/common/errors"
)

func newMetadataCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Show crops, feature order and label mapping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			meta, err := a.provider.Get(ctx)
			if err != nil {
				if apperrors.IsCancelled(err) {
					return nil
				}
				msg := apperrors.UserMessage(err)
				if msg == "" {
					msg = "Failed to load crops"
				}
				return fmt.Errorf("%s", msg)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(meta)
			}

			fmt.Fprintf(out, "Crops:         %s\n", strings.Join(meta.Crops, ", "))
			fmt.Fprintf(out, "Feature order: %s\n", strings.Join(meta.FeatureOrder, ", "))
			fmt.Fprintln(out, "Labels:")
			classes := make([]int, 0, len(meta.LabelMapping))
			for class := range meta.LabelMapping {
				classes = append(classes, class)
			}
			sort.Ints(classes)
			for _, class := range classes {
				fmt.Fprintf(out, "  %3d  %s\n", class, meta.LabelMapping[class])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw metadata as JSON")
	return cmd
}
