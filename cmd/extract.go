package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contract-optimizer/internal/provider"
)

var extractOut string

var extractCmd = &cobra.Command{
	Use:   "extract <file.pdf> [file.pdf ...]",
	Short: "Extract structured contract data from PDF files",
	Long:  "Runs the extraction pipeline over one or more PDFs belonging to a single contract package and prints the result as JSON.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		extractor, _, _, err := buildExtractor(cmd.Context())
		if err != nil {
			return err
		}

		docs := make([]provider.Document, 0, len(args))
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return eris.Wrapf(err, "read %s", path)
			}
			docs = append(docs, provider.Document{
				Filename: filepath.Base(path),
				Data:     data,
			})
		}

		result, err := extractor.Extract(cmd.Context(), docs)
		if err != nil {
			return err
		}

		zap.L().Info("extraction complete",
			zap.Int("documents", len(docs)),
			zap.Float64("confidence", result.Confidence),
			zap.Bool("escalated", result.Escalated),
		)

		out := cmd.OutOrStdout()
		if extractOut != "" {
			f, err := os.Create(extractOut)
			if err != nil {
				return eris.Wrapf(err, "create %s", extractOut)
			}
			defer f.Close()
			out = f
		}

		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	extractCmd.Flags().StringVarP(&extractOut, "output", "o", "", "write result JSON to file instead of stdout")
	rootCmd.AddCommand(extractCmd)
}
