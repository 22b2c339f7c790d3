package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contract-optimizer/internal/config"
	"github.com/sells-group/contract-optimizer/internal/extraction"
	"github.com/sells-group/contract-optimizer/internal/model"
	"github.com/sells-group/contract-optimizer/internal/provider"
	"github.com/sells-group/contract-optimizer/internal/store"
	"github.com/sells-group/contract-optimizer/pkg/anthropic"
	"github.com/sells-group/contract-optimizer/pkg/gemini"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "contract-optimizer",
	Short: "Contract document extraction and optimization service",
	Long:  "Extracts structured data from contract PDFs via tiered LLM models, flags risky terms, and generates cost-saving recommendations.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore picks the backend from config. SQLite is the local development
// path; postgres is what serve runs against.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
	}
}

// buildAdapter constructs a provider adapter by family name.
func buildAdapter(ctx context.Context, family string) (provider.Adapter, error) {
	switch family {
	case "anthropic":
		client := anthropic.NewClient(cfg.Anthropic.Key)
		timeout := time.Duration(cfg.Anthropic.TimeoutSecs) * time.Second
		return provider.NewAnthropic(client, cfg.Anthropic.FastModel, cfg.Anthropic.StrongModel, timeout), nil
	case "gemini":
		client, err := gemini.NewClient(ctx, cfg.Gemini.Key)
		if err != nil {
			return nil, err
		}
		timeout := time.Duration(cfg.Gemini.TimeoutSecs) * time.Second
		return provider.NewGemini(client, cfg.Gemini.FastModel, cfg.Gemini.StrongModel, timeout), nil
	default:
		return nil, fmt.Errorf("unknown provider family %q", family)
	}
}

// buildExtractor wires the primary and optional alternate adapters into the
// escalation pipeline.
func buildExtractor(ctx context.Context) (*extraction.Extractor, provider.Adapter, provider.Adapter, error) {
	primary, err := buildAdapter(ctx, cfg.Extraction.PrimaryProvider)
	if err != nil {
		return nil, nil, nil, err
	}

	var alternate provider.Adapter
	if alt := cfg.Extraction.AlternateProvider; alt != "" && alt != cfg.Extraction.PrimaryProvider {
		alternate, err = buildAdapter(ctx, alt)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	complexTypes := make([]model.ContractType, 0, len(cfg.Extraction.ComplexContractTypes))
	for _, t := range cfg.Extraction.ComplexContractTypes {
		complexTypes = append(complexTypes, model.ContractType(strings.ToLower(t)))
	}

	extractor := extraction.New(primary, alternate, extraction.Config{
		Policy: extraction.Policy{
			ConfidenceThreshold: cfg.Extraction.ConfidenceEscalationThreshold,
			KeyTermsThreshold:   cfg.Extraction.KeyTermsEscalationThreshold,
			ComplexTypes:        complexTypes,
		},
		MaxDocuments: cfg.Extraction.MaxDocuments,
		ForceStrong:  cfg.Extraction.ForceStrong,
	})
	return extractor, primary, alternate, nil
}
