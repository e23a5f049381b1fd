package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loadgenie/loadgenie/internal/ai"
	"github.com/loadgenie/loadgenie/internal/config"
	"github.com/loadgenie/loadgenie/internal/script"
)

var (
	generateEnhanced bool
	generateOut      string
)

var validateCmd = &cobra.Command{
	Use:   "validate <script.js>",
	Short: "Score a k6 script against the quality rubric",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := readScript(args[0])
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}

		report := script.Validate(src)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
		if !report.IsValid {
			return fmt.Errorf("script is not valid: %d error(s)", len(report.Errors))
		}
		return nil
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate <description>",
	Short: "Generate a k6 script from a description",
	Example: `  loadgenie generate "Ramp up to 50 users against the checkout API"
  loadgenie generate --enhanced -o checkout.js "Soak test the search endpoint for an hour"`,
	Args: cobra.ExactArgs(1),
	RunE: generateScript,
}

func init() {
	rootCmd.AddCommand(validateCmd, generateCmd)

	generateCmd.Flags().BoolVar(&generateEnhanced, "enhanced", false, "validate, repair and enhance the generated script")
	generateCmd.Flags().StringVarP(&generateOut, "out", "o", "", "write the script to a file instead of stdout")
}

func generateScript(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	gen, err := newGenerator(ctx, cfg)
	if err != nil {
		return err
	}

	var src string
	if generateEnhanced {
		res, err := gen.GenerateEnhanced(ctx, args[0])
		if err != nil {
			return err
		}
		src = res.Script
		fmt.Fprintf(cmd.ErrOrStderr(), "quality: %d (%s), production ready: %t\n",
			res.Report.Score, res.Report.Rating, res.Report.ProductionReady())
	} else if src, err = gen.Generate(ctx, args[0]); err != nil {
		return err
	}

	if generateOut == "" {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), src)
		return err
	}
	return os.WriteFile(generateOut, []byte(src+"\n"), 0o644)
}

// newGenerator builds a generator without the storage and runner wiring.
func newGenerator(ctx context.Context, cfg *config.Config) (*ai.Generator, error) {
	client, err := ai.NewOpenAI(ctx, aiConfig(cfg), nil)
	if err != nil {
		return nil, fmt.Errorf("script generation needs AI_API_KEY: %w", err)
	}
	return ai.NewGenerator(client), nil
}
