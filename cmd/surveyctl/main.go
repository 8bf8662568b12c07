package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	config "market-insights-api/configs"
	"market-insights-api/pkg/services"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// CLI コマンド間で共有する状態
type CLI struct {
	policyFile string
	pvalueMode string
	verbose    bool

	out      io.Writer
	logger   *zap.Logger
	analysis *services.AnalysisService
	loader   *services.DatasetLoader
}

func main() {
	_ = godotenv.Load()

	cli := &CLI{out: os.Stdout}
	if err := newRootCommand(cli).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "エラー:", err)
		os.Exit(1)
	}
}

// initialize ポリシーを読み込み分析サービスを生成する
func (c *CLI) initialize() error {
	level := "warn"
	if c.verbose {
		level = "debug"
	}
	logger, err := config.NewLogger("development", level)
	if err != nil {
		return err
	}
	c.logger = logger

	cfg := &config.Config{PolicyFile: c.policyFile, PValueMode: c.pvalueMode}
	policy, err := cfg.AnalysisPolicy()
	if err != nil {
		return err
	}
	analysis, err := services.NewAnalysisService(policy, 1, nil, logger)
	if err != nil {
		return err
	}
	c.analysis = analysis
	c.loader = services.NewDatasetLoader(logger)
	return nil
}

// printJSON 結果をインデント付きJSONで出力
func (c *CLI) printJSON(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withFile --fileで指定されたファイルを開いてfnに渡す
func withFile(path string, fn func(name string, r io.Reader) error) error {
	if path == "" {
		return fmt.Errorf("--file を指定してください")
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("ファイルを開けません: %w", err)
	}
	defer f.Close()
	return fn(path, f)
}

func newRootCommand(cli *CLI) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "surveyctl",
		Short: "調査データの市場分析ツール",
		Long: `surveyctl は調査回答ファイルに対してセグメント検出・価格感度・MaxDiff・Kano分析を実行し、
結果をJSONで出力します。

Examples:
  surveyctl patterns --file responses.csv
  surveyctl pricing --file pricing.xlsx
  surveyctl study --file study.json --pvalue-mode exact
  surveyctl design --features price,design,support,warranty --respondent 3`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cli.initialize()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cli.policyFile, "policy", os.Getenv("ANALYSIS_POLICY_FILE"), "分析ポリシーのYAMLファイル")
	rootCmd.PersistentFlags().StringVar(&cli.pvalueMode, "pvalue-mode", os.Getenv("PVALUE_MODE"), "p値の算出方式 (approximate|exact)")
	rootCmd.PersistentFlags().BoolVarP(&cli.verbose, "verbose", "v", false, "詳細ログを出力")

	rootCmd.AddCommand(newPatternsCommand(cli))
	rootCmd.AddCommand(newPricingCommand(cli))
	rootCmd.AddCommand(newMaxDiffCommand(cli))
	rootCmd.AddCommand(newKanoCommand(cli))
	rootCmd.AddCommand(newStudyCommand(cli))
	rootCmd.AddCommand(newDesignCommand(cli))

	return rootCmd
}

func newPatternsCommand(cli *CLI) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "回答データから有意なセグメントを検出",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFile(file, func(name string, r io.Reader) error {
				responses, err := cli.loader.LoadResponses(name, r)
				if err != nil {
					return err
				}
				report, err := cli.analysis.DetectPatterns(responses)
				if err != nil {
					return err
				}
				return cli.printJSON(report)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "回答ファイル (.csv/.xlsx/.json)")
	return cmd
}

func newPricingCommand(cli *CLI) *cobra.Command {
	var (
		file     string
		validate bool
	)
	cmd := &cobra.Command{
		Use:   "pricing",
		Short: "Van Westendorp価格感度分析",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFile(file, func(name string, r io.Reader) error {
				input, err := cli.loader.LoadPricing(name, r)
				if err != nil {
					return err
				}
				if validate {
					return cli.printJSON(cli.analysis.Pricing().Validate(input))
				}
				result, err := cli.analysis.AnalyzePricing(input)
				if err != nil {
					return err
				}
				return cli.printJSON(result)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "価格回答ファイル (.csv/.xlsx/.json)")
	cmd.Flags().BoolVar(&validate, "validate", false, "分析せず検証結果のみ出力")
	return cmd
}

func newMaxDiffCommand(cli *CLI) *cobra.Command {
	var (
		file     string
		features []string
	)
	cmd := &cobra.Command{
		Use:   "maxdiff",
		Short: "MaxDiff分析",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFile(file, func(name string, r io.Reader) error {
				responses, err := cli.loader.LoadMaxDiff(name, r)
				if err != nil {
					return err
				}
				result, err := cli.analysis.AnalyzeMaxDiff(responses, features)
				if err != nil {
					return err
				}
				return cli.printJSON(result)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "MaxDiff回答ファイル (.csv/.xlsx/.json)")
	cmd.Flags().StringSliceVar(&features, "features", nil, "評価対象の機能（省略時は回答から抽出）")
	return cmd
}

func newKanoCommand(cli *CLI) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "kano",
		Short: "Kano分析",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFile(file, func(name string, r io.Reader) error {
				responses, err := cli.loader.LoadKano(name, r)
				if err != nil {
					return err
				}
				result, err := cli.analysis.AnalyzeKano(responses)
				if err != nil {
					return err
				}
				return cli.printJSON(result)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Kano回答ファイル (.csv/.xlsx/.json)")
	return cmd
}

func newStudyCommand(cli *CLI) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "study",
		Short: "4手法をまとめて実行",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFile(file, func(_ string, r io.Reader) error {
				input, err := cli.loader.LoadStudy(r)
				if err != nil {
					return err
				}
				report, err := cli.analysis.RunStudy(context.Background(), input)
				if err != nil {
					return err
				}
				return cli.printJSON(report)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "調査データのJSONファイル")
	return cmd
}

func newDesignCommand(cli *CLI) *cobra.Command {
	var (
		features   []string
		respondent int
	)
	cmd := &cobra.Command{
		Use:   "design",
		Short: "MaxDiffの設問セットを生成",
		RunE: func(cmd *cobra.Command, args []string) error {
			trimmed := make([]string, 0, len(features))
			for _, f := range features {
				trimmed = append(trimmed, strings.TrimSpace(f))
			}
			v := cli.analysis.MaxDiff().ValidateDesign(trimmed, cli.analysis.Policy().MaxDiff.Rotations)
			if !v.IsValid {
				if err := cli.printJSON(v); err != nil {
					return err
				}
				return fmt.Errorf("設問設計が不正です: %s", v.Errors[0].Message)
			}
			questions, err := cli.analysis.MaxDiff().GenerateDesign(trimmed, respondent)
			if err != nil {
				return err
			}
			return cli.printJSON(questions)
		},
	}
	cmd.Flags().StringSliceVar(&features, "features", nil, "カンマ区切りの機能リスト")
	cmd.Flags().IntVar(&respondent, "respondent", 0, "回答者インデックス")
	_ = cmd.MarkFlagRequired("features")
	return cmd
}
