package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/driver-screener/internal/logger"
	"github.com/spigell/driver-screener/internal/parser"
	"github.com/spigell/driver-screener/internal/requirement"
)

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Parse a model reply offline and print the result as JSON",
	Run: func(cmd *cobra.Command, _ []string) {
		parse(cmd)
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().StringP("type", "t", "", "requirement type, e.g. CDL_CLASS (required)")
	parseCmd.Flags().StringP("file", "f", "", "file with the model reply (default is stdin)")
	parseCmd.Flags().String("criteria", "", "criteria JSON; when set the parsed value is also evaluated")
	parseCmd.MarkFlagRequired("type")
}

type parseOutput struct {
	Success            bool               `json:"success"`
	Method             parser.Method      `json:"method"`
	Value              requirement.Value  `json:"value"`
	Assessment         requirement.Status `json:"assessment,omitempty"`
	Confidence         *float64           `json:"confidence,omitempty"`
	Message            string             `json:"message"`
	NeedsClarification bool               `json:"needs_clarification"`
	Status             requirement.Status `json:"status,omitempty"`
}

func parse(cmd *cobra.Command) {
	logger, err := logger.Build(logger.Options{
		JSON:   viper.GetBool("json"),
		Debug:  viper.GetBool("debug"),
		Output: "stderr",
	})
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	typeName, _ := cmd.Flags().GetString("type")
	t, err := requirement.ParseType(typeName)
	if err != nil {
		logger.Fatal("parsing the requirement type", zap.Error(err))
	}

	reply, err := readReply(cmd)
	if err != nil {
		logger.Fatal("reading the reply", zap.Error(err))
	}

	res, err := parser.New(logger).Parse(t, reply)
	if err != nil {
		logger.Fatal("parsing the reply", zap.Error(err))
	}

	out := parseOutput{
		Success:            res.Success,
		Method:             res.Method,
		Value:              res.Value,
		Assessment:         res.Assessment,
		Confidence:         res.Confidence,
		Message:            res.Message,
		NeedsClarification: res.NeedsClarification,
	}

	if raw, _ := cmd.Flags().GetString("criteria"); raw != "" {
		criteria, err := requirement.ParseCriteria(t, []byte(raw))
		if err != nil {
			logger.Fatal("parsing the criteria", zap.Error(err))
		}
		if out.Status, err = requirement.Evaluate(t, criteria, res.Value); err != nil {
			logger.Fatal("evaluating the value", zap.Error(err))
		}
	}

	pretty, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		logger.Fatal("encoding the result", zap.Error(err))
	}
	fmt.Println(string(pretty))
}

func readReply(cmd *cobra.Command) (string, error) {
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}
