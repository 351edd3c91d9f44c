// Package main replays trades under alternate exit scenarios and prints how
// each scenario compares with the exits actually taken.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	json "github.com/bytedance/sonic"
	"github.com/samber/lo"

	"trade-outcome-lab/internal/config"
	"trade-outcome-lab/internal/counterfactual"
	"trade-outcome-lab/internal/di"
	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/logger"
	"trade-outcome-lab/internal/metrics"
	"trade-outcome-lab/internal/reporting"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	ids := flag.String("ids", "", "comma-separated trade ids")
	idsFile := flag.String("ids-file", "", "file with one trade id per line")
	user := flag.String("user", "", "replay every trade of this user")
	scenarioFile := flag.String("scenarios", "", "JSON file with a list of scenarios (required)")
	csvOut := flag.String("csv", "", "write the summary CSV to this path")
	flag.Parse()

	if err := run(*configPath, *ids, *idsFile, *user, *scenarioFile, *csvOut); err != nil {
		fmt.Fprintf(os.Stderr, "counterfactual: %v\n", err)
		os.Exit(1)
	}
}

type output struct {
	Summaries []*metrics.ImprovementSummary `json:"summaries"`
	Errors    []batchError                  `json:"errors,omitempty"`
}

type batchError struct {
	Scenario string `json:"scenario"`
	TradeID  string `json:"trade_id"`
	Error    string `json:"error"`
}

func run(configPath, idsArg, idsFile, user, scenarioFile, csvOut string) error {
	if scenarioFile == "" {
		return fmt.Errorf("-scenarios is required")
	}
	scenarios, err := loadScenarios(scenarioFile)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	// Only MODEL_EXIT scenarios need the exit model.
	cfg.Model.Optional = true

	ctx := context.Background()
	log, err := di.ProvideLogger(cfg)
	if err != nil {
		return err
	}
	stores, cleanup, err := di.ProvideStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()
	prices, closePrices, err := di.ProvidePriceProvider(ctx, cfg, stores, log)
	if err != nil {
		return err
	}
	defer closePrices()
	scorer, err := di.ProvideScorer(cfg, log)
	if err != nil {
		return err
	}
	engine := di.ProvideEngine(cfg, stores, prices, scorer, log)

	tradeIDs, err := collectIDs(ctx, stores.Trades, idsArg, idsFile, user)
	if err != nil {
		return err
	}
	if len(tradeIDs) == 0 {
		return fmt.Errorf("no trade ids given; use -ids, -ids-file or -user")
	}

	var (
		all  []*domain.CounterfactualResult
		errs []batchError
	)
	for _, sc := range scenarios {
		results, failures := engine.RunBatch(ctx, tradeIDs, sc)
		all = append(all, results...)
		for _, f := range failures {
			errs = append(errs, batchError{Scenario: sc.Name, TradeID: f.TradeID, Error: f.Err.Error()})
		}
		log.Info("scenario replayed",
			logger.String("scenario", sc.Name),
			logger.Int("results", len(results)),
			logger.Int("failures", len(failures)),
		)
	}

	summaries := metrics.Compare(all)
	data, err := json.ConfigStd.MarshalIndent(output{Summaries: summaries, Errors: errs}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))

	if csvOut != "" {
		if err := os.WriteFile(csvOut, []byte(reporting.RenderImprovementsCSV(summaries)), 0o644); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}
	return nil
}

// loadScenarios reads and validates a JSON list of scenarios. Unnamed
// scenarios are numbered.
func loadScenarios(path string) ([]domain.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenarios: %w", err)
	}
	var scenarios []domain.Scenario
	if err := json.Unmarshal(data, &scenarios); err != nil {
		return nil, fmt.Errorf("parse scenarios: %w", err)
	}
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("scenario file %s is empty", path)
	}
	for i := range scenarios {
		if scenarios[i].Name == "" {
			scenarios[i].Name = fmt.Sprintf("scenario-%d", i+1)
		}
		if scenarios[i].HorizonDays == 0 {
			scenarios[i].HorizonDays = counterfactual.DefaultHorizonDays
		}
	}
	return scenarios, nil
}

type tradeLister interface {
	GetByUser(ctx context.Context, user string) ([]*domain.Trade, error)
}

func collectIDs(ctx context.Context, trades tradeLister, idsArg, idsFile, user string) ([]string, error) {
	var ids []string
	for _, id := range strings.Split(idsArg, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	if idsFile != "" {
		f, err := os.Open(idsFile)
		if err != nil {
			return nil, fmt.Errorf("open ids file: %w", err)
		}
		defer f.Close()
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" && !strings.HasPrefix(line, "#") {
				ids = append(ids, line)
			}
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read ids file: %w", err)
		}
	}

	if user != "" {
		userTrades, err := trades.GetByUser(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("load trades for %s: %w", user, err)
		}
		ids = append(ids, lo.Map(userTrades, func(t *domain.Trade, _ int) string { return t.ID })...)
	}
	return lo.Uniq(ids), nil
}
