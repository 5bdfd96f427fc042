package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/ctbglobal/risk-engine/internal/config"
	"github.com/ctbglobal/risk-engine/internal/logger"
	"github.com/ctbglobal/risk-engine/internal/monitoring"
	"github.com/ctbglobal/risk-engine/internal/risk"
)

// demoOrder is one scripted order intent for the walkthrough
type demoOrder struct {
	symbol   string
	side     risk.Side
	quantity string
	price    string
}

func main() {
	envFile := flag.String("env", ".env", "environment file to load")
	serve := flag.Bool("serve", false, "keep metrics/health servers running after the walkthrough")
	flag.Parse()

	if err := loadEnvFile(*envFile); err != nil {
		log.Printf("No env file loaded: %v", err)
	}

	cfg := config.Load()

	riskLog, err := logger.New("demo")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer riskLog.Close()

	manager, err := risk.NewManager(cfg.Limits, riskLog)
	if err != nil {
		log.Fatalf("Failed to create risk manager: %v", err)
	}

	healthChecker := monitoring.NewHealthChecker()
	startMonitoringServers(cfg, healthChecker)

	printLimits(cfg.Limits)

	portfolioValue := decimal.NewFromInt(10000)
	availableBalance := decimal.NewFromInt(4000)

	if err := manager.SetDailyStartValue(portfolioValue); err != nil {
		log.Fatalf("Failed to set daily baseline: %v", err)
	}

	runValidations(manager, portfolioValue, availableBalance)
	runExitLevels(manager)
	runPositionLifecycle(manager, healthChecker)
	runPortfolioAssessment(manager, portfolioValue, healthChecker)
	runEmergencyCheck(manager, healthChecker)

	if *serve {
		fmt.Printf("Serving metrics on :%d and health on :%d, Ctrl+C to exit\n",
			cfg.Monitoring.PrometheusPort, cfg.Monitoring.HealthPort)
		select {}
	}
}

// loadEnvFile loads environment variables from a file
func loadEnvFile(envFile string) error {
	if _, err := os.Stat(envFile); err == nil {
		return godotenv.Load(envFile)
	}
	return fmt.Errorf("env file %s not found", envFile)
}

// startMonitoringServers starts the Prometheus metrics and health endpoints
func startMonitoringServers(cfg *config.Config, healthChecker *monitoring.HealthChecker) {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", monitoring.NewMetricsHandler())
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort)
		if err := http.ListenAndServe(addr, metricsMux); err != nil {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	healthMux := http.NewServeMux()
	healthMux.Handle("/health", healthChecker)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Monitoring.HealthPort)
		if err := http.ListenAndServe(addr, healthMux); err != nil {
			log.Printf("Health server error: %v", err)
		}
	}()
}

// printLimits renders the active policy limits
func printLimits(limits config.RiskLimits) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("RISK LIMITS")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"📏 Max Position Size", limits.MaxPositionSizePercent.String() + "% of portfolio"},
		{"🔢 Max Open Positions", limits.MaxOpenPositions},
		{"📉 Max Daily Loss", limits.MaxDailyLossPercent.String() + "%"},
		{"🌊 Max Drawdown", limits.MaxDrawdownPercent.String() + "%"},
		{"🛑 Stop Loss", limits.StopLossPercent.String() + "%"},
		{"🎯 Take Profit", limits.TakeProfitPercent.String() + "%"},
		{"⚖️ Min Risk/Reward", limits.MinRiskRewardRatio.String() + "x"},
		{"🔁 Max Loss Streak", limits.MaxConsecutiveLosses},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 22, Align: text.AlignLeft},
		{Number: 2, WidthMin: 20, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Println()
}

// runValidations walks a batch of order intents through the policy pipeline
func runValidations(manager *risk.Manager, portfolioValue, availableBalance decimal.Decimal) {
	orders := []demoOrder{
		{"BTCUSDT", risk.SideBuy, "0.01", "50000"},  // small, passes untouched
		{"BTCUSDT", risk.SideBuy, "1.0", "50000"},   // oversized, shrunk by the caps
		{"ETHUSDT", risk.SideBuy, "5", "3000"},      // beyond the per-position share
		{"SOLUSDT", risk.SideSell, "20", "150"},     // short, balance cap does not apply
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("ORDER VALIDATION")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Symbol", "Side", "Requested", "Approved Qty", "Outcome"})

	for _, o := range orders {
		decision, err := manager.ValidateOrder(o.symbol, o.side,
			decimal.RequireFromString(o.quantity), decimal.RequireFromString(o.price),
			portfolioValue, availableBalance)
		if err != nil {
			log.Printf("Validation error for %s: %v", o.symbol, err)
			continue
		}

		outcome := "✅ " + decision.Reason
		if !decision.Approved {
			outcome = "❌ " + decision.Reason
		}
		t.AppendRow(table.Row{o.symbol, o.side, o.quantity, decision.Quantity.String(), outcome})
	}

	t.Render()
	fmt.Println()
}

// runExitLevels computes protective exits for calm and volatile entries
func runExitLevels(manager *risk.Manager) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("PROTECTIVE EXITS")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Symbol", "Side", "Entry", "Volatility", "Stop Loss", "Take Profit"})

	entries := []struct {
		symbol     string
		side       risk.Side
		entry      string
		volatility string
	}{
		{"BTCUSDT", risk.SideBuy, "50000", "0"},
		{"BTCUSDT", risk.SideBuy, "50000", "0.5"},
		{"ETHUSDT", risk.SideSell, "3000", "0.2"},
	}

	for _, e := range entries {
		stop, take, err := manager.CalculateStopLossTakeProfit(e.symbol, e.side,
			decimal.RequireFromString(e.entry), decimal.RequireFromString(e.volatility))
		if err != nil {
			log.Printf("Exit levels error for %s: %v", e.symbol, err)
			continue
		}
		t.AppendRow(table.Row{e.symbol, e.side, e.entry, e.volatility, stop.String(), take.String()})
	}

	t.Render()
	fmt.Println()
}

// runPositionLifecycle opens positions, marks them to market and closes one
func runPositionLifecycle(manager *risk.Manager, healthChecker *monitoring.HealthChecker) {
	updates := []struct {
		symbol                    string
		size, entry, current      string
	}{
		{"BTCUSDT", "0.02", "50000", "51000"},
		{"ETHUSDT", "0.3", "3000", "2850"},
		{"SOLUSDT", "-5", "150", "154"},
	}

	for _, u := range updates {
		err := manager.UpdatePosition(u.symbol,
			decimal.RequireFromString(u.size),
			decimal.RequireFromString(u.entry),
			decimal.RequireFromString(u.current))
		if err != nil {
			healthChecker.RecordError(err.Error())
			log.Printf("Position update error for %s: %v", u.symbol, err)
		}
	}

	// Close the loser and realize the loss
	if err := manager.RemovePosition("ETHUSDT", decimal.RequireFromString("-45")); err != nil {
		log.Printf("Position removal error: %v", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("OPEN POSITIONS")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Symbol", "Size", "Entry", "Current", "Unrealized PnL", "Risk %", "Level"})

	for _, pos := range manager.Positions() {
		t.AppendRow(table.Row{
			pos.Symbol,
			pos.Size.String(),
			pos.EntryPrice.String(),
			pos.CurrentPrice.String(),
			pos.UnrealizedPnL.String(),
			pos.RiskPercent.Round(2).String(),
			riskLevelBadge(pos.RiskLevel),
		})
	}

	t.Render()
	fmt.Printf("Realized loss streak: %d\n\n", manager.ConsecutiveLosses())
}

// runPortfolioAssessment renders a full portfolio risk snapshot
func runPortfolioAssessment(manager *risk.Manager, portfolioValue decimal.Decimal, healthChecker *monitoring.HealthChecker) {
	snapshot, err := manager.AssessPortfolioRisk(portfolioValue)
	if err != nil {
		healthChecker.RecordError(err.Error())
		log.Fatalf("Portfolio assessment failed: %v", err)
	}
	healthChecker.RecordAssessment()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("PORTFOLIO RISK")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"💰 Total Value", snapshot.TotalValue.String()},
		{"📊 Total Exposure", snapshot.TotalExposure.String()},
		{"📈 Unrealized PnL", snapshot.UnrealizedPnL.String()},
		{"📅 Daily PnL", snapshot.DailyPnL.String()},
		{"🌊 Current Drawdown", snapshot.CurrentDrawdown.Round(2).String() + "%"},
		{"🕳 Max Drawdown", snapshot.MaxDrawdown.Round(2).String() + "%"},
		{"⚠️ VaR 95%", snapshot.VaR95.String()},
		{"📐 Sharpe Ratio", snapshot.SharpeRatio.Round(2).String()},
		{"🧲 Concentration", snapshot.CorrelationRisk.Round(2).String() + "%"},
		{"🔢 Open Positions", snapshot.OpenPositions},
		{"🚦 Risk Level", riskLevelBadge(snapshot.RiskLevel)},
	})

	t.Render()
	fmt.Println()
}

// runEmergencyCheck probes the stop rules at a drawn-down valuation
func runEmergencyCheck(manager *risk.Manager, healthChecker *monitoring.HealthChecker) {
	// Observe the peak first, then a sharp decline
	if _, _, err := manager.CheckEmergencyStop(decimal.NewFromInt(10000)); err != nil {
		log.Fatalf("Emergency check failed: %v", err)
	}

	stopped, reason, err := manager.CheckEmergencyStop(decimal.NewFromInt(8000))
	if err != nil {
		log.Fatalf("Emergency check failed: %v", err)
	}

	if stopped {
		healthChecker.SetStatus(monitoring.StatusEmergency)
		fmt.Printf("🚨 EMERGENCY STOP: %s\n", reason)
	} else {
		fmt.Println("✅ No emergency stop conditions")
	}
}

// riskLevelBadge maps a risk level to a colored console badge
func riskLevelBadge(level risk.RiskLevel) string {
	switch level {
	case risk.RiskLevelCritical:
		return "🔴 CRITICAL"
	case risk.RiskLevelHigh:
		return "🟠 HIGH"
	case risk.RiskLevelMedium:
		return "🟡 MEDIUM"
	default:
		return "🟢 LOW"
	}
}
