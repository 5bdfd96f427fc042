package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Order validation metrics
	validationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_engine_order_validations_total",
			Help: "Total number of order validations by result",
		},
		[]string{"symbol", "result"},
	)

	quantityAdjustmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_engine_quantity_adjustments_total",
			Help: "Total number of order quantity reductions by rule",
		},
		[]string{"rule"},
	)

	// Emergency stop metrics
	emergencyStopsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_engine_emergency_stops_total",
			Help: "Total number of emergency stop signals by reason",
		},
		[]string{"reason"},
	)

	// Portfolio snapshot metrics
	portfolioDrawdown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "risk_engine_portfolio_drawdown_percent",
			Help: "Current drawdown from the portfolio high-water-mark",
		},
	)

	portfolioExposure = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "risk_engine_portfolio_exposure",
			Help: "Total absolute exposure across open positions",
		},
	)

	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "risk_engine_open_positions",
			Help: "Number of open positions",
		},
	)

	portfolioRiskLevel = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "risk_engine_portfolio_risk_level",
			Help: "Portfolio risk level (0=low 1=medium 2=high 3=critical)",
		},
	)

	consecutiveLosses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "risk_engine_consecutive_losses",
			Help: "Current realized consecutive loss streak",
		},
	)
)

func init() {
	prometheus.MustRegister(validationsTotal)
	prometheus.MustRegister(quantityAdjustmentsTotal)
	prometheus.MustRegister(emergencyStopsTotal)
	prometheus.MustRegister(portfolioDrawdown)
	prometheus.MustRegister(portfolioExposure)
	prometheus.MustRegister(openPositions)
	prometheus.MustRegister(portfolioRiskLevel)
	prometheus.MustRegister(consecutiveLosses)
}

// MetricsHandler handles the Prometheus metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RecordValidation records an order validation outcome ("approved",
// "adjusted" or "rejected")
func RecordValidation(symbol, result string) {
	validationsTotal.WithLabelValues(symbol, result).Inc()
}

// RecordAdjustment records a quantity reduction by the named policy rule
func RecordAdjustment(rule string) {
	quantityAdjustmentsTotal.WithLabelValues(rule).Inc()
}

// RecordEmergencyStop records an emergency stop signal
func RecordEmergencyStop(reason string) {
	emergencyStopsTotal.WithLabelValues(reason).Inc()
}

// UpdatePortfolio updates the portfolio snapshot gauges
func UpdatePortfolio(drawdownPercent, exposure float64, positions int, riskLevel int) {
	portfolioDrawdown.Set(drawdownPercent)
	portfolioExposure.Set(exposure)
	openPositions.Set(float64(positions))
	portfolioRiskLevel.Set(float64(riskLevel))
}

// UpdateLossStreak updates the consecutive loss gauge
func UpdateLossStreak(losses int) {
	consecutiveLosses.Set(float64(losses))
}
