// internal/core/domain/analytics/formulas.go
package analytics

import (
	"math"

	"github.com/montanaflynn/stats"
)

// PnLStats сводная статистика результатов сессий
type PnLStats struct {
	Total        float64 `json:"total"`
	Average      float64 `json:"average"`
	Best         float64 `json:"best"`
	Worst        float64 `json:"worst"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"` // по модулю
	WinCount     int     `json:"win_count"`
	LossCount    int     `json:"loss_count"`
	WinRate      float64 `json:"win_rate"` // %
	ProfitFactor float64 `json:"profit_factor"`
}

// RiskMetrics показатели риска
type RiskMetrics struct {
	MaxDrawdown float64 `json:"max_drawdown"`
	SharpeRatio float64 `json:"sharpe_ratio"`
	Volatility  float64 `json:"volatility"`
}

// ComputePnLStats считает статистику по PnL сессий
func ComputePnLStats(pnls []float64) PnLStats {
	var s PnLStats
	if len(pnls) == 0 {
		return s
	}

	s.Best = math.Inf(-1)
	s.Worst = math.Inf(1)
	var winSum, lossSum float64
	for _, p := range pnls {
		s.Total += p
		s.Best = math.Max(s.Best, p)
		s.Worst = math.Min(s.Worst, p)
		switch {
		case p > 0:
			s.WinCount++
			winSum += p
		case p < 0:
			s.LossCount++
			lossSum += -p
		}
	}

	s.Average = mean(pnls)
	if s.WinCount > 0 {
		s.AvgWin = winSum / float64(s.WinCount)
	}
	if s.LossCount > 0 {
		s.AvgLoss = lossSum / float64(s.LossCount)
	}
	s.WinRate = WinRate(s.WinCount, len(pnls))
	s.ProfitFactor = ProfitFactor(s.AvgWin, s.WinCount, s.AvgLoss, s.LossCount)
	return s
}

// WinRate доля прибыльных сессий в процентах
func WinRate(winCount, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(winCount) / float64(total) * 100
}

// ProfitFactor (avgWin*winCount)/(avgLoss*lossCount); 0 при нулевом знаменателе
func ProfitFactor(avgWin float64, winCount int, avgLoss float64, lossCount int) float64 {
	denominator := math.Abs(avgLoss) * float64(lossCount)
	if denominator == 0 {
		return 0
	}
	return avgWin * float64(winCount) / denominator
}

// MaxDrawdown максимальная просадка накопленного PnL от пика.
// pnls должны идти в хронологическом порядке; отсчёт пика от нуля.
func MaxDrawdown(pnls []float64) float64 {
	var cumulative, peak, maxDD float64
	for _, p := range pnls {
		cumulative += p
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// SharpeRatio (mean − riskFree)/stddev; 0 при нулевом отклонении
func SharpeRatio(pnls []float64, riskFreeRate float64) float64 {
	sd := Volatility(pnls)
	if sd == 0 {
		return 0
	}
	return (mean(pnls) - riskFreeRate) / sd
}

// Volatility стандартное отклонение генеральной совокупности
func Volatility(pnls []float64) float64 {
	if len(pnls) == 0 {
		return 0
	}
	sd, err := stats.StandardDeviationPopulation(stats.Float64Data(pnls))
	if err != nil || math.IsNaN(sd) {
		return 0
	}
	return sd
}

// ComputeRiskMetrics все показатели риска разом
func ComputeRiskMetrics(pnls []float64, riskFreeRate float64) RiskMetrics {
	return RiskMetrics{
		MaxDrawdown: MaxDrawdown(pnls),
		SharpeRatio: SharpeRatio(pnls, riskFreeRate),
		Volatility:  Volatility(pnls),
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m, err := stats.Mean(stats.Float64Data(values))
	if err != nil {
		return 0
	}
	return m
}
