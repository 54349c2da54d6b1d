// Package risk computes Average True Range based stop-loss/target levels
// and cash-risk figures for position sizing.
//
// ATR here is the simple moving average of the last N true ranges (not
// Wilder smoothing); the choice is reported in every result so callers
// can tell which variant produced a level.
package risk

import (
	"math"

	"kite-gateway/internal/apierr"
	"kite-gateway/internal/model"
)

// Trade direction.
const (
	Long  = "LONG"
	Short = "SHORT"
)

// MethodSMA identifies the ATR smoothing variant used by this package.
const MethodSMA = "sma"

// Result holds the derived levels for one target calculation.
type Result struct {
	ATRValue         float64 `json:"atr_value"`
	StopLoss         float64 `json:"stop_loss"`
	Target           float64 `json:"target"`
	StopMultiplier   float64 `json:"stop_multiplier"`
	TargetMultiplier float64 `json:"target_multiplier"`
	Method           string  `json:"method"`
}

// ATR calculates Average True Range over a rolling window.
// Uses a preallocated circular buffer of true ranges; the previous close
// is carried between updates.
type ATR struct {
	period    int
	buf       []float64 // circular buffer of true ranges
	idx       int
	count     int
	sum       float64
	prevClose float64
	hasPrev   bool
}

// NewATR creates an ATR indicator with the given period.
func NewATR(period int) *ATR {
	return &ATR{
		period: period,
		buf:    make([]float64, period),
	}
}

func (a *ATR) Name() string { return "ATR" }

// Update feeds the next candle. The first candle only seeds the previous
// close; true ranges accumulate from the second candle on.
func (a *ATR) Update(c model.Candle) {
	if !a.hasPrev {
		a.prevClose = c.Close
		a.hasPrev = true
		return
	}

	tr := trueRange(c.High, c.Low, a.prevClose)
	a.prevClose = c.Close

	if a.count >= a.period {
		a.sum -= a.buf[a.idx]
	}
	a.buf[a.idx] = tr
	a.sum += tr
	a.idx = (a.idx + 1) % a.period
	a.count++
}

// Value returns the current ATR, or 0 until Ready.
func (a *ATR) Value() float64 {
	if !a.Ready() {
		return 0
	}
	return a.sum / float64(a.period)
}

// Ready reports whether a full window of true ranges has accumulated.
func (a *ATR) Ready() bool { return a.count >= a.period }

func trueRange(high, low, prevClose float64) float64 {
	tr := high - low
	if v := math.Abs(high - prevClose); v > tr {
		tr = v
	}
	if v := math.Abs(low - prevClose); v > tr {
		tr = v
	}
	return tr
}

// ComputeTarget derives stop-loss and target levels from the ATR of the
// supplied candles. candles must be in ascending time order and at least
// period+1 long. Input candles are never mutated.
func ComputeTarget(candles []model.Candle, period int, entryPrice float64, direction string, stopMult, targetMult float64) (Result, error) {
	if period < 1 {
		return Result{}, apierr.E(apierr.KindValidation, "period must be >= 1")
	}
	if len(candles) < period+1 {
		return Result{}, apierr.Ef(apierr.KindValidation,
			"insufficient data: need %d candles, have %d", period+1, len(candles))
	}
	if entryPrice <= 0 {
		return Result{}, apierr.E(apierr.KindValidation, "invalid price")
	}
	if direction != Long && direction != Short {
		return Result{}, apierr.Ef(apierr.KindValidation, "invalid direction %q", direction)
	}
	if stopMult <= 0 || targetMult <= 0 {
		return Result{}, apierr.E(apierr.KindValidation, "multipliers must be > 0")
	}

	// Only the last period+1 candles contribute to the window.
	atr := NewATR(period)
	for _, c := range candles[len(candles)-period-1:] {
		atr.Update(c)
	}
	value := atr.Value()

	res := Result{
		ATRValue:         value,
		StopMultiplier:   stopMult,
		TargetMultiplier: targetMult,
		Method:           MethodSMA,
	}
	switch direction {
	case Long:
		res.StopLoss = entryPrice - value*stopMult
		res.Target = entryPrice + value*targetMult
	case Short:
		res.StopLoss = entryPrice + value*stopMult
		res.Target = entryPrice - value*targetMult
	}
	return res, nil
}

// ComputeCashRisk returns the cash at risk between entry and stop for a
// given quantity: |entry - stop| * qty.
func ComputeCashRisk(entryPrice, stopLoss float64, quantity int64) (float64, error) {
	if quantity <= 0 {
		return 0, apierr.E(apierr.KindValidation, "invalid quantity")
	}
	if entryPrice <= 0 || stopLoss <= 0 {
		return 0, apierr.E(apierr.KindValidation, "invalid price")
	}
	return math.Abs(entryPrice-stopLoss) * float64(quantity), nil
}
