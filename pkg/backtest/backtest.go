// Package backtest simulates a betting strategy over model predictions
// against actual race outcomes: sequential bankroll accounting with flat
// or fractional-Kelly staking, a minimum-probability filter, an optional
// stop-loss, and a bet cap.
package backtest

import (
	"fmt"
	"math"
)

// Staking modes
const (
	StakingFlat  = "flat"
	StakingKelly = "kelly"
)

// Strategy configures one simulation
type Strategy struct {
	Name            string  `json:"name,omitempty"`
	InitialBankroll float64 `json:"initial_bankroll"`
	StakePerBet     float64 `json:"stake_per_bet"`
	MinProbability  float64 `json:"min_probability"`
	Staking         string  `json:"staking,omitempty"`
	KellyFraction   float64 `json:"kelly_fraction,omitempty"`
	// StopLossPercent halts the simulation once the bankroll has lost this
	// percentage of its initial value. Zero disables it.
	StopLossPercent float64 `json:"stop_loss_percent,omitempty"`
	// MaxBets caps the number of bets placed. Zero means unlimited.
	MaxBets int `json:"max_bets,omitempty"`
}

func (s *Strategy) setDefaults() {
	if s.InitialBankroll <= 0 {
		s.InitialBankroll = 100000
	}
	if s.StakePerBet <= 0 {
		s.StakePerBet = 100
	}
	if s.MinProbability <= 0 {
		s.MinProbability = 0.5
	}
	if s.Staking == "" {
		s.Staking = StakingFlat
	}
	if s.Staking == StakingKelly && s.KellyFraction <= 0 {
		s.KellyFraction = 0.25
	}
}

func (s *Strategy) validate() error {
	if s.Staking != StakingFlat && s.Staking != StakingKelly {
		return fmt.Errorf("backtest: unknown staking mode %q", s.Staking)
	}
	if s.MinProbability > 1 {
		return fmt.Errorf("backtest: min probability %v out of range", s.MinProbability)
	}
	if s.StopLossPercent < 0 || s.StopLossPercent >= 100 {
		if s.StopLossPercent != 0 {
			return fmt.Errorf("backtest: stop loss percent %v out of range", s.StopLossPercent)
		}
	}
	return nil
}

// Presets returns the predefined strategy catalogue
func Presets() []Strategy {
	return []Strategy{
		{Name: "conservative", MinProbability: 0.65, StakePerBet: 50, StopLossPercent: 10},
		{Name: "balanced", MinProbability: 0.5, StakePerBet: 100, StopLossPercent: 15},
		{Name: "aggressive", MinProbability: 0.4, StakePerBet: 200, StopLossPercent: 20},
		{Name: "kelly", MinProbability: 0.5, Staking: StakingKelly, KellyFraction: 0.25},
	}
}

// Preset looks up a catalogue strategy by name
func Preset(name string) (Strategy, bool) {
	for _, s := range Presets() {
		if s.Name == name {
			return s, true
		}
	}
	return Strategy{}, false
}

// Outcome is one scored runner paired with what actually happened
type Outcome struct {
	Probability float64 `json:"probability"`
	Predicted   int     `json:"predicted"`
	Actual      int     `json:"actual"`
}

// Outcomes pairs a probability vector with actual labels, deriving the
// predicted label at the given threshold
func Outcomes(probs []float64, actuals []int, threshold float64) ([]Outcome, error) {
	if len(probs) != len(actuals) {
		return nil, fmt.Errorf("backtest: %d probabilities but %d outcomes", len(probs), len(actuals))
	}
	out := make([]Outcome, len(probs))
	for i, p := range probs {
		pred := 0
		if p >= threshold {
			pred = 1
		}
		out[i] = Outcome{Probability: p, Predicted: pred, Actual: actuals[i]}
	}
	return out, nil
}

// Result is the accounting summary of one simulation
type Result struct {
	InitialBankroll float64  `json:"initial_bankroll"`
	FinalBankroll   float64  `json:"final_bankroll"`
	ProfitLoss      float64  `json:"profit_loss"`
	ROIPercent      float64  `json:"roi_percent"`
	TotalBets       int      `json:"total_bets"`
	Wins            int      `json:"wins"`
	Losses          int      `json:"losses"`
	WinRatePercent  float64  `json:"win_rate"`
	MaxDrawdown     float64  `json:"max_drawdown"`
	StoppedOut      bool     `json:"stopped_out"`
	Strategy        Strategy `json:"strategy"`
}

// Run walks the outcomes in order, betting on every runner whose win
// probability clears the filter. The payout is the probability's implied
// odds: a correct win pays stake*(1/p - 1), anything else loses the stake.
func Run(outcomes []Outcome, strategy Strategy) (*Result, error) {
	strategy.setDefaults()
	if err := strategy.validate(); err != nil {
		return nil, err
	}

	bankroll := strategy.InitialBankroll
	stopFloor := 0.0
	if strategy.StopLossPercent > 0 {
		stopFloor = strategy.InitialBankroll * (1 - strategy.StopLossPercent/100)
	}

	result := &Result{
		InitialBankroll: strategy.InitialBankroll,
		Strategy:        strategy,
	}
	maxDrawdown := 0.0

	for _, o := range outcomes {
		if o.Probability < strategy.MinProbability || o.Probability <= 0 {
			continue
		}
		if strategy.MaxBets > 0 && result.TotalBets >= strategy.MaxBets {
			break
		}

		stake := strategy.StakePerBet
		if strategy.Staking == StakingKelly {
			stake = kellyStake(bankroll, o.Probability, strategy.KellyFraction)
			if stake <= 0 {
				continue
			}
		}
		if stake > bankroll {
			stake = bankroll
		}
		if stake <= 0 {
			break
		}

		result.TotalBets++
		if o.Actual == 1 && o.Predicted == 1 {
			bankroll += stake * (1/o.Probability - 1)
			result.Wins++
		} else {
			bankroll -= stake
			result.Losses++
		}

		if pnl := bankroll - strategy.InitialBankroll; pnl < maxDrawdown {
			maxDrawdown = pnl
		}
		if stopFloor > 0 && bankroll <= stopFloor {
			result.StoppedOut = true
			break
		}
	}

	result.FinalBankroll = bankroll
	result.ProfitLoss = bankroll - strategy.InitialBankroll
	result.ROIPercent = result.ProfitLoss / strategy.InitialBankroll * 100
	if result.TotalBets > 0 {
		result.WinRatePercent = float64(result.Wins) / float64(result.TotalBets) * 100
	}
	result.MaxDrawdown = maxDrawdown
	return result, nil
}

// kellyStake sizes a bet as a fixed fraction of the full-Kelly stake for
// an even-money book, clamped to non-negative
func kellyStake(bankroll, prob, fraction float64) float64 {
	edge := 2*prob - 1
	if edge <= 0 {
		return 0
	}
	return math.Floor(bankroll * edge * fraction)
}
