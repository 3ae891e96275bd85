package backtest

import (
	"math"
	"testing"
)

func TestRunWinningBet(t *testing.T) {
	outcomes := []Outcome{
		{Probability: 0.8, Predicted: 1, Actual: 1},
	}
	result, err := Run(outcomes, Strategy{InitialBankroll: 1000, StakePerBet: 100})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Implied odds 1/0.8 pay 100*(1.25-1) = 25
	if math.Abs(result.FinalBankroll-1025) > 1e-9 {
		t.Errorf("final bankroll %v, want 1025", result.FinalBankroll)
	}
	if result.Wins != 1 || result.Losses != 0 || result.TotalBets != 1 {
		t.Errorf("counts wins=%d losses=%d bets=%d", result.Wins, result.Losses, result.TotalBets)
	}
	if result.WinRatePercent != 100 {
		t.Errorf("win rate %v, want 100", result.WinRatePercent)
	}
	if math.Abs(result.ROIPercent-2.5) > 1e-9 {
		t.Errorf("roi %v, want 2.5", result.ROIPercent)
	}
}

func TestRunLosingBet(t *testing.T) {
	outcomes := []Outcome{
		{Probability: 0.7, Predicted: 1, Actual: 0},
	}
	result, err := Run(outcomes, Strategy{InitialBankroll: 1000, StakePerBet: 100})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FinalBankroll != 900 {
		t.Errorf("final bankroll %v, want 900", result.FinalBankroll)
	}
	if result.MaxDrawdown != -100 {
		t.Errorf("max drawdown %v, want -100", result.MaxDrawdown)
	}
}

func TestRunMinProbabilityFilter(t *testing.T) {
	outcomes := []Outcome{
		{Probability: 0.3, Predicted: 0, Actual: 1},
		{Probability: 0.49, Predicted: 0, Actual: 0},
		{Probability: 0.6, Predicted: 1, Actual: 1},
	}
	result, err := Run(outcomes, Strategy{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.TotalBets != 1 {
		t.Errorf("only the 0.6 runner clears the default filter, got %d bets", result.TotalBets)
	}
}

func TestRunStopLoss(t *testing.T) {
	// Ten straight losses at 100 each against a 5% stop on 1000
	outcomes := make([]Outcome, 10)
	for i := range outcomes {
		outcomes[i] = Outcome{Probability: 0.9, Predicted: 1, Actual: 0}
	}
	result, err := Run(outcomes, Strategy{InitialBankroll: 1000, StakePerBet: 100, StopLossPercent: 5})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.StoppedOut {
		t.Error("simulation should report the stop-loss halt")
	}
	if result.TotalBets != 1 {
		t.Errorf("first loss breaches the 5%% floor, got %d bets", result.TotalBets)
	}
	if result.FinalBankroll != 900 {
		t.Errorf("final bankroll %v, want 900", result.FinalBankroll)
	}
}

func TestRunMaxBetsCap(t *testing.T) {
	outcomes := make([]Outcome, 20)
	for i := range outcomes {
		outcomes[i] = Outcome{Probability: 0.6, Predicted: 1, Actual: 1}
	}
	result, err := Run(outcomes, Strategy{MaxBets: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.TotalBets != 3 {
		t.Errorf("bet cap ignored: %d bets", result.TotalBets)
	}
}

func TestRunKellyStaking(t *testing.T) {
	strategy, ok := Preset("kelly")
	if !ok {
		t.Fatal("kelly preset missing")
	}
	outcomes := []Outcome{
		{Probability: 0.8, Predicted: 1, Actual: 1},
		{Probability: 0.5, Predicted: 1, Actual: 1},
	}
	result, err := Run(outcomes, strategy)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// p=0.8: stake floor(100000*0.6*0.25)=15000, payout 15000*0.25=3750.
	// p=0.5 has no even-money edge, so no second bet.
	if result.TotalBets != 1 {
		t.Errorf("zero-edge runner should be skipped, got %d bets", result.TotalBets)
	}
	if math.Abs(result.FinalBankroll-103750) > 1e-6 {
		t.Errorf("final bankroll %v, want 103750", result.FinalBankroll)
	}
}

func TestRunStakeNeverExceedsBankroll(t *testing.T) {
	outcomes := []Outcome{
		{Probability: 0.9, Predicted: 1, Actual: 0},
		{Probability: 0.9, Predicted: 1, Actual: 0},
	}
	result, err := Run(outcomes, Strategy{InitialBankroll: 150, StakePerBet: 100})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FinalBankroll < 0 {
		t.Errorf("bankroll went negative: %v", result.FinalBankroll)
	}
	if result.FinalBankroll != 0 {
		t.Errorf("final bankroll %v, want 0 (second stake clamped to 50)", result.FinalBankroll)
	}
}

func TestRunWrongPredictionLosesEvenWhenHorseWins(t *testing.T) {
	outcomes := []Outcome{
		{Probability: 0.6, Predicted: 0, Actual: 1},
	}
	// Probability clears the filter but the hard prediction said no-win;
	// the accounting treats that as a lost bet
	result, err := Run(outcomes, Strategy{InitialBankroll: 1000, StakePerBet: 100, MinProbability: 0.5})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Wins != 0 || result.Losses != 1 {
		t.Errorf("wins=%d losses=%d, want 0/1", result.Wins, result.Losses)
	}
}

func TestOutcomesThreshold(t *testing.T) {
	outs, err := Outcomes([]float64{0.4, 0.6}, []int{1, 1}, 0.5)
	if err != nil {
		t.Fatalf("Outcomes: %v", err)
	}
	if outs[0].Predicted != 0 || outs[1].Predicted != 1 {
		t.Errorf("threshold labels wrong: %+v", outs)
	}
	if _, err := Outcomes([]float64{0.4}, []int{1, 0}, 0.5); err == nil {
		t.Error("length mismatch must be rejected")
	}
}

func TestPresetsCatalogue(t *testing.T) {
	names := map[string]bool{}
	for _, s := range Presets() {
		names[s.Name] = true
	}
	for _, want := range []string{"conservative", "balanced", "aggressive", "kelly"} {
		if !names[want] {
			t.Errorf("catalogue missing %q", want)
		}
	}
	if _, ok := Preset("martingale"); ok {
		t.Error("unknown preset should not resolve")
	}
}

func TestRunRejectsBadStrategy(t *testing.T) {
	if _, err := Run(nil, Strategy{Staking: "doubling"}); err == nil {
		t.Error("unknown staking mode must be rejected")
	}
	if _, err := Run(nil, Strategy{MinProbability: 1.5}); err == nil {
		t.Error("out-of-range min probability must be rejected")
	}
}
