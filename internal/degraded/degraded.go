package degraded

import (
	"time"

	"github.com/kjstillabower/weather-widget/internal/traffic"
)

// Policy decides when the upstream error rate makes the service degraded.
// A zero Window or ErrorPct disables the check.
type Policy struct {
	Window   time.Duration
	ErrorPct int
	// MinSamples avoids flagging on one or two unlucky requests.
	MinSamples int
}

// Evaluate returns whether the current error rate breaches the policy and the
// observed percentage.
func (p Policy) Evaluate() (bool, float64) {
	if p.Window <= 0 || p.ErrorPct <= 0 {
		return false, 0
	}
	errors, total := traffic.ErrorRate(p.Window)
	if total == 0 || total < p.MinSamples {
		return false, 0
	}
	pct := float64(errors) * 100 / float64(total)
	return pct >= float64(p.ErrorPct), pct
}
