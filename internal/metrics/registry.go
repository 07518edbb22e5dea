package metrics

import (
	"sort"
	"strings"

	"github.com/san-kum/boldsim/internal/dynamo"
)

// Params carries what the parameterized metrics need.
type Params struct {
	// EchoStep is the refocusing step; EchoPeak looks from here on and
	// DecayRate fits from here on.
	EchoStep int
	TimeUnit float64
}

var builders = map[string]func(Params) dynamo.Metric{
	"decay_rate":   func(p Params) dynamo.Metric { return NewDecayRate(p.EchoStep, p.TimeUnit) },
	"echo_peak":    func(p Params) dynamo.Metric { return NewEchoPeak(p.EchoStep) },
	"final_signal": func(Params) dynamo.Metric { return NewFinalSignal() },
	"iv_share":     func(Params) dynamo.Metric { return NewIVShare() },
}

func Names() []string {
	names := make([]string, 0, len(builders))
	for n := range builders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func New(name string, p Params) (dynamo.Metric, error) {
	b, ok := builders[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, dynamo.Configf("metrics", "unknown metric %q (have %s)", name, strings.Join(Names(), ", "))
	}
	return b(p), nil
}
