package consensus

import (
	"math/rand"
	"os"
)

// FaultProbe is checked immediately before a record is written to disk. The
// default probe is driven by FaultCrashBeforeCMetaFlush and calls os.Exit(1) to
// simulate a crash; it is pluggable so tests can observe instead of dying.
type FaultProbe func()

func defaultFaultProbe(probability float64) FaultProbe {
	return func() {
		if probability <= 0 {
			return
		}
		if rand.Float64() < probability {
			os.Exit(1)
		}
	}
}
