package selection

import (
	"fmt"

	"github.com/forPelevin/recut/internal/types"
)

const bandWideningStepMS = 1000

const (
	StepStrict          = "strict"
	StepSpacingHalved   = "spacing_halved"
	StepSpacingDisabled = "spacing_disabled"
	stepWidenedPrefix   = "duration_widened"
)

// Step is one rung of the relaxation ladder. Steps are values: applying
// the same step twice yields the same attempt.
type Step struct {
	Index     int
	Name      string
	SpacingMS int64
	Band      types.MSRange
}

func (s Step) relaxation() types.Relaxation {
	return types.Relaxation{Step: s.Index, Name: s.Name, SpacingMS: s.SpacingMS, Band: s.Band}
}

// Ladder lists the steps in the order they are tried: spacing is relaxed
// first, then the duration band widens in 1s steps on both ends up to
// MaxBandWideningMS. Steps identical to their predecessor are skipped.
func Ladder(c types.SelectionConstraint) []Step {
	steps := []Step{{Name: StepStrict, SpacingMS: c.MinSpacingMS, Band: c.TargetDurationMS}}
	add := func(name string, spacing int64, band types.MSRange) {
		last := steps[len(steps)-1]
		if last.SpacingMS == spacing && last.Band == band {
			return
		}
		steps = append(steps, Step{Index: len(steps), Name: name, SpacingMS: spacing, Band: band})
	}

	add(StepSpacingHalved, c.MinSpacingMS/2, c.TargetDurationMS)
	add(StepSpacingDisabled, 0, c.TargetDurationMS)
	for w := int64(bandWideningStepMS); ; w += bandWideningStepMS {
		if w > c.MaxBandWideningMS {
			w = c.MaxBandWideningMS
		}
		if w <= 0 {
			break
		}
		add(fmt.Sprintf("%s_%dms", stepWidenedPrefix, w), 0, c.TargetDurationMS.Widen(w))
		if w >= c.MaxBandWideningMS {
			break
		}
	}
	return steps
}

// fired returns the relaxations applied to reach steps[i].
func fired(steps []Step, i int) []types.Relaxation {
	if i <= 0 {
		return nil
	}
	out := make([]types.Relaxation, 0, i)
	for _, s := range steps[1 : i+1] {
		out = append(out, s.relaxation())
	}
	return out
}
