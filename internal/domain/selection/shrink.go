package selection

import (
	"github.com/forPelevin/recut/internal/types"
)

// shrinkToFit trims clips proportionally so their total is at most target,
// never taking a clip below floorMS (clips already shorter keep their
// length). Each trim keeps the centre of the clip. ok is false when even
// the floors exceed target.
func shrinkToFit(clips []types.SelectedClip, target, floorMS int64) ([]types.SelectedClip, bool) {
	total := sumDurations(clips)
	if total <= target {
		return clips, true
	}

	durs := make([]int64, len(clips))
	minDur := make([]int64, len(clips))
	var floors int64
	for i, c := range clips {
		durs[i] = c.DurationMS()
		minDur[i] = durs[i]
		if minDur[i] > floorMS {
			minDur[i] = floorMS
		}
		floors += minDur[i]
	}
	if floors > target {
		return clips, false
	}

	// Water-fill: clips whose scaled length would fall under their floor are
	// pinned to it and the remaining budget is spread over the rest.
	pinned := make([]bool, len(clips))
	newDur := make([]int64, len(clips))
	for {
		budget := target
		var flex int64
		for i := range clips {
			if pinned[i] {
				budget -= minDur[i]
			} else {
				flex += durs[i]
			}
		}
		if flex == 0 {
			break
		}
		changed := false
		for i := range clips {
			if pinned[i] {
				continue
			}
			if durs[i]*budget < minDur[i]*flex {
				pinned[i] = true
				changed = true
			}
		}
		if changed {
			continue
		}
		for i := range clips {
			if !pinned[i] {
				newDur[i] = durs[i] * budget / flex
			}
		}
		break
	}
	for i := range clips {
		if pinned[i] {
			newDur[i] = minDur[i]
		}
	}

	out := make([]types.SelectedClip, len(clips))
	for i, c := range clips {
		nd := newDur[i]
		if nd > durs[i] {
			nd = durs[i]
		}
		cut := durs[i] - nd
		c.InMS = c.InMS + cut/2
		c.OutMS = c.InMS + nd
		out[i] = c
	}
	return out, true
}
