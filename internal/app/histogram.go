package app

// CompactStep is the stride used for the compact histogram view.
const CompactStep = 8

// Histogram is the intensity histogram of a session's still image.
type Histogram struct {
	SessionID string    `json:"session_id"`
	Bins      []int     `json:"bins"`
	Compact   []float64 `json:"compact"`
}

func newHistogram(sessionID string, bins []int) Histogram {
	return Histogram{
		SessionID: sessionID,
		Bins:      bins,
		Compact:   compactBins(bins, CompactStep),
	}
}

// compactBins keeps every step-th bin and scales it against the largest bin
// of the full histogram, giving values in [0,1].
func compactBins(bins []int, step int) []float64 {
	if step <= 0 {
		step = 1
	}

	max := 0
	for _, v := range bins {
		if v > max {
			max = v
		}
	}

	out := make([]float64, 0, (len(bins)+step-1)/step)
	for i := 0; i < len(bins); i += step {
		if max == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, float64(bins[i])/float64(max))
	}
	return out
}
