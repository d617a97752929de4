// ABOUTME: RMS level computation
// ABOUTME: Normalizes 24-bit samples to a 0..1 level
package meter

import (
	"math"

	"github.com/Resonate-Protocol/walkie/pkg/audio"
)

// RMS returns the root mean square of samples relative to full scale
func RMS(samples []int32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / audio.Max24Bit
		sum += v * v
	}
	return math.Min(1, math.Sqrt(sum/float64(len(samples))))
}
