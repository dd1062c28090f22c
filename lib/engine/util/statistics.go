// Package util
//
// This file implements a size histogram for value payloads. Values on the
// device occupy whole sectors, so next to the raw byte sizes the histogram
// tracks how many bytes the samples use once rounded up to the sector size.
// The bucket boundaries cover the range from tiny values up to the maximum
// value size of the engine.
package util

import (
	"math"
	"sync"
)

// ----------------------------------------------------------------------------
// SizeHistogram
// ----------------------------------------------------------------------------

// SizeHistogram tracks the distribution of value sizes
type SizeHistogram struct {
	mutex      sync.RWMutex
	boundaries []int   // Upper bucket boundaries (inclusive)
	buckets    []int64 // Count of samples in each bucket (+1 overflow bucket)
	count      int64   // Total number of samples
	sum        int64   // Sum of all sampled sizes
	sectorSum  int64   // Sum of all sampled sizes rounded up to sectorSize
	sectorSize int
	maxSize    int
}

// NewSizeHistogram creates a histogram for values of up to maxSize bytes
// stored in sectors of sectorSize bytes (a power of two)
func NewSizeHistogram(sectorSize, maxSize int) *SizeHistogram {
	boundaries := []int{64, 256}
	for b := sectorSize; b < maxSize; b *= 4 {
		if b > boundaries[len(boundaries)-1] {
			boundaries = append(boundaries, b)
		}
	}
	boundaries = append(boundaries, maxSize)

	return &SizeHistogram{
		boundaries: boundaries,
		buckets:    make([]int64, len(boundaries)+1),
		sectorSize: sectorSize,
		maxSize:    maxSize,
	}
}

// AddSample adds a size sample to the histogram
//
// Thread-safe: This method is safe for concurrent use
func (h *SizeHistogram) AddSample(size int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	bucketIndex := len(h.boundaries) // overflow bucket
	for i, boundary := range h.boundaries {
		if size <= boundary {
			bucketIndex = i
			break
		}
	}

	h.buckets[bucketIndex]++
	h.count++
	h.sum += int64(size)
	h.sectorSum += int64(AlignUp(max(size, 1), h.sectorSize))
}

// Count returns the total number of samples
//
// Thread-safe: This method is safe for concurrent use
func (h *SizeHistogram) Count() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.count
}

// TotalBytes returns the sum of all sampled sizes
//
// Thread-safe: This method is safe for concurrent use
func (h *SizeHistogram) TotalBytes() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.sum
}

// SectorBytes returns the sum of all sampled sizes rounded up to whole sectors
//
// Thread-safe: This method is safe for concurrent use
func (h *SizeHistogram) SectorBytes() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.sectorSum
}

// AverageSize returns the average size across all samples
//
// Thread-safe: This method is safe for concurrent use
func (h *SizeHistogram) AverageSize() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 {
		return 0
	}
	return int(h.sum / h.count)
}

// PercentileEstimate returns an estimate for the given percentile (0-100)
// using the midpoint of the bucket the percentile falls into
//
// Thread-safe: This method is safe for concurrent use
func (h *SizeHistogram) PercentileEstimate(percentile int) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 || percentile < 0 || percentile > 100 {
		return 0
	}

	targetCount := int64(math.Ceil(float64(h.count) * float64(percentile) / 100.0))
	cumulativeCount := int64(0)

	for i, count := range h.buckets {
		cumulativeCount += count
		if cumulativeCount >= targetCount {
			switch {
			case i == 0:
				return h.boundaries[0] / 2
			case i < len(h.boundaries):
				return (h.boundaries[i-1] + h.boundaries[i]) / 2
			default:
				return h.maxSize
			}
		}
	}

	return int(h.sum / h.count)
}

// Distribution returns the bucket boundaries and the percentage of samples
// in each bucket (the last percentage is the overflow bucket)
//
// Thread-safe: This method is safe for concurrent use
func (h *SizeHistogram) Distribution() ([]int, []float64) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	percentages := make([]float64, len(h.buckets))
	if h.count == 0 {
		return h.boundaries, percentages
	}

	for i, count := range h.buckets {
		percentages[i] = float64(count) * 100.0 / float64(h.count)
	}

	return h.boundaries, percentages
}

// Reset clears all histogram data
//
// Thread-safe: This method is safe for concurrent use
func (h *SizeHistogram) Reset() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.count = 0
	h.sum = 0
	h.sectorSum = 0
	for i := range h.buckets {
		h.buckets[i] = 0
	}
}
