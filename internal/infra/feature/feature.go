// Package feature extracts fixed-length numeric vectors from traffic
// samples for the detection ensemble. Five groups — temporal (5),
// behavioral (5), packet (8), statistical (6), network (5) — concatenate
// to a 29-dimension vector over a sliding history of the last 100 samples.
package feature

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/sentrymesh/sentry/internal/domain"
)

const (
	// HistorySize is the sliding sample history length.
	HistorySize = 100

	// minSamples is the history size below which extraction yields zeros.
	minSamples = 10

	// VectorLen is the concatenated feature vector length.
	VectorLen = 29
)

// Set holds the five feature groups of one extraction.
type Set struct {
	Temporal    [5]float64
	Behavioral  [5]float64
	Packet      [8]float64
	Statistical [6]float64
	Network     [5]float64
}

// Vector concatenates the groups into one 29-dimension slice.
func (s Set) Vector() []float64 {
	v := make([]float64, 0, VectorLen)
	v = append(v, s.Temporal[:]...)
	v = append(v, s.Behavioral[:]...)
	v = append(v, s.Packet[:]...)
	v = append(v, s.Statistical[:]...)
	v = append(v, s.Network[:]...)
	return v
}

// Triggered names the feature signals that crossed their thresholds.
// The ensemble surfaces these in detection results.
func (s Set) Triggered() []string {
	var names []string
	if mean(s.Temporal[:]) > 5 {
		names = append(names, "unusual_temporal_pattern")
	}
	if s.Behavioral[2] > 3 {
		names = append(names, "multiple_protocols")
	}
	if s.Packet[7] > 2 {
		names = append(names, "variable_window_size")
	}
	if s.Statistical[0] > 3 {
		names = append(names, "high_entropy")
	}
	return names
}

// Extractor maintains the sliding sample history. Safe for concurrent use.
type Extractor struct {
	mu      sync.Mutex
	history []domain.TrafficSample
	rIdx    int
	rFull   bool
}

// NewExtractor returns an Extractor with an empty history.
func NewExtractor() *Extractor {
	return &Extractor{history: make([]domain.TrafficSample, HistorySize)}
}

// Extract appends the samples to the history and computes the feature set
// over the full retained window. Returns the zero set while the history
// holds fewer than 10 samples.
func (x *Extractor) Extract(samples []domain.TrafficSample) Set {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, s := range samples {
		x.history[x.rIdx] = s
		x.rIdx = (x.rIdx + 1) % HistorySize
		if x.rIdx == 0 {
			x.rFull = true
		}
	}

	window := x.window()
	if len(window) < minSamples {
		return Set{}
	}

	return Set{
		Temporal:    temporalFeatures(window),
		Behavioral:  behavioralFeatures(window),
		Packet:      packetFeatures(window),
		Statistical: statisticalFeatures(window),
		Network:     networkFeatures(window),
	}
}

// Len returns the current history size.
func (x *Extractor) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.rFull {
		return HistorySize
	}
	return x.rIdx
}

// window returns retained samples oldest first.
func (x *Extractor) window() []domain.TrafficSample {
	if !x.rFull {
		return x.history[:x.rIdx]
	}
	out := make([]domain.TrafficSample, 0, HistorySize)
	out = append(out, x.history[x.rIdx:]...)
	out = append(out, x.history[:x.rIdx]...)
	return out
}

// ─── Feature Groups ─────────────────────────────────────────────────────────

// temporalFeatures: inter-arrival mean, stddev, min, max, and event count.
func temporalFeatures(window []domain.TrafficSample) [5]float64 {
	var f [5]float64
	f[4] = float64(len(window))
	if len(window) < 2 {
		return f
	}

	gaps := make([]float64, 0, len(window)-1)
	for i := 1; i < len(window); i++ {
		gaps = append(gaps, window[i].Timestamp.Sub(window[i-1].Timestamp).Seconds())
	}
	f[0] = mean(gaps)
	f[1] = stddev(gaps, f[0])
	f[2] = minOf(gaps)
	f[3] = maxOf(gaps)
	return f
}

// behavioralFeatures: unique dest IPs, unique ports, unique protocols,
// port variety ratio, and event count.
func behavioralFeatures(window []domain.TrafficSample) [5]float64 {
	ips := make(map[string]bool)
	ports := make(map[int]bool)
	protocols := make(map[string]bool)
	for _, s := range window {
		ips[s.DestIP] = true
		ports[s.Port] = true
		protocols[s.Protocol] = true
	}
	return [5]float64{
		float64(len(ips)),
		float64(len(ports)),
		float64(len(protocols)),
		float64(len(ports)) / float64(len(window)),
		float64(len(window)),
	}
}

// packetFeatures: packet size mean/stddev/min/max, TTL mean/stddev, and
// TCP window mean/stddev.
func packetFeatures(window []domain.TrafficSample) [8]float64 {
	sizes := make([]float64, len(window))
	ttls := make([]float64, len(window))
	wins := make([]float64, len(window))
	for i, s := range window {
		sizes[i] = float64(s.PacketSize)
		ttls[i] = float64(s.TTL)
		wins[i] = float64(s.WindowSize)
	}

	sizeMean := mean(sizes)
	ttlMean := mean(ttls)
	winMean := mean(wins)
	return [8]float64{
		sizeMean,
		stddev(sizes, sizeMean),
		minOf(sizes),
		maxOf(sizes),
		ttlMean,
		stddev(ttls, ttlMean),
		winMean,
		stddev(wins, winMean),
	}
}

// statisticalFeatures: packet-size entropy, skewness, excess kurtosis,
// variance, p75, p25.
func statisticalFeatures(window []domain.TrafficSample) [6]float64 {
	sizes := make([]float64, len(window))
	counts := make(map[int]int)
	for i, s := range window {
		sizes[i] = float64(s.PacketSize)
		counts[s.PacketSize]++
	}

	var entropy float64
	n := float64(len(sizes))
	for _, c := range counts {
		p := float64(c) / n
		entropy -= p * math.Log2(p+1e-10)
	}

	m := mean(sizes)
	sd := stddev(sizes, m)
	var skew, kurt float64
	for _, v := range sizes {
		z := (v - m) / (sd + 1e-10)
		skew += z * z * z
		kurt += z * z * z * z
	}
	skew /= n
	kurt = kurt/n - 3

	sorted := make([]float64, len(sizes))
	copy(sorted, sizes)
	sort.Float64s(sorted)

	return [6]float64{
		entropy,
		skew,
		kurt,
		sd * sd,
		quantile(sorted, 0.75),
		quantile(sorted, 0.25),
	}
}

// networkFeatures: unique sources, unique destinations, max flow
// repetition, unique flows, and event count.
func networkFeatures(window []domain.TrafficSample) [5]float64 {
	sources := make(map[string]bool)
	dests := make(map[string]bool)
	flows := make(map[string]int)
	for _, s := range window {
		sources[s.SourceIP] = true
		dests[s.DestIP] = true
		flows[fmt.Sprintf("%s>%s", s.SourceIP, s.DestIP)]++
	}

	maxRepeat := 1.0
	for _, c := range flows {
		if float64(c) > maxRepeat {
			maxRepeat = float64(c)
		}
	}
	return [5]float64{
		float64(len(sources)),
		float64(len(dests)),
		maxRepeat,
		float64(len(flows)),
		float64(len(window)),
	}
}

// ─── Math ───────────────────────────────────────────────────────────────────

func mean(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

// stddev is the population standard deviation around the given mean.
func stddev(v []float64, m float64) float64 {
	var sq float64
	for _, x := range v {
		d := x - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(v)))
}

func minOf(v []float64) float64 {
	out := v[0]
	for _, x := range v[1:] {
		if x < out {
			out = x
		}
	}
	return out
}

func maxOf(v []float64) float64 {
	out := v[0]
	for _, x := range v[1:] {
		if x > out {
			out = x
		}
	}
	return out
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
