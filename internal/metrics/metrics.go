// Package metrics extracts epoch markers and key=value measurements from
// training script output.
package metrics

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	epochPattern  = regexp.MustCompile(`Epoch\s*[:=]\s*(\d+)`)
	metricPattern = regexp.MustCompile(`([a-zA-Z_ ]+)\s*[:=]\s*([\d.]+)`)
)

// Series is the samples of one metric in output order.
type Series struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Result is the outcome of scanning one run's output.
type Result struct {
	Epochs []int `json:"epochs"`
	// Metrics are ordered by first appearance. Only series with at least two
	// samples are kept.
	Metrics []Series `json:"metrics"`
}

// Get returns the series named name.
func (r Result) Get(name string) ([]float64, bool) {
	for _, s := range r.Metrics {
		if s.Name == name {
			return s.Values, true
		}
	}
	return nil, false
}

// Aligned returns the metrics whose sample count equals the epoch count.
// Only these can be plotted against the epoch axis.
func (r Result) Aligned() []Series {
	var out []Series
	for _, s := range r.Metrics {
		if len(s.Values) == len(r.Epochs) {
			out = append(out, s)
		}
	}
	return out
}

// Parse scans text line by line. A line matching the epoch marker adds an
// epoch and is not scanned for metrics. Values that are not valid numbers
// (such as "1.2.3") are ignored.
func Parse(text string) Result {
	res := Result{Epochs: []int{}, Metrics: []Series{}}
	index := make(map[string]int)

	for _, line := range strings.Split(text, "\n") {
		if m := epochPattern.FindStringSubmatch(line); m != nil {
			if epoch, err := strconv.Atoi(m[1]); err == nil {
				res.Epochs = append(res.Epochs, epoch)
			}
			continue
		}

		for _, m := range metricPattern.FindAllStringSubmatch(line, -1) {
			key := strings.ReplaceAll(strings.TrimSpace(m[1]), " ", "_")
			value, err := strconv.ParseFloat(m[2], 64)
			if err != nil {
				continue
			}
			i, ok := index[key]
			if !ok {
				i = len(res.Metrics)
				index[key] = i
				res.Metrics = append(res.Metrics, Series{Name: key})
			}
			res.Metrics[i].Values = append(res.Metrics[i].Values, value)
		}
	}

	kept := res.Metrics[:0]
	for _, s := range res.Metrics {
		if len(s.Values) > 1 {
			kept = append(kept, s)
		}
	}
	res.Metrics = kept
	return res
}

// ParseLines is Parse over already split output lines.
func ParseLines(lines []string) Result {
	return Parse(strings.Join(lines, "\n"))
}
