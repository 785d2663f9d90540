// Package pathtmpl turns a concrete dataset path into a template with its
// numeric components replaced by a placeholder, and expands such templates
// into an ordered family of per-run paths.
package pathtmpl

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Placeholder stands for the run number in a templated path.
const Placeholder = "{num}"

var digitRun = regexp.MustCompile(`\d+`)

// ErrNoPlaceholder is returned when expanding a template without Placeholder.
var ErrNoPlaceholder = errors.New("path template has no " + Placeholder + " placeholder")

// Templatize replaces every maximal run of decimal digits in path with
// Placeholder. A path without digits is returned unchanged.
func Templatize(path string) string {
	return digitRun.ReplaceAllLiteralString(path, Placeholder)
}

// Expand substitutes 1..num into every placeholder of template and returns
// the num resulting paths in ascending order.
func Expand(template string, num int) ([]string, error) {
	if !strings.Contains(template, Placeholder) {
		return nil, fmt.Errorf("%w: %q", ErrNoPlaceholder, template)
	}
	if num < 1 {
		return nil, fmt.Errorf("expand %q: count must be at least 1, got %d", template, num)
	}
	paths := make([]string, 0, num)
	for i := 1; i <= num; i++ {
		paths = append(paths, strings.ReplaceAll(template, Placeholder, strconv.Itoa(i)))
	}
	return paths, nil
}

// Queue is a FIFO of expanded paths.
type Queue struct {
	paths []string
}

// NewQueue expands template into a queue.
func NewQueue(template string, num int) (*Queue, error) {
	paths, err := Expand(template, num)
	if err != nil {
		return nil, err
	}
	return &Queue{paths: paths}, nil
}

// Pop removes and returns the next path.
func (q *Queue) Pop() (string, bool) {
	if q == nil || len(q.paths) == 0 {
		return "", false
	}
	p := q.paths[0]
	q.paths = q.paths[1:]
	return p, true
}

// Len returns the number of paths left.
func (q *Queue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.paths)
}

// Pair is one (train, test) dataset pair.
type Pair struct {
	Train string
	Test  string
}

// Pairs pops train and test paths in lockstep.
type Pairs struct {
	Train *Queue
	Test  *Queue
}

// NewPairs templatizes both concrete paths and expands them num times.
func NewPairs(trainPath, testPath string, num int) (*Pairs, error) {
	train, err := NewQueue(Templatize(trainPath), num)
	if err != nil {
		return nil, fmt.Errorf("train path: %w", err)
	}
	test, err := NewQueue(Templatize(testPath), num)
	if err != nil {
		return nil, fmt.Errorf("test path: %w", err)
	}
	return &Pairs{Train: train, Test: test}, nil
}

// Next pops one path from each queue. ok is false unless both queues still
// had a path; a path popped from the non-empty side is consumed regardless.
func (p *Pairs) Next() (Pair, bool) {
	train, okTrain := p.Train.Pop()
	test, okTest := p.Test.Pop()
	return Pair{Train: train, Test: test}, okTrain && okTest
}
