// Package plot renders parsed training metrics as terminal line charts.
package plot

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/agentic-research/alchemy/internal/metrics"
	"github.com/charmbracelet/lipgloss"
)

// Options size each chart's plotting area in terminal cells.
type Options struct {
	Width  int
	Height int
}

// DefaultOptions fit two grid panels side by side in a 120 column terminal.
var DefaultOptions = Options{Width: 48, Height: 12}

const gridColumns = 2

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	axisStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)

	palette = []lipgloss.Color{"42", "39", "214", "203", "135", "226", "51", "208"}
	markers = []rune{'●', '■', '▲', '◆', '○', '□', '△', '◇'}
)

// Ticks thins epochs to at most about ten evenly spaced labels.
func Ticks(epochs []int) []int {
	var out []int
	for i := 0; i < len(epochs); i += tickStep(len(epochs)) {
		out = append(out, epochs[i])
	}
	return out
}

func tickStep(n int) int {
	return max(1, n/10)
}

// Combined writes one chart overlaying every metric whose sample count
// matches the epoch count. Mismatched metrics are left out.
func Combined(w io.Writer, res metrics.Result, opts Options) error {
	series := res.Aligned()
	c := chart{title: "Training metrics", yLabel: "Metrics", epochs: res.Epochs, series: series, opts: normalize(opts)}
	_, err := io.WriteString(w, c.render()+"\n")
	return err
}

// Grid writes one chart per aligned metric, two per row. Cells that would
// stay empty are not rendered.
func Grid(w io.Writer, res metrics.Result, opts Options) error {
	series := res.Aligned()
	opts = normalize(opts)

	var rows []string
	for i := 0; i < len(series); i += gridColumns {
		var cells []string
		for j := i; j < i+gridColumns && j < len(series); j++ {
			c := chart{
				title:  series[j].Name,
				yLabel: series[j].Name,
				epochs: res.Epochs,
				series: series[j : j+1],
				opts:   opts,
				color:  j,
			}
			cells = append(cells, panelStyle.Render(c.render()))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	if len(rows) == 0 {
		return nil
	}
	_, err := io.WriteString(w, lipgloss.JoinVertical(lipgloss.Left, rows...)+"\n")
	return err
}

func normalize(opts Options) Options {
	if opts.Width < 8 {
		opts.Width = DefaultOptions.Width
	}
	if opts.Height < 3 {
		opts.Height = DefaultOptions.Height
	}
	return opts
}

type chart struct {
	title  string
	yLabel string
	epochs []int
	series []metrics.Series
	opts   Options
	// color offsets the palette so grid panels keep their combined-chart colors.
	color int
}

type cell struct {
	r      rune
	series int // -1 for empty
}

func (c chart) render() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(c.title))
	b.WriteString("\n")
	b.WriteString(axisStyle.Render(c.yLabel))
	b.WriteString("\n")

	if len(c.epochs) == 0 || len(c.series) == 0 {
		b.WriteString(axisStyle.Render("(no data to plot)"))
		return b.String()
	}

	width, height := c.opts.Width, c.opts.Height
	ymin, ymax := c.yRange()

	grid := make([][]cell, height)
	for r := range grid {
		grid[r] = make([]cell, width)
		for col := range grid[r] {
			grid[r][col] = cell{r: ' ', series: -1}
		}
	}

	for si, s := range c.series {
		prevCol, prevRow := -1, -1
		for i, v := range s.Values {
			col := c.column(i, width)
			row := scale(v, ymin, ymax, height)
			if prevCol >= 0 && col-prevCol > 1 {
				for x := prevCol + 1; x < col; x++ {
					y := prevRow + int(math.Round(float64(row-prevRow)*float64(x-prevCol)/float64(col-prevCol)))
					if grid[y][x].series < 0 {
						grid[y][x] = cell{r: '·', series: si}
					}
				}
			}
			grid[row][col] = cell{r: markers[(c.color+si)%len(markers)], series: si}
			prevCol, prevRow = col, row
		}
	}

	labels := map[int]string{
		0:          formatValue(ymax),
		height / 2: formatValue((ymin + ymax) / 2),
		height - 1: formatValue(ymin),
	}
	labelWidth := 0
	for _, l := range labels {
		if len(l) > labelWidth {
			labelWidth = len(l)
		}
	}

	for r, line := range grid {
		b.WriteString(axisStyle.Render(fmt.Sprintf("%*s │", labelWidth, labels[r])))
		for _, cl := range line {
			if cl.series < 0 {
				b.WriteRune(cl.r)
				continue
			}
			b.WriteString(c.style(cl.series).Render(string(cl.r)))
		}
		b.WriteString("\n")
	}

	pad := strings.Repeat(" ", labelWidth+1)
	b.WriteString(axisStyle.Render(pad + "└" + strings.Repeat("─", width)))
	b.WriteString("\n")
	b.WriteString(axisStyle.Render(pad + " " + c.tickLine(width)))
	b.WriteString("\n")
	b.WriteString(axisStyle.Render(pad + " Epoch"))

	b.WriteString("\n")
	legend := make([]string, len(c.series))
	for si, s := range c.series {
		legend[si] = c.style(si).Render(string(markers[(c.color+si)%len(markers)])) + " " + s.Name
	}
	b.WriteString(strings.Join(legend, "  "))
	return b.String()
}

func (c chart) style(si int) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(palette[(c.color+si)%len(palette)])
}

// column maps sample i to an x cell using the epoch value, falling back to
// the sample index when all epochs are equal.
func (c chart) column(i, width int) int {
	if len(c.epochs) < 2 {
		return 0
	}
	lo, hi := c.epochs[0], c.epochs[0]
	for _, e := range c.epochs {
		lo = min(lo, e)
		hi = max(hi, e)
	}
	var frac float64
	if hi == lo {
		frac = float64(i) / float64(len(c.epochs)-1)
	} else {
		frac = float64(c.epochs[i]-lo) / float64(hi-lo)
	}
	return int(math.Round(frac * float64(width-1)))
}

func (c chart) tickLine(width int) string {
	line := []rune(strings.Repeat(" ", width+8))
	next := 0
	for i := 0; i < len(c.epochs); i += tickStep(len(c.epochs)) {
		col := c.column(i, width)
		label := strconv.Itoa(c.epochs[i])
		if col < next {
			continue
		}
		copy(line[col:], []rune(label))
		next = col + len(label) + 1
	}
	return strings.TrimRight(string(line), " ")
}

func (c chart) yRange() (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range c.series {
		for _, v := range s.Values {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if hi == lo {
		pad := math.Abs(lo) * 0.1
		if pad == 0 {
			pad = 1
		}
		lo, hi = lo-pad, hi+pad
	}
	return lo, hi
}

func scale(v, lo, hi float64, height int) int {
	frac := (v - lo) / (hi - lo)
	row := height - 1 - int(math.Round(frac*float64(height-1)))
	return max(0, min(height-1, row))
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', 4, 64)
}
