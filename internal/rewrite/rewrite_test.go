package rewrite

import (
	"context"
	"strings"
	"testing"

	"github.com/agentic-research/alchemy/api"
	"github.com/agentic-research/alchemy/internal/extract"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var strategies = []Strategy{StrategySplice, StrategyLine}

const argparseSource = "import argparse  \n" +
	"\n" +
	"parser = argparse.ArgumentParser()\n" +
	"parser.add_argument('--lr', default=0.001, type=float, help='learning rate')   \n" +
	"parser.add_argument('--name', default='run_5', type=str, help='run name')\n" +
	"parser.add_argument('--epochs', default=10, type=int)\n" +
	"parser.add_argument('--lr_decay', default=0.5, type=float)\t\n" +
	"parser.add_argument('--flag', action='store_true')\n" +
	"args = parser.parse_args()\n"

func extractParams(t *testing.T, src string, kind api.Kind) []api.Param {
	t.Helper()
	params, err := extract.Params(context.Background(), []byte(src), "script.py", kind)
	require.NoError(t, err)
	return params
}

func noopEdits(params []api.Param) []Edit {
	var edits []Edit
	for _, p := range params {
		if p.Name == "" || p.Value.ReadOnly() {
			continue
		}
		edits = append(edits, Edit{Name: p.Name, Text: p.Value.Text})
	}
	return edits
}

func TestApply_RoundTripWithoutChange(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			before := extractParams(t, argparseSource, api.KindArgparse)
			res, err := Apply([]byte(argparseSource), api.KindArgparse, before, noopEdits(before), strategy)
			require.NoError(t, err)

			assert.Equal(t, argparseSource, string(res.Content))
			assert.True(t, res.Changed.IsEmpty())

			after := extractParams(t, string(res.Content), api.KindArgparse)
			if diff := cmp.Diff(before, after); diff != "" {
				t.Errorf("params changed after round trip (-before +after):\n%s", diff)
			}
		})
	}
}

func TestApply_ArgparseChangesOnlyDeclarationLine(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			params := extractParams(t, argparseSource, api.KindArgparse)
			res, err := Apply([]byte(argparseSource), api.KindArgparse, params,
				[]Edit{{Name: "--lr", Text: "0.01"}}, strategy)
			require.NoError(t, err)

			assert.Equal(t, []uint32{3}, res.Changed.ToArray())

			before := strings.SplitAfter(argparseSource, "\n")
			after := strings.SplitAfter(string(res.Content), "\n")
			require.Len(t, after, len(before))
			for i := range before {
				if i == 3 {
					assert.Equal(t, "parser.add_argument('--lr', default=0.01, type=float, help='learning rate')   \n", after[i])
					continue
				}
				assert.Equal(t, before[i], after[i], "line %d", i)
			}
		})
	}
}

func TestApply_ArgparseQuotesStrings(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			params := extractParams(t, argparseSource, api.KindArgparse)
			res, err := Apply([]byte(argparseSource), api.KindArgparse, params,
				[]Edit{{Name: "--name", Text: "run_0"}, {Name: "--epochs", Text: "20"}}, strategy)
			require.NoError(t, err)

			got := string(res.Content)
			assert.Contains(t, got, "parser.add_argument('--name', default='run_0', type=str, help='run name')\n")
			assert.Contains(t, got, "parser.add_argument('--epochs', default=20, type=int)\n")
			assert.Contains(t, got, "parser.add_argument('--lr_decay', default=0.5, type=float)\t\n")
			assert.Equal(t, []uint32{4, 5}, res.Changed.ToArray())
		})
	}
}

func TestApply_ArgparseWithoutDefaultIsSkipped(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			params := extractParams(t, argparseSource, api.KindArgparse)
			res, err := Apply([]byte(argparseSource), api.KindArgparse, params,
				[]Edit{{Name: "--flag", Text: "x"}}, strategy)
			require.NoError(t, err)
			assert.Equal(t, argparseSource, string(res.Content))
			assert.Equal(t, []string{"--flag"}, res.Skipped)
		})
	}
}

func TestApply_UnknownParam(t *testing.T) {
	params := extractParams(t, argparseSource, api.KindArgparse)
	_, err := Apply([]byte(argparseSource), api.KindArgparse, params, []Edit{{Name: "--missing", Text: "1"}}, StrategySplice)
	assert.ErrorIs(t, err, ErrUnknownParam)
}

const configSource = `import os

class Config:
    def __init__(self):
        self.lr = 0.01
        self.lr_decay = 0.9
        self.name = "resnet"   # model name
        self.layers = [64, 128]
        self.debug = False

    def describe(self):
        return self.name
`

func TestApply_Config(t *testing.T) {
	params := extractParams(t, configSource, api.KindConfig)

	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			res, err := Apply([]byte(configSource), api.KindConfig, params,
				[]Edit{{Name: "lr", Text: "0.05"}, {Name: "debug", Text: "True"}}, strategy)
			require.NoError(t, err)

			got := string(res.Content)
			assert.Contains(t, got, "        self.lr = 0.05\n")
			assert.Contains(t, got, "        self.lr_decay = 0.9\n", "prefix names must not match")
			assert.Contains(t, got, "        self.debug = True\n")
			assert.Equal(t, []uint32{4, 8}, res.Changed.ToArray())
		})
	}
}

func TestApply_ConfigStringKeepsQuoteStyle(t *testing.T) {
	params := extractParams(t, configSource, api.KindConfig)

	res, err := Apply([]byte(configSource), api.KindConfig, params, []Edit{{Name: "name", Text: "vit"}}, StrategySplice)
	require.NoError(t, err)
	assert.Contains(t, string(res.Content), `        self.name = "vit"   # model name`+"\n")

	// The line heuristic replaces everything after the first '=', comment included.
	res, err = Apply([]byte(configSource), api.KindConfig, params, []Edit{{Name: "name", Text: "vit"}}, StrategyLine)
	require.NoError(t, err)
	assert.Contains(t, string(res.Content), `        self.name = "vit"`+"\n")
}

func TestApply_ConfigReadOnly(t *testing.T) {
	params := extractParams(t, configSource, api.KindConfig)
	_, err := Apply([]byte(configSource), api.KindConfig, params, []Edit{{Name: "layers", Text: "[1]"}}, StrategySplice)
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestApply_ConfigLineHeuristicStopsAtBareCall(t *testing.T) {
	src := `class Config:
    def __init__(self):
        self.lr = 0.1
        self.setup()
        self.epochs = 5
`
	params := extractParams(t, src, api.KindConfig)

	res, err := Apply([]byte(src), api.KindConfig, params, []Edit{{Name: "epochs", Text: "9"}}, StrategyLine)
	require.NoError(t, err)
	assert.Equal(t, src, string(res.Content), "line scan ends the constructor at self.setup()")
	assert.Equal(t, []string{"epochs"}, res.Skipped)

	res, err = Apply([]byte(src), api.KindConfig, params, []Edit{{Name: "epochs", Text: "9"}}, StrategySplice)
	require.NoError(t, err)
	assert.Contains(t, string(res.Content), "        self.epochs = 9\n")
}

const dictSource = `parameter = {
    'lr': 0.1,
    'optimizer': 'adam',
    'momentum': 0.9
}
other = {'lr': 1}
`

func TestApply_Dict(t *testing.T) {
	params := extractParams(t, dictSource, api.KindDict)
	require.Len(t, params, 3)

	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			res, err := Apply([]byte(dictSource), api.KindDict, params, []Edit{
				{Name: "lr", Text: "0.2"},
				{Name: "optimizer", Text: "sgd"},
				{Name: "momentum", Text: "0.8"},
			}, strategy)
			require.NoError(t, err)

			want := `parameter = {
    'lr': 0.2,
    'optimizer': 'sgd',
    'momentum': 0.8
}
other = {'lr': 1}
`
			assert.Equal(t, want, string(res.Content))
			assert.Equal(t, []uint32{1, 2, 3}, res.Changed.ToArray())
		})
	}
}

func TestApply_UnknownStrategy(t *testing.T) {
	params := extractParams(t, dictSource, api.KindDict)
	_, err := Apply([]byte(dictSource), api.KindDict, params, nil, Strategy("ast"))
	assert.Error(t, err)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategySplice, s)

	s, err = ParseStrategy("line")
	require.NoError(t, err)
	assert.Equal(t, StrategyLine, s)

	_, err = ParseStrategy("tree")
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	str := api.Param{Kind: api.KindDict, Value: api.Value{Type: api.TypeString, Quote: `"`}}
	assert.Equal(t, `"it's"`, Render(str, "it's"))
	assert.Equal(t, `"say \"hi\""`, Render(str, `say "hi"`))

	arg := api.Param{Kind: api.KindArgparse, DeclaredType: "str", Value: api.Value{Type: api.TypeNone}}
	assert.Equal(t, "None", Render(arg, "None"))
	assert.Equal(t, "'x'", Render(arg, "x"))

	num := api.Param{Kind: api.KindConfig, Value: api.Value{Type: api.TypeInt}}
	assert.Equal(t, "1e-3x", Render(num, "1e-3x"), "malformed numbers are written verbatim")
}

func TestRender_KeepsLiteralAsWritten(t *testing.T) {
	escaped := api.Param{Kind: api.KindArgparse, DeclaredType: "str",
		Value: api.Value{Type: api.TypeString, Raw: `'\x2c'`, Text: ",", Quote: "'"}}
	assert.Equal(t, `'\x2c'`, Render(escaped, ","), "unchanged text keeps the escape")
	assert.Equal(t, `';'`, Render(escaped, ";"))

	raw := api.Param{Kind: api.KindArgparse, DeclaredType: "str",
		Value: api.Value{Type: api.TypeString, Raw: `r'\d+'`, Text: `\d+`, Quote: "'"}}
	assert.Equal(t, `r'\d+'`, Render(raw, `\d+`))
	assert.Equal(t, `r'\w+'`, Render(raw, `\w+`))
	assert.Equal(t, `'it\'s'`, Render(raw, "it's"), "text a raw literal cannot hold drops the prefix")
	assert.Equal(t, `'a\\'`, Render(raw, `a\`))

	untyped := api.Param{Kind: api.KindArgparse, DeclaredType: "str",
		Value: api.Value{Type: api.TypeInt, Raw: "10", Text: "10"}}
	assert.Equal(t, "20", Render(untyped, "20"), "a numeric default stays numeric")
}

func TestApply_SharedValueSplicedOnce(t *testing.T) {
	src := "class Config:\n    def __init__(self):\n        self.a = self.b = 1\n        self.lr = 0.1\n"
	params := extractParams(t, src, api.KindConfig)

	res, err := Apply([]byte(src), api.KindConfig, params,
		[]Edit{{Name: "a", Text: "2"}, {Name: "b", Text: "2"}, {Name: "lr", Text: "0.1"}}, StrategySplice)
	require.NoError(t, err)
	assert.Equal(t, "class Config:\n    def __init__(self):\n        self.a = self.b = 2\n        self.lr = 0.1\n", string(res.Content))

	_, err = Apply([]byte(src), api.KindConfig, params,
		[]Edit{{Name: "a", Text: "2"}, {Name: "b", Text: "3"}}, StrategySplice)
	assert.ErrorIs(t, err, ErrConflict)
}
