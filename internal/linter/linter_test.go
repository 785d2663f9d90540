package linter

import (
	"context"
	"testing"

	"github.com/agentic-research/alchemy/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func byName(diags []Diagnostic, name string) []Diagnostic {
	var out []Diagnostic
	for _, d := range diags {
		if d.Name == name {
			out = append(out, d)
		}
	}
	return out
}

func TestLint_Argparse(t *testing.T) {
	src := []byte(`import argparse
parser = argparse.ArgumentParser()
parser.add_argument('--lr', type=float, default=0.01)
parser.add_argument('--name', default=os.environ['X'])
parser.add_argument(default=3)
parser.add_argument('--epochs', type=int)
parser.add_argument('--batch',
                    type=int, default=32)
`)
	diags, err := Lint(context.Background(), src, "train.py", api.KindArgparse)
	require.NoError(t, err)

	assert.Empty(t, byName(diags, "--lr"))

	name := byName(diags, "--name")
	require.Len(t, name, 1)
	assert.Equal(t, Error, name[0].Severity)
	assert.Equal(t, uint32(3), name[0].Line)
	assert.Contains(t, name[0].Message, "read-only")

	unnamed := byName(diags, "")
	require.Len(t, unnamed, 1)
	assert.Equal(t, Error, unnamed[0].Severity)

	epochs := byName(diags, "--epochs")
	require.Len(t, epochs, 1)
	assert.Contains(t, epochs[0].Message, "no default=")

	batch := byName(diags, "--batch")
	require.Len(t, batch, 2)
	assert.Contains(t, batch[0].Message, "value starts on line 8")
	assert.Contains(t, batch[1].Message, "line strategy cannot locate")

	for i := 1; i < len(diags); i++ {
		assert.LessOrEqual(t, diags[i-1].Line, diags[i].Line)
	}
}

func TestLint_ArgparseDuplicate(t *testing.T) {
	src := []byte(`parser.add_argument('--lr', default=0.1)
parser.add_argument('--lr', default=0.2)
`)
	diags, err := Lint(context.Background(), src, "train.py", api.KindArgparse)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, uint32(1), diags[0].Line)
	assert.Contains(t, diags[0].Message, "declared more than once (first on line 1)")
}

func TestLint_ConfigLineStrategyLimits(t *testing.T) {
	src := []byte(`class Config:
    def __init__(self):
        self.lr = 0.1
        self.setup()
        self.epochs = 10
        self.a = 1; self.b = 2
`)
	diags, err := Lint(context.Background(), src, "config.py", api.KindConfig)
	require.NoError(t, err)

	assert.Empty(t, byName(diags, "lr"))

	epochs := byName(diags, "epochs")
	require.Len(t, epochs, 1)
	assert.Equal(t, Warning, epochs[0].Severity)
	assert.Contains(t, epochs[0].Message, "line strategy cannot locate")

	a := byName(diags, "a")
	require.NotEmpty(t, a)
	assert.Contains(t, a[0].Message, "shares line 6")

	b := byName(diags, "b")
	require.NotEmpty(t, b)
	assert.Contains(t, b[0].Message, "shares line 6")
}

func TestLint_CleanDict(t *testing.T) {
	src := []byte(`parameter = {
    'lr': 0.001,
    'name': "resnet",
}
`)
	diags, err := Lint(context.Background(), src, "params.py", api.KindDict)
	require.NoError(t, err)
	assert.Empty(t, diags)
}

func TestLint_SyntaxErrors(t *testing.T) {
	diags, err := Lint(context.Background(), []byte("parameter = {'lr': ,}\nx = 1\ndef f(:\n    pass\n"), "params.py", api.KindDict)
	require.NoError(t, err)
	require.NotEmpty(t, diags)
	for _, d := range diags {
		assert.Equal(t, Error, d.Severity)
		assert.Empty(t, d.Name)
		assert.Contains(t, d.Message, "at column")
	}
	assert.Equal(t, uint32(0), diags[0].Line)

	diags, err = Lint(context.Background(), []byte("x = 1\ny = 2\ndef f(:\n    pass\n"), "train.py", api.KindArgparse)
	require.NoError(t, err)
	require.NotEmpty(t, diags)
	assert.Equal(t, uint32(2), diags[0].Line)
	assert.Equal(t, Error, diags[0].Severity)
}

func TestDiagnostic_String(t *testing.T) {
	d := Diagnostic{Name: "lr", Severity: Warning, Message: "something", Line: 2}
	assert.Equal(t, "line 3: warning: lr: something", d.String())
	assert.Equal(t, "line 1: error: <unnamed>: x", Diagnostic{Severity: Error, Message: "x"}.String())
}
