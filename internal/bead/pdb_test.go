package bead

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePDB = "REMARK 265 test reconstruction\n" +
	"REMARK 265 R factor : 0.105\n" +
	"ATOM      1  CA  ASP A   1      10.000   0.000   0.000  1.00 20.00\n" +
	"ATOM      2  CA  ASP A   2       0.000  10.500   0.000  1.00 20.00\n" +
	"ATOM      3  CA  ASP A   3       0.000   0.000 -10.250  1.00 20.00\n" +
	"TER\n" +
	"END\n"

func TestReadWrite(t *testing.T) {
	t.Parallel()

	t.Run("round trip is byte identical", func(t *testing.T) {
		t.Parallel()
		m := NewModel()
		require.NoError(t, m.Read(strings.NewReader(samplePDB)))
		require.Len(t, m.Atoms, 3)
		assert.InDelta(t, 10.0, m.Atoms[0].X, 1e-12)
		assert.InDelta(t, 10.5, m.Atoms[1].Y, 1e-12)
		assert.InDelta(t, -10.25, m.Atoms[2].Z, 1e-12)

		var out bytes.Buffer
		require.NoError(t, m.Write(&out))
		if diff := cmp.Diff(samplePDB, out.String()); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("fewer atoms drop trailing records", func(t *testing.T) {
		t.Parallel()
		m := NewModel()
		require.NoError(t, m.Read(strings.NewReader(samplePDB)))
		m.Atoms = m.Atoms[:2]

		var out bytes.Buffer
		require.NoError(t, m.Write(&out))
		got := out.String()
		assert.Equal(t, 2, strings.Count(got, "ATOM"))
		assert.Contains(t, got, "TER\n")
		assert.Contains(t, got, "END\n")
	})

	t.Run("more atoms than template fails", func(t *testing.T) {
		t.Parallel()
		m := NewModel()
		require.NoError(t, m.Read(strings.NewReader(samplePDB)))
		m.Atoms = append(m.Atoms, m.Atoms[0])

		var out bytes.Buffer
		assert.Error(t, m.Write(&out))
	})

	t.Run("malformed coordinate fails with ParseError", func(t *testing.T) {
		t.Parallel()
		bad := strings.Replace(samplePDB, "  10.000", "  xx.000", 1)
		m := NewModel()
		err := m.Read(strings.NewReader(bad))
		var perr *ParseError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, 3, perr.Line)
	})

	t.Run("short atom record fails", func(t *testing.T) {
		t.Parallel()
		m := NewModel()
		err := m.Read(strings.NewReader("ATOM  1 CA\n"))
		var perr *ParseError
		assert.True(t, errors.As(err, &perr))
	})

	t.Run("file without trailing newline round trips", func(t *testing.T) {
		t.Parallel()
		src := strings.TrimSuffix(samplePDB, "\n")
		m := NewModel()
		require.NoError(t, m.Read(strings.NewReader(src)))
		var out bytes.Buffer
		require.NoError(t, m.Write(&out))
		assert.Equal(t, src, out.String())
	})

	t.Run("synthetic template for programmatic models", func(t *testing.T) {
		t.Parallel()
		m := randomModel(t, 5, 4)
		var out bytes.Buffer
		require.NoError(t, m.Write(&out))
		assert.Equal(t, 4, strings.Count(out.String(), "ATOM"))

		// The output parses back to the same coordinates (to 3 decimals).
		back := NewModel()
		require.NoError(t, back.Read(strings.NewReader(out.String())))
		require.Len(t, back.Atoms, 4)
		for i := range back.Atoms {
			assert.InDelta(t, m.Atoms[i].X, back.Atoms[i].X, 5e-4)
			assert.InDelta(t, m.Atoms[i].Y, back.Atoms[i].Y, 5e-4)
			assert.InDelta(t, m.Atoms[i].Z, back.Atoms[i].Z, 5e-4)
		}
	})
}
