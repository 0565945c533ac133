package bead

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Bead models are exchanged as fixed-column PDB-style text. Records whose
// line begins with the ATOM tag carry the X, Y, Z coordinates at character
// columns 30-38, 38-46 and 46-54, each formatted %8.3f; every other line is
// opaque template material reproduced verbatim on write.
const (
	atomTag  = "ATOM"
	xBegin   = 30
	coordEnd = 54
)

// ParseError reports a malformed coordinate field in an atom record.
type ParseError struct {
	Line int // 1-based line number
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("bead: line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Read populates the model from PDB-style text. Atom records contribute
// one bead each; all lines, atom records included, are retained as the
// serialization template.
func (m *Model) Read(r io.Reader) error {
	br := bufio.NewReader(r)
	var header []string
	var atoms []r3.Vec
	lineNo := 0
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			lineNo++
			if strings.HasPrefix(line, atomTag) {
				p, perr := parseAtomRecord(line)
				if perr != nil {
					return &ParseError{Line: lineNo, Err: perr}
				}
				atoms = append(atoms, p)
			}
			header = append(header, line)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("bead: read: %w", err)
		}
	}
	m.header = header
	m.Atoms = atoms
	return nil
}

// ReadFile loads the model from a file.
func (m *Model) ReadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("bead: open %s: %w", path, err)
	}
	defer f.Close()
	if err := m.Read(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func parseAtomRecord(line string) (r3.Vec, error) {
	// Strip the terminator before checking the record is wide enough to
	// hold the three coordinate fields.
	body := strings.TrimRight(line, "\r\n")
	if len(body) < coordEnd {
		return r3.Vec{}, fmt.Errorf("atom record too short (%d columns, need %d)", len(body), coordEnd)
	}
	var c [3]float64
	for i := 0; i < 3; i++ {
		field := strings.TrimSpace(body[xBegin+8*i : xBegin+8*(i+1)])
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return r3.Vec{}, fmt.Errorf("coordinate %d: %q is not a number", i+1, field)
		}
		c[i] = v
	}
	return r3.Vec{X: c[0], Y: c[1], Z: c[2]}, nil
}

// Write serializes the model by replaying the header template, rewriting
// the coordinate columns of each atom record from the current atoms in
// order. If the model now holds fewer atoms than the template has atom
// records, the trailing records are dropped; holding more is an error.
func (m *Model) Write(w io.Writer) error {
	header := m.header
	if header == nil {
		header = syntheticHeader(len(m.Atoms), m.Radius)
	}
	records := 0
	for _, line := range header {
		if strings.HasPrefix(line, atomTag) {
			records++
		}
	}
	if len(m.Atoms) > records {
		return fmt.Errorf("bead: %d atoms exceed the %d atom records of the template", len(m.Atoms), records)
	}

	bw := bufio.NewWriter(w)
	nr := 0
	for _, line := range header {
		if strings.HasPrefix(line, atomTag) {
			if nr >= len(m.Atoms) {
				nr++
				continue
			}
			a := m.Atoms[nr]
			coords := fmt.Sprintf("%8.3f%8.3f%8.3f", a.X, a.Y, a.Z)
			line = line[:xBegin] + coords + line[coordEnd:]
			nr++
		}
		if _, err := bw.WriteString(line); err != nil {
			return fmt.Errorf("bead: write: %w", err)
		}
	}
	return bw.Flush()
}

// WriteFile serializes the model to a file.
func (m *Model) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("bead: create %s: %w", path, err)
	}
	if err := m.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Header returns the raw header lines the model was loaded from. The
// returned slice is the model's own copy and must not be shared between
// models.
func (m *Model) Header() []string {
	return m.header
}

// SetHeader replaces the serialization template, e.g. to hand a
// programmatically built model a template from a sibling reconstruction.
func (m *Model) SetHeader(lines []string) {
	m.header = append([]string(nil), lines...)
}

// syntheticHeader builds a minimal template for models that were never
// loaded from a file, one dummy-atom record per bead.
func syntheticHeader(n int, radius float64) []string {
	lines := make([]string, 0, n+1)
	lines = append(lines, fmt.Sprintf("REMARK 265 dummy atom model, radius %.2f\n", radius))
	for i := 0; i < n; i++ {
		lines = append(lines, fmt.Sprintf(
			"ATOM  %5d  CA  ASP A%4d    %8.3f%8.3f%8.3f  1.00 20.00\n",
			i+1, i+1, 0.0, 0.0, 0.0))
	}
	return lines
}
