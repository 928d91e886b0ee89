package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/KaramelBytes/lapboard-cli/internal/telemetry"
)

type csvLoader struct{}

func (csvLoader) CanLoad(filename string) bool {
	name := strings.ToLower(filename)
	return strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".tsv")
}

// Load reads a delimited file. Every cell is Text, or Empty when blank.
func (csvLoader) Load(r io.Reader, opt Options) (*Table, error) {
	br := bufio.NewReader(r)
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(br)
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	cr.Comma = delim

	t := &Table{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if t.Header == nil {
			if len(rec) > 0 {
				rec[0] = strings.TrimPrefix(rec[0], "\ufeff")
			}
			t.Header = append([]string(nil), rec...)
			continue
		}
		cells := make([]telemetry.Cell, len(rec))
		for i, v := range rec {
			if strings.TrimSpace(v) == "" {
				cells[i] = telemetry.Empty{}
			} else {
				cells[i] = telemetry.Text(v)
			}
		}
		if blank(cells) {
			continue
		}
		t.Rows = append(t.Rows, Row{Line: line, Cells: cells})
	}
	return t, nil
}

// sniffDelimiter picks the most frequent of ',', ';' and tab on the header
// line, defaulting to a comma.
func sniffDelimiter(br *bufio.Reader) rune {
	head, _ := br.Peek(4096)
	first := string(head)
	if i := strings.IndexByte(first, '\n'); i >= 0 {
		first = first[:i]
	}
	best, n := ',', strings.Count(first, ",")
	for _, d := range []rune{';', '\t'} {
		if c := strings.Count(first, string(d)); c > n {
			best, n = d, c
		}
	}
	return best
}
