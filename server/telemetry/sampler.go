package telemetry

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type lineSampler struct {
	scanner *bufio.Scanner
}

// NewLineSampler returns a Sampler reading one level per line from r. Blank
// lines are skipped and io.EOF is returned once r is exhausted.
func NewLineSampler(r io.Reader) Sampler {
	return &lineSampler{scanner: bufio.NewScanner(r)}
}

func (s *lineSampler) Sample() (float64, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		level, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return 0, errors.Wrapf(ErrInvalidReading, "%q", line)
		}
		return level, nil
	}
	if err := s.scanner.Err(); err != nil {
		return 0, err
	}
	return 0, io.EOF
}
