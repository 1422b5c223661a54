package bias

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// WriteSurface writes the kept biases as tab separated text: a header row with the
// targets, then one row per parameter value starting with the value itself.
func WriteSurface(w io.Writer, result *Result) error {
	if len(result.Biases) != len(result.Params) {
		return fmt.Errorf("%w: sweep %v kept no biases", ErrInvalidData, result.Name)
	}
	var bw = bufio.NewWriter(w)
	var line []byte
	writeRow := func(head string, values []float64) error {
		line = append(line[:0], head...)
		for _, v := range values {
			line = append(line, '\t')
			line = strconv.AppendFloat(line, v, 'g', -1, 64)
		}
		line = append(line, '\n')
		_, err := bw.Write(line)
		return err
	}
	if err := writeRow(result.Name, result.Targets); err != nil {
		return err
	}
	for i, x := range result.Params {
		if err := writeRow(strconv.FormatFloat(x, 'g', -1, 64), result.Biases[i]); err != nil {
			return err
		}
	}
	return bw.Flush()
}
