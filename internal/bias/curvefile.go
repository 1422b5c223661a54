package bias

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

var ErrBadCurveFile = errors.New("bias: bad curve file")

// CurveFile is a measured bias curve with an optional fitted approximation.
type CurveFile struct {
	Name   string
	Params []float64
	Biases []float64
	Fit    *Curve
}

const maxCurveName = 1 << 16

// Binary layout, all little-endian:
//   - 66 'B', 67 'C', major version 1, minor version 0
//   - uint32 name length, name bytes
//   - uint32 count, count float64 params, count float64 biases
//   - uint8 fit flag; when 1, float64 A, B, MAE, RMSE
func (c *CurveFile) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	var w = bufio.NewWriter(f)
	err = c.write(w)
	if err == nil {
		err = w.Flush()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}

func (c *CurveFile) write(w io.Writer) error {
	if len(c.Params) != len(c.Biases) {
		return fmt.Errorf("%w: %v params and %v biases", ErrInvalidData, len(c.Params), len(c.Biases))
	}
	if len(c.Name) >= maxCurveName {
		return fmt.Errorf("%w: name of %v bytes", ErrInvalidData, len(c.Name))
	}
	var buf = []byte{66, 67, 1, 0}
	if _, err := w.Write(buf); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(buf, uint32(len(c.Name)))
	if _, err := w.Write(buf); err != nil {
		return err
	}
	if _, err := io.WriteString(w, c.Name); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(buf, uint32(len(c.Params)))
	if _, err := w.Write(buf); err != nil {
		return err
	}
	if err := writeSlice(w, c.Params); err != nil {
		return err
	}
	if err := writeSlice(w, c.Biases); err != nil {
		return err
	}
	if c.Fit == nil {
		_, err := w.Write([]byte{0})
		return err
	}
	if _, err := w.Write([]byte{1}); err != nil {
		return err
	}
	return writeSlice(w, []float64{c.Fit.A, c.Fit.B, c.Fit.MAE, c.Fit.RMSE})
}

func LoadCurve(path string) (*CurveFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := readCurve(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%v: %w", path, err)
	}
	return c, nil
}

func readCurve(r io.Reader) (*CurveFile, error) {
	var buf = make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, badCurve(err)
	}
	if buf[0] != 66 || buf[1] != 67 {
		return nil, fmt.Errorf("%w: magic word does not match", ErrBadCurveFile)
	}
	if buf[2] != 1 || buf[3] != 0 {
		return nil, fmt.Errorf("%w: version %v.%v is not supported", ErrBadCurveFile, buf[2], buf[3])
	}

	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, badCurve(err)
	}
	var nameSize = binary.LittleEndian.Uint32(buf)
	if nameSize >= maxCurveName {
		return nil, fmt.Errorf("%w: name of %v bytes", ErrBadCurveFile, nameSize)
	}
	var name = make([]byte, nameSize)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, badCurve(err)
	}

	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, badCurve(err)
	}
	var count = int(binary.LittleEndian.Uint32(buf))
	params, err := readSlice(r, count)
	if err != nil {
		return nil, err
	}
	biases, err := readSlice(r, count)
	if err != nil {
		return nil, err
	}
	var c = &CurveFile{Name: string(name), Params: params, Biases: biases}

	if _, err := io.ReadFull(r, buf[:1]); err != nil {
		return nil, badCurve(err)
	}
	switch buf[0] {
	case 0:
	case 1:
		fit, err := readSlice(r, 4)
		if err != nil {
			return nil, err
		}
		c.Fit = &Curve{A: fit[0], B: fit[1], MAE: fit[2], RMSE: fit[3]}
	default:
		return nil, fmt.Errorf("%w: fit flag %v", ErrBadCurveFile, buf[0])
	}
	return c, nil
}

func badCurve(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated", ErrBadCurveFile)
	}
	return err
}

func writeSlice(w io.Writer, data []float64) error {
	var buf = make([]byte, 8)
	for _, v := range data {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

func readSlice(r io.Reader, count int) ([]float64, error) {
	var buf = make([]byte, 8)
	var data = make([]float64, 0, min(count, 1<<20))
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, badCurve(err)
		}
		data = append(data, math.Float64frombits(binary.LittleEndian.Uint64(buf)))
	}
	return data, nil
}
