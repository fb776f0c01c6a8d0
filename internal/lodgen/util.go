package lodgen

import (
	"bytes"
	"errors"
	"io"
	"strconv"
)

var errEmptyOutput = errors.New("lodgen: decimator produced empty output")

func newByteReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
