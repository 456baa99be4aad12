// Package size measures the transmission size of binary artifacts.
// The host receives attachments base64-encoded, so budgets apply to the
// encoded form rather than the raw byte length.
package size

import (
	"encoding/base64"
	"fmt"
	"io"

	"github.com/gaurav-prasanna/promptpipe/core"
)

// Source is anything whose bytes can be read for measurement.
type Source interface {
	Open() (io.ReadCloser, error)
}

// TransportSize returns the base64 length of n raw bytes.
func TransportSize(n int64) int64 {
	if n <= 0 {
		return 0
	}
	return int64(base64.StdEncoding.EncodedLen(int(n)))
}

// Measure reads src and returns its raw and transport sizes.
func Measure(src Source) (core.SizeMeasurement, error) {
	rc, err := src.Open()
	if err != nil {
		return core.SizeMeasurement{}, fmt.Errorf("opening artifact: %w", err)
	}
	defer rc.Close()

	n, err := io.Copy(io.Discard, rc)
	if err != nil {
		return core.SizeMeasurement{}, fmt.Errorf("reading artifact: %w", err)
	}
	return Of(n), nil
}

// Of builds a measurement for n raw bytes.
func Of(n int64) core.SizeMeasurement {
	return core.SizeMeasurement{RawByteSize: n, TransportByteSize: TransportSize(n)}
}

// Fits reports whether m fits under a transport budget.
func Fits(m core.SizeMeasurement, maxBytes int64) bool {
	return m.TransportByteSize <= maxBytes
}
