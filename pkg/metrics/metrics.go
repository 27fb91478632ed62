// Package metrics provides thin CSV-backed counters for frame
// dispositions and protocol errors. It is not wired into pkg/classify
// itself, which must stay allocation-light and I/O-free; callers are
// expected to be the dispatcher, once per handled frame.
package metrics

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/tzrikka/xdg"
)

const (
	// DataDirName is the subdirectory of the user's XDG data home where
	// Quill's CSV counters are written.
	DataDirName = "quill"
	// DefaultDispositionsFile records one row per dispatched frame:
	// timestamp, connection ID, disposition name.
	DefaultDispositionsFile = "dispositions.csv"
	// DefaultProtocolErrorsFile records one row per protocol error seen
	// on the wire: timestamp, connection ID, error code name.
	DefaultProtocolErrorsFile = "protocol_errors.csv"

	fileFlags = os.O_APPEND | os.O_CREATE | os.O_WRONLY
)

var (
	muDispositions   sync.Mutex
	muProtocolErrors sync.Mutex
)

// CountDisposition records that connID's dispatcher handled a frame
// with the given disposition name.
func CountDisposition(t time.Time, connID, disposition string) {
	muDispositions.Lock()
	defer muDispositions.Unlock()

	record := []string{t.Format(time.RFC3339), connID, disposition}
	if err := appendToCSVFile(DefaultDispositionsFile, record); err != nil {
		fmt.Fprintf(os.Stderr, "metrics: failed to record disposition: %v\n", err)
	}
}

// CountProtocolError records that connID observed a wire-level protocol
// error with the given code name.
func CountProtocolError(t time.Time, connID, code string) {
	muProtocolErrors.Lock()
	defer muProtocolErrors.Unlock()

	record := []string{t.Format(time.RFC3339), connID, code}
	if err := appendToCSVFile(DefaultProtocolErrorsFile, record); err != nil {
		fmt.Fprintf(os.Stderr, "metrics: failed to record protocol error: %v\n", err)
	}
}

func appendToCSVFile(filename string, record []string) error {
	path, err := xdg.CreateFile(xdg.DataHome, DataDirName, filename)
	if err != nil {
		return fmt.Errorf("resolve metrics file path: %w", err)
	}

	f, err := os.OpenFile(path, fileFlags, xdg.NewFilePermissions)
	if err != nil {
		return fmt.Errorf("open metrics file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(record); err != nil {
		return fmt.Errorf("write metrics record: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush metrics file: %w", err)
	}

	return nil
}
