package mealmemory

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/davecgh/go-spew/spew"
)

var dumpConfig = spew.ConfigState{Indent: "  ", SortKeys: true, DisablePointerAddresses: true}

// Dump pretty-prints v to stdout, prefixed with the caller location.
func Dump(v ...any) {
	_, file, line, _ := runtime.Caller(1)
	DumpTo(os.Stdout, fmt.Sprintf("%s:%d:", file, line), v...)
}

// DumpTo writes a labelled spew dump of v to w.
func DumpTo(w io.Writer, label string, v ...any) {
	fmt.Fprintln(w, label)
	dumpConfig.Fdump(w, v...)
}
