package geo2ruleset

import (
	"io"
	"os"
	"sync"
)

// const
const (
	_app      = "[geo2ruleset] "
	_err      = _app + "[error] "
	_inf      = _app + "[info] "
	_dbg      = _app + "[debug] "
	_empty    = ""
	_linefeed = "\n"
)

// log sink
var (
	_logMu   sync.Mutex
	_logOut  io.Writer = os.Stdout
	_verbose bool
)

// SetLogOutput redirects all log lines to w.
func SetLogOutput(w io.Writer) {
	_logMu.Lock()
	_logOut = w
	_logMu.Unlock()
}

// SetVerbose enables debug lines.
func SetVerbose(on bool) {
	_logMu.Lock()
	_verbose = on
	_logMu.Unlock()
}

// out ...
func out(msg string) {
	_logMu.Lock()
	_logOut.Write([]byte(msg + _linefeed))
	_logMu.Unlock()
}

// info ...
func info(msg string) { out(_inf + msg) }

// errOut ...
func errOut(msg string) { out(_err + msg) }

// debug ...
func debug(msg string) {
	_logMu.Lock()
	on := _verbose
	_logMu.Unlock()
	if on {
		out(_dbg + msg)
	}
}

// pad ...
func pad(in string, l int) string {
	for len(in) < l {
		in = in + " "
	}
	return in
}
