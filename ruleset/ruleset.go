// package ruleset renders aggregated networks as rule-set text files
package ruleset

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"paepcke.de/geo2ruleset/cidr"
)

// Format selects the output file syntax.
type Format string

// const formats
const (
	// FormatRuleSet is one "IP-CIDR,<cidr>" line per network.
	FormatRuleSet Format = "ruleset"
	// FormatPF is a pf(4) persistent table file.
	FormatPF Format = "pf"
)

// const shortcuts
const (
	_prefix = "IP-CIDR,"
	_LF     = "\n"
	_H1     = "#" + _LF
	_H2     = "# pf(4) STATIC TABLE" + _LF
	_H3     = "# Do not edit manually! - This file is auto-generated via geo2ruleset" + _LF
	_H4     = "# reference via pf.conf -> include \"" // + filename
)

// ErrUnknownFormat ...
var ErrUnknownFormat = errors.New("[ruleset] unknown output format")

// ParseFormat ...
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatRuleSet:
		return FormatRuleSet, nil
	case FormatPF:
		return FormatPF, nil
	}
	return "", errors.Join(ErrUnknownFormat, errors.New("["+s+"]"))
}

// Ext returns the file name extension used for the format.
func (f Format) Ext() string {
	if f == FormatPF {
		return ".pf"
	}
	return ".list"
}

// Line renders a single network as a rule line.
func Line(n cidr.Network) string { return _prefix + n.String() }

// Lines renders nets in the given order. It neither sorts nor deduplicates:
// the input is expected to come from cidr.Aggregate.
func Lines(nets []cidr.Network) []string {
	out := make([]string, 0, len(nets))
	for _, n := range nets {
		out = append(out, Line(n))
	}
	return out
}

// Write writes one newline terminated rule line per network, without header
// or trailer. No networks means no output.
func Write(w io.Writer, nets []cidr.Network) error {
	bw := bufio.NewWriter(w)
	for _, n := range nets {
		if _, err := bw.WriteString(Line(n) + _LF); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WritePF writes nets as pf table <table>.
func WritePF(w io.Writer, file, table string, nets []cidr.Network) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(_H1 + _H2 + _H3 + _H1 + _H4 + file + "\"" + _LF + _H1)
	bw.WriteString(_LF + "table <" + strings.ToLower(table) + "> const persist { ")
	for _, n := range nets {
		bw.WriteString(n.String() + " ")
	}
	bw.WriteString("}" + _LF)
	return bw.Flush()
}

// WriteFile creates name and writes nets in format f. table names the pf
// table and is ignored for plain rule-sets.
func WriteFile(name string, f Format, table string, nets []cidr.Network) error {
	fh, err := os.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o660)
	if err != nil {
		return errors.Join(errors.New("[ruleset] unable to write file ["+name+"]"), err)
	}
	switch f {
	case FormatPF:
		err = WritePF(fh, name, table, nets)
	default:
		err = Write(fh, nets)
	}
	if cerr := fh.Close(); err == nil {
		err = cerr
	}
	return err
}
