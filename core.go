package geo2ruleset

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"paepcke.de/geo2ruleset/cidr"
	"paepcke.de/geo2ruleset/fetch"
	"paepcke.de/geo2ruleset/ruleset"
)

// const shortcuts
const (
	_vendor        = "maxmind"
	_countryData   = "geolite2_data"
	_asnData       = "geolite2_data_asn"
	_zstdLevel     = 19
	_kindGeo       = "geo"
	_kindASN       = "asn"
	_kindAll       = "all"
	_fileSeparator = "_"
)

// fileName names the rule-set file of a category, eg.
// maxmind_ipv4_ru_geo_cidr.list, maxmind_ipv6_ru_asn_cidr.list or
// maxmind_ipv4_all_cidr.list.
func fileName(f cidr.Family, key, kind string, format ruleset.Format) string {
	parts := []string{_vendor, f.String()}
	if key != _empty {
		parts = append(parts, strings.ToLower(key))
	}
	parts = append(parts, kind, "cidr")
	return strings.Join(parts, _fileSeparator) + format.Ext()
}

// tableName is the pf table name of a rule-set file.
func tableName(file string) string {
	return strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
}

// families returns the address families to process.
func families(noIPv4, noIPv6 bool) []cidr.Family {
	fams := make([]cidr.Family, 0, 2)
	if !noIPv4 {
		fams = append(fams, cidr.IPv4)
	}
	if !noIPv6 {
		fams = append(fams, cidr.IPv6)
	}
	return fams
}

// prepareDirs creates the extract dir (wiped first on clean) and recreates
// the output dir empty.
func prepareDirs(extract, output string, clean bool) error {
	if clean {
		debug("cleaning up " + extract)
		if err := os.RemoveAll(extract); err != nil {
			return errors.Join(errors.New("[geo2ruleset] unable to clean ["+extract+"]"), err)
		}
	}
	if err := os.MkdirAll(extract, 0o770); err != nil {
		return errors.Join(errors.New("[geo2ruleset] unable to create ["+extract+"]"), err)
	}
	debug("cleaning up " + output)
	if err := os.RemoveAll(output); err != nil {
		return errors.Join(errors.New("[geo2ruleset] unable to clean ["+output+"]"), err)
	}
	if err := os.MkdirAll(output, 0o770); err != nil {
		return errors.Join(errors.New("[geo2ruleset] unable to create ["+output+"]"), err)
	}
	return nil
}

// locate returns the path of table inside dir. A missing table triggers the
// download (unless already cached) and extraction of the src archive.
func locate(ctx context.Context, client *http.Client, src fetch.Source, dir, table string) (string, error) {
	path, err := fetch.Find(dir, table)
	if err == nil {
		return path, nil
	}
	if !errors.Is(err, fetch.ErrNotFound) {
		return _empty, err
	}
	done, err := fetch.Fetch(ctx, client, src)
	if err != nil {
		return _empty, err
	}
	if done {
		info(pad("fetched", 30) + src.Name)
	}
	n, err := fetch.Extract(src.File, dir)
	if err != nil {
		return _empty, err
	}
	debug(pad("extracted", 30) + src.File + " [" + strconv.Itoa(n) + " file(s)]")
	return fetch.Find(dir, table)
}

// openTable locates table and opens it for reading.
func openTable(ctx context.Context, client *http.Client, src fetch.Source, dir, table string) (io.ReadCloser, error) {
	path, err := locate(ctx, client, src, dir, table)
	if err != nil {
		return nil, err
	}
	r, err := fetch.Open(path)
	if err != nil {
		return nil, err
	}
	debug(pad("reading", 30) + path)
	return r, nil
}
