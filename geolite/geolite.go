// package geolite extracts attributed networks from MaxMind GeoLite2 csv tables
package geolite

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"paepcke.de/geo2ruleset/asnlist"
	"paepcke.de/geo2ruleset/cidr"
)

// const table file names inside the GeoLite2 csv archives
const (
	CountryLocations  = "GeoLite2-Country-Locations-en.csv"
	CountryBlocksIPv4 = "GeoLite2-Country-Blocks-IPv4.csv"
	CountryBlocksIPv6 = "GeoLite2-Country-Blocks-IPv6.csv"
	ASNBlocksIPv4     = "GeoLite2-ASN-Blocks-IPv4.csv"
	ASNBlocksIPv6     = "GeoLite2-ASN-Blocks-IPv6.csv"
)

// const column names
const (
	_geonameID    = "geoname_id"
	_countryISO   = "country_iso_code"
	_registeredID = "registered_country_geoname_id"
	_network      = "network"
	_asn          = "autonomous_system_number"
)

// ErrMissingColumn reports a table header lacking a required column.
var ErrMissingColumn = errors.New("[geolite] missing csv column")

// Stats counts what an extraction saw.
type Stats struct {
	Rows    int // data rows read
	Matched int // rows kept
	Unknown int // rows whose geoname id has no location entry
}

// CountryTable names the country blocks table of a family.
func CountryTable(f cidr.Family) string {
	if f == cidr.IPv6 {
		return CountryBlocksIPv6
	}
	return CountryBlocksIPv4
}

// ASNTable names the asn blocks table of a family.
func ASNTable(f cidr.Family) string {
	if f == cidr.IPv6 {
		return ASNBlocksIPv6
	}
	return ASNBlocksIPv4
}

// Locations maps geoname ids to country iso codes.
func Locations(r io.Reader) (map[string]string, error) {
	mapping := make(map[string]string)
	err := scan(r, []string{_geonameID, _countryISO}, func(row []string) error {
		mapping[row[0]] = row[1]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mapping, nil
}

// CountryBlocks collects the networks registered to any of countries.
// Every requested country is present in the result, possibly empty. Rows
// whose registered geoname id is absent from locations are skipped.
func CountryBlocks(r io.Reader, locations map[string]string, countries []string, f cidr.Family) (map[string][]cidr.Network, Stats, error) {
	var st Stats
	blocks := make(map[string][]cidr.Network, len(countries))
	for _, c := range countries {
		blocks[strings.ToUpper(c)] = []cidr.Network{}
	}
	err := scan(r, []string{_registeredID, _network}, func(row []string) error {
		st.Rows++
		code, ok := locations[row[0]]
		if !ok {
			st.Unknown++
			return nil
		}
		if _, ok := blocks[code]; !ok {
			return nil
		}
		n, err := parse(row[1], f)
		if err != nil {
			return err
		}
		st.Matched++
		blocks[code] = append(blocks[code], n)
		return nil
	})
	if err != nil {
		return nil, st, err
	}
	return blocks, st, nil
}

// ASNBlocks collects the networks announced by any asn of asns.
func ASNBlocks(r io.Reader, asns asnlist.Set, f cidr.Family) ([]cidr.Network, Stats, error) {
	var st Stats
	blocks := []cidr.Network{}
	err := scan(r, []string{_asn, _network}, func(row []string) error {
		st.Rows++
		if !asns.Has(row[0]) {
			return nil
		}
		n, err := parse(row[1], f)
		if err != nil {
			return err
		}
		st.Matched++
		blocks = append(blocks, n)
		return nil
	})
	if err != nil {
		return nil, st, err
	}
	return blocks, st, nil
}

//
// INTERNAL BACKEND
//

// parse ...
func parse(s string, f cidr.Family) (cidr.Network, error) {
	n, err := cidr.Parse(s)
	if err != nil {
		return n, err
	}
	if n.Family() != f {
		return cidr.Network{}, fmt.Errorf("%w [%s] [%s table]", cidr.ErrFamilyMismatch, s, f)
	}
	return n, nil
}

// scan reads a csv table with header and calls fn with the requested
// columns of every data row, in the order of cols.
func scan(r io.Reader, cols []string, fn func(row []string) error) error {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err != nil {
		return fmt.Errorf("[geolite] unable to read csv header: %w", err)
	}
	idx := make([]int, len(cols))
	for i, c := range cols {
		idx[i] = -1
		for j, h := range header {
			if strings.TrimSpace(h) == c {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return fmt.Errorf("%w [%s]", ErrMissingColumn, c)
		}
	}
	row := make([]string, len(cols))
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("[geolite] unable to read csv row: %w", err)
		}
		for i, j := range idx {
			row[i] = rec[j]
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}
