// package fetch downloads, unpacks and opens attribution source files
package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"path/filepath"

	"paepcke.de/geo2ruleset/cidr"
)

// errors
var (
	// ErrNotFound reports a file missing from an extracted archive.
	ErrNotFound = errors.New("[fetch] file not found")
	// ErrUnsafePath reports an archive entry that would land outside the target directory.
	ErrUnsafePath = errors.New("[fetch] unsafe archive path")
	// ErrDownload reports a failed or implausible download.
	ErrDownload = errors.New("[fetch] download failed")
	// ErrFormat reports a file extension Open cannot handle.
	ErrFormat = errors.New("[fetch] unsupported file format")
)

// Source is a remote file cached at a local path.
type Source struct {
	Name      string // short label for reports
	URL       string // remote location
	File      string // local cache location
	MaxSizeMB int64  // download size limit in MegaByte(s)
	UserAgent string // db fetch
}

// const source defaults
const (
	_maxmindURL        = "https://download.maxmind.com/app/geoip_download"
	_iptoasnURL        = "https://iptoasn.com/data/"
	_DEFAULT_USERAGENT = "curl" // user agent used for fetch
)

// MaxMindURL returns the download url of a GeoLite2 csv edition.
func MaxMindURL(edition, licenseKey string) string {
	v := url.Values{}
	v.Set("edition_id", edition)
	v.Set("license_key", licenseKey)
	v.Set("suffix", "zip")
	return _maxmindURL + "?" + v.Encode()
}

// MaxMindCountry is the GeoLite2 country csv archive, cached in store.
func MaxMindCountry(licenseKey, store string) Source {
	return Source{
		Name:      "GeoLite2-Country",
		URL:       MaxMindURL("GeoLite2-Country-CSV", licenseKey),
		File:      filepath.Join(store, "GeoLite2-Country.zip"),
		MaxSizeMB: 64,
		UserAgent: _DEFAULT_USERAGENT,
	}
}

// MaxMindASN is the GeoLite2 asn csv archive, cached in store.
func MaxMindASN(licenseKey, store string) Source {
	return Source{
		Name:      "GeoLite2-ASN",
		URL:       MaxMindURL("GeoLite2-ASN-CSV", licenseKey),
		File:      filepath.Join(store, "GeoLite2-ASN.zip"),
		MaxSizeMB: 64,
		UserAgent: _DEFAULT_USERAGENT,
	}
}

// ASNList is the curated asn list text file, cached in store.
func ASNList(listURL, store string) Source {
	return Source{
		Name:      "asn-list",
		URL:       listURL,
		File:      filepath.Join(store, "asn-list.txt"),
		MaxSizeMB: 16,
		UserAgent: _DEFAULT_USERAGENT,
	}
}

// IPtoASN is the iptoasn.com range table of family f, cached in store.
func IPtoASN(store string, f cidr.Family) Source {
	name := "ip2asn-v4.tsv.gz"
	if f == cidr.IPv6 {
		name = "ip2asn-v6.tsv.gz"
	}
	return Source{
		Name:      "iptoasn-" + f.String(),
		URL:       _iptoasnURL + name,
		File:      filepath.Join(store, name),
		MaxSizeMB: 32,
		UserAgent: _DEFAULT_USERAGENT,
	}
}

// Fetch downloads src unless its local file is already readable. It reports
// whether a download happened.
func Fetch(ctx context.Context, client *http.Client, src Source) (bool, error) {
	if isReadable(src.File) {
		return false, nil
	}
	if err := Download(ctx, client, src); err != nil {
		return false, err
	}
	return true, nil
}
