// package geo2ruleset builds minimal cidr rule-sets from GeoLite2 country and asn data
package geo2ruleset

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"paepcke.de/geo2ruleset/asnlist"
	"paepcke.de/geo2ruleset/cidr"
	"paepcke.de/geo2ruleset/config"
	"paepcke.de/geo2ruleset/fetch"
	"paepcke.de/geo2ruleset/geolite"
	"paepcke.de/geo2ruleset/ruleset"
)

// FileReport describes one written rule-set file.
type FileReport struct {
	Name     string      // file path
	Family   cidr.Family // address family
	Category string      // country code, asn list tag or "all"
	Input    int         // networks before aggregation
	Items    int         // networks written
}

// Report summarizes a Generate run.
type Report struct {
	Files    []FileReport  // sorted by name
	ASNs     int           // size of the merged asn list
	Duration time.Duration // wall time
}

// Generate fetches (or reuses) the configured sources, aggregates every
// category and writes one rule-set file per category and family plus the
// combined files into cfg.OutputDir. cfg is normalized in place.
func Generate(ctx context.Context, cfg *config.Config) (*Report, error) {
	// setup
	t0 := time.Now()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	format, err := ruleset.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	if err := prepareDirs(cfg.ExtractDir, cfg.OutputDir, cfg.Clean); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	client := fetch.NewClient(cfg.Timeout)
	fams := families(cfg.NoIPv4, cfg.NoIPv6)

	// report setup
	info(pad("countries", 30) + fmt.Sprint(cfg.Countries))
	info(pad("asn source", 30) + cfg.ASNSource)
	info(pad("output", 30) + cfg.OutputDir + " [" + string(format) + "]")

	// collect raw category tables
	countries, err := countryBlocks(ctx, client, cfg, fams)
	if err != nil {
		return nil, err
	}
	asns, err := loadASNList(ctx, client, cfg)
	if err != nil {
		return nil, err
	}
	asnNets, err := asnBlocks(ctx, client, cfg, asns, fams)
	if err != nil {
		return nil, err
	}

	// aggregate, write
	var jobs []job
	for _, f := range fams {
		all := []cidr.Network{}
		for _, cc := range cfg.Countries {
			nets := countries[f][cc]
			jobs = append(jobs, job{
				file:     filepath.Join(cfg.OutputDir, fileName(f, cc, _kindGeo, format)),
				family:   f,
				category: cc,
				nets:     nets,
			})
			all = append(all, nets...)
		}
		jobs = append(jobs, job{
			file:     filepath.Join(cfg.OutputDir, fileName(f, cfg.ASNListTag, _kindASN, format)),
			family:   f,
			category: cfg.ASNListTag,
			nets:     asnNets[f],
		})
		all = append(all, asnNets[f]...)
		jobs = append(jobs, job{
			file:     filepath.Join(cfg.OutputDir, fileName(f, _empty, _kindAll, format)),
			family:   f,
			category: _kindAll,
			nets:     all,
		})
	}
	files, err := runJobs(jobs, format, cfg.Workers)
	if err != nil {
		return nil, err
	}

	// report
	rep := &Report{Files: files, ASNs: len(asns), Duration: time.Since(t0)}
	for _, fr := range rep.Files {
		info(pad(" + file "+filepath.Base(fr.Name), 50) + pad(strconv.Itoa(fr.Items), 7) + " item(s)")
	}
	info(pad("time needed", 30) + rep.Duration.String())
	return rep, nil
}

//
// INTERNAL BACKEND
//

// job is one aggregate and write task; it owns nets.
type job struct {
	file     string
	family   cidr.Family
	category string
	nets     []cidr.Network
}

// run ...
func (j job) run(format ruleset.Format) (FileReport, error) {
	agg, err := cidr.Aggregate(j.nets)
	if err != nil {
		return FileReport{}, fmt.Errorf("[geo2ruleset] [%s]: %w", filepath.Base(j.file), err)
	}
	if err := ruleset.WriteFile(j.file, format, tableName(j.file), agg); err != nil {
		return FileReport{}, err
	}
	return FileReport{
		Name:     j.file,
		Family:   j.family,
		Category: j.category,
		Input:    len(j.nets),
		Items:    len(agg),
	}, nil
}

// runJobs fans jobs out over a bounded worker pool.
func runJobs(jobs []job, format ruleset.Format, workers int) ([]FileReport, error) {
	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		files = make([]FileReport, 0, len(jobs))
		errs  []error
	)
	pool, err := ants.NewPoolWithFunc(workers, func(item interface{}) {
		defer wg.Done()
		j := item.(job)
		fr, err := j.run(format)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			errOut(err.Error())
			errs = append(errs, err)
			return
		}
		files = append(files, fr)
	})
	if err != nil {
		return nil, fmt.Errorf("[geo2ruleset] unable to create worker pool: %w", err)
	}
	defer pool.Release()

	for _, j := range jobs {
		wg.Add(1)
		if err := pool.Invoke(j); err != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, fmt.Errorf("[geo2ruleset] unable to schedule [%s]: %w", j.file, err))
			mu.Unlock()
		}
	}
	wg.Wait()
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	sort.Slice(files, func(i, k int) bool { return files[i].Name < files[k].Name })
	return files, nil
}

// countryBlocks returns family -> country code -> raw networks.
func countryBlocks(ctx context.Context, client *http.Client, cfg *config.Config, fams []cidr.Family) (map[cidr.Family]map[string][]cidr.Network, error) {
	out := make(map[cidr.Family]map[string][]cidr.Network, len(fams))
	if len(cfg.Countries) == 0 {
		return out, nil
	}
	src := fetch.MaxMindCountry(cfg.LicenseKey, cfg.ExtractDir)
	dir := filepath.Join(cfg.ExtractDir, _countryData)

	r, err := openTable(ctx, client, src, dir, geolite.CountryLocations)
	if err != nil {
		return nil, err
	}
	locations, err := geolite.Locations(r)
	r.Close()
	if err != nil {
		return nil, err
	}
	debug(pad("geoname mappings", 30) + strconv.Itoa(len(locations)))

	for _, f := range fams {
		r, err := openTable(ctx, client, src, dir, geolite.CountryTable(f))
		if err != nil {
			return nil, err
		}
		blocks, st, err := geolite.CountryBlocks(r, locations, cfg.Countries, f)
		r.Close()
		if err != nil {
			return nil, err
		}
		if st.Unknown > 0 {
			debug(pad("unknown geoname id(s) "+f.String(), 30) + strconv.Itoa(st.Unknown) + " row(s) skipped")
		}
		for _, cc := range cfg.Countries {
			debug(pad("country "+cc+" "+f.String(), 30) + strconv.Itoa(len(blocks[cc])) + " block(s)")
		}
		out[f] = blocks
	}
	return out, nil
}

// loadASNList fetches and parses the asn list and merges the extra asns.
func loadASNList(ctx context.Context, client *http.Client, cfg *config.Config) (asnlist.Set, error) {
	asns := asnlist.Set{}
	if cfg.ASNListURL != _empty {
		src := fetch.ASNList(cfg.ASNListURL, cfg.ExtractDir)
		done, err := fetch.Fetch(ctx, client, src)
		if err != nil {
			return nil, err
		}
		if done {
			info(pad("fetched", 30) + src.Name)
		}
		r, err := fetch.Open(src.File)
		if err != nil {
			return nil, err
		}
		asns, err = asnlist.Parse(r)
		r.Close()
		if err != nil {
			return nil, err
		}
	}
	for _, a := range cfg.ExtraASNs {
		if !asns.Add(a) {
			info("SKIP invalid asn [" + a + "]")
		}
	}
	debug(pad("asn(s)", 30) + strconv.Itoa(len(asns)))
	return asns, nil
}

// asnBlocks returns family -> raw networks announced by any asn of asns.
func asnBlocks(ctx context.Context, client *http.Client, cfg *config.Config, asns asnlist.Set, fams []cidr.Family) (map[cidr.Family][]cidr.Network, error) {
	out := make(map[cidr.Family][]cidr.Network, len(fams))
	if len(asns) == 0 {
		debug("empty asn list, no asn tables read")
		return out, nil
	}
	switch cfg.ASNSource {
	case config.ASNSourceIPtoASN:
		for _, f := range fams {
			src := fetch.IPtoASN(cfg.ExtractDir, f)
			done, err := fetch.Fetch(ctx, client, src)
			if err != nil {
				return nil, err
			}
			if done {
				info(pad("fetched", 30) + src.Name)
			}
			file, err := fetch.Recompress(src.File, _zstdLevel)
			if err != nil {
				return nil, err
			}
			nets, st, err := parserTSV([]string{file}, asns, cfg.Workers)
			if err != nil {
				return nil, err
			}
			if st.skipped > 0 {
				debug(pad("iptoasn "+f.String(), 30) + strconv.Itoa(st.skipped) + " malformed row(s) skipped")
			}
			debug(pad("asn "+f.String(), 30) + strconv.Itoa(len(nets)) + " block(s) from " + strconv.Itoa(st.matched) + " range(s)")
			out[f] = nets
		}
	default:
		src := fetch.MaxMindASN(cfg.LicenseKey, cfg.ExtractDir)
		dir := filepath.Join(cfg.ExtractDir, _asnData)
		for _, f := range fams {
			r, err := openTable(ctx, client, src, dir, geolite.ASNTable(f))
			if err != nil {
				return nil, err
			}
			nets, _, err := geolite.ASNBlocks(r, asns, f)
			r.Close()
			if err != nil {
				return nil, err
			}
			debug(pad("asn "+f.String(), 30) + strconv.Itoa(len(nets)) + " block(s)")
			out[f] = nets
		}
	}
	return out, nil
}
