package geo2ruleset

import (
	"bufio"
	"fmt"
	"strings"
	"sync"

	"paepcke.de/geo2ruleset/asnlist"
	"paepcke.de/geo2ruleset/cidr"
	"paepcke.de/geo2ruleset/fetch"
	"paepcke.de/geo2ruleset/range2cidr"
)

const (
	_tab      = "\t"
	_tsvCols  = 5 // range_start range_end asn country owner
	_feedSize = 1000
)

// tsv row
type feed struct {
	line string
	file string
}

// collector entry
type tsvEntry struct {
	cidrs []cidr.Network // the resulting cidr nets for range
	err   error
}

// tsvStats counts what parserTSV saw.
type tsvStats struct {
	rows    int
	matched int
	skipped int
}

// parserTSV reads iptoasn range tables (start, end, asn, country, owner)
// and returns the networks of all rows announced by an asn of asns. The
// range decomposition runs on workers goroutines. Rows with a wrong column
// count are skipped; an undecodable range aborts the parse.
func parserTSV(files []string, asns asnlist.Set, workers int) ([]cidr.Network, tsvStats, error) {
	if workers < 1 {
		workers = 1
	}
	var st tsvStats

	// channel setup
	feedChan := make(chan feed, _feedSize*workers)
	collectChan := make(chan tsvEntry, _feedSize*workers)
	done := make(chan struct{})

	// worker
	go func() {
		bg := sync.WaitGroup{}
		bg.Add(workers)
		for i := 0; i < workers; i++ {
			go func() {
				defer bg.Done()
				for l := range feedChan {
					s := strings.Split(l.line, _tab)
					if len(s) != _tsvCols {
						debug("SKIP [" + l.line + "] [" + l.file + "]")
						collectChan <- tsvEntry{}
						continue
					}
					if !asns.Has(s[2]) {
						collectChan <- tsvEntry{cidrs: []cidr.Network{}}
						continue
					}
					nets, err := range2cidr.Prefixes(s[0], s[1])
					if err != nil {
						err = fmt.Errorf("[iptoasn] [%s]: %w", l.file, err)
					}
					collectChan <- tsvEntry{cidrs: nets, err: err}
				}
			}()
		}
		bg.Wait()
		close(collectChan)
	}()

	// feeder
	var feedErr error
	go func() {
		defer close(feedChan)
		for _, file := range files {
			r, err := fetch.Open(file)
			if err != nil {
				feedErr = err
				return
			}
			scanner := bufio.NewScanner(r)
			for scanner.Scan() {
				select {
				case feedChan <- feed{scanner.Text(), file}:
				case <-done:
					r.Close()
					return
				}
			}
			err = scanner.Err()
			r.Close()
			if err != nil {
				feedErr = fmt.Errorf("[iptoasn] unable to read [%s]: %w", file, err)
				return
			}
		}
	}()

	// collect
	var firstErr error
	out := []cidr.Network{}
	for e := range collectChan {
		st.rows++
		switch {
		case e.err != nil:
			if firstErr == nil {
				firstErr = e.err
				close(done)
			}
		case e.cidrs == nil:
			st.skipped++
		case len(e.cidrs) > 0:
			st.matched++
			out = append(out, e.cidrs...)
		}
	}
	if firstErr != nil {
		return nil, st, firstErr
	}
	if feedErr != nil {
		return nil, st, feedErr
	}
	return out, st, nil
}
