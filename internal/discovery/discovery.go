// Package discovery locates the per-condition track export files inside
// a data folder. Each applied-frequency condition has a known family of
// file naming schemes; the zero-frequency control is always listed
// first so the baseline derivation can run before anything else.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Condition names one applied-frequency dataset and the file backing it.
type Condition struct {
	Label       string
	FrequencyHz float64
	Path        string
}

// Control reports whether this is the zero-stimulus control condition.
func (c Condition) Control() bool { return c.FrequencyHz == 0 }

// patternSet pairs a frequency with the naming schemes its files use.
// The primary patterns insist on "track" exports; the fallbacks accept
// any file naming the frequency, which can pick up spots exports, so
// they are only consulted when the primary set matches nothing.
type patternSet struct {
	hz       float64
	primary  *regexp.Regexp
	fallback *regexp.Regexp
}

var patterns = []patternSet{
	{0, re(`((^|[^0-9])(0 ?khz|control).*track|^t(0 ?khz|control))`), re(`((^|[^0-9])0 ?khz|control)`)},
	{800, re(`((0\.8 ?khz|800 ?hz).*track|^t(0\.8 ?khz|800 ?hz))`), re(`(0\.8 ?khz|800 ?hz)`)},
	{1000, re(`((^|[^0-9.])1 ?khz.*track|^t1 ?khz)`), re(`(^|[^0-9.])1 ?khz`)},
	{5000, re(`((^|[^0-9])5 ?khz.*track|^t5 ?khz)`), re(`(^|[^0-9])5 ?khz`)},
	{10000, re(`(10 ?khz.*track|^t10 ?khz)`), re(`10 ?khz`)},
	{25000, re(`(25 ?khz.*track|^t25 ?khz)`), re(`25 ?khz`)},
	{50000, re(`(50 ?khz.*track|^t50 ?khz)`), re(`50 ?khz`)},
	{75000, re(`(75 ?khz.*track|^t75 ?khz)`), re(`75 ?khz`)},
	{100000, re(`(100 ?khz.*track|^t100 ?khz)`), re(`100 ?khz`)},
	{150000, re(`(150 ?khz.*track|^t150 ?khz)`), re(`150 ?khz`)},
	{200000, re(`(200 ?khz.*track|^t200 ?khz)`), re(`200 ?khz`)},
	{300000, re(`(300 ?khz.*track|^t300 ?khz)`), re(`300 ?khz`)},
}

func re(pattern string) *regexp.Regexp { return regexp.MustCompile(pattern) }

// Match scans dir for one file per known condition. Matching is
// case-insensitive against the file name only. The returned slice is in
// ascending frequency order with the control (if found) first; missing
// conditions are simply absent. An empty result means no recognizable
// input exists in dir.
func Match(dir string) ([]Condition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	conds := match(dir, names, func(p patternSet) *regexp.Regexp { return p.primary })
	if len(conds) == 0 {
		conds = match(dir, names, func(p patternSet) *regexp.Regexp { return p.fallback })
	}
	return conds, nil
}

func match(dir string, names []string, pick func(patternSet) *regexp.Regexp) []Condition {
	var conds []Condition
	for _, p := range patterns {
		rx := pick(p)
		for _, name := range names {
			if rx.MatchString(strings.ToLower(name)) {
				conds = append(conds, Condition{
					Label:       Label(p.hz),
					FrequencyHz: p.hz,
					Path:        filepath.Join(dir, name),
				})
				break
			}
		}
	}
	return conds
}

// Label formats a frequency the way the summary outputs index it.
func Label(hz float64) string {
	return fmt.Sprintf("%.1f", hz)
}
