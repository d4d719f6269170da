/*
Copyright © 2024 the mesh1km-pop authors.
This file is part of mesh1km-pop.

mesh1km-pop is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

mesh1km-pop is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with mesh1km-pop.  If not, see <http://www.gnu.org/licenses/>.
*/

package meshpop

import (
	"fmt"
	"sort"
	"strings"
)

// DayFlags and TimeBuckets are the categories that, combined, make up
// the nine population buckets of one period.
var (
	DayFlags    = []string{"0", "1", "2"}
	TimeBuckets = []string{"0", "1", "2"}
)

// Period is a year and month. The zero Period is used for single-period
// batches, whose bucket keys carry no period prefix.
type Period struct {
	Year  string
	Month string
}

// NewPeriod returns the period for year and month, zero-padding a
// single-digit month.
func NewPeriod(year, month string) Period {
	year, month = strings.TrimSpace(year), strings.TrimSpace(month)
	if len(month) == 1 {
		month = "0" + month
	}
	return Period{Year: year, Month: month}
}

// ParsePeriod parses a period written as "YYYYMM" or "YYYY-MM".
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '-'); i >= 0 {
		if i == 0 || i == len(s)-1 {
			return Period{}, fmt.Errorf("meshpop: invalid period %q", s)
		}
		return NewPeriod(s[:i], s[i+1:]), nil
	}
	if len(s) != 6 {
		return Period{}, fmt.Errorf("meshpop: invalid period %q", s)
	}
	return NewPeriod(s[:4], s[4:]), nil
}

// IsZero reports whether p is the zero Period.
func (p Period) IsZero() bool { return p.Year == "" && p.Month == "" }

// String returns the period as used in bucket keys, e.g. "202001".
func (p Period) String() string { return p.Year + p.Month }

// Label returns the period as used in sink names, e.g. "2020-01".
func (p Period) Label() string { return p.Year + "-" + p.Month }

// BucketKey returns the key of the bucket for the given period, day flag
// and time bucket: "d<day>t<time>" for the zero period and
// "<year><month>d<day>t<time>" otherwise.
func BucketKey(p Period, dayFlag, timeBucket string) string {
	return p.String() + "d" + dayFlag + "t" + timeBucket
}

// ExpectedKeys returns every bucket key for the given periods, in period
// order and then day flag and time bucket order. A nil or empty periods
// slice is treated as the single zero period.
func ExpectedKeys(periods []Period) []string {
	if len(periods) == 0 {
		periods = []Period{{}}
	}
	keys := make([]string, 0, len(periods)*len(DayFlags)*len(TimeBuckets))
	for _, p := range periods {
		for _, d := range DayFlags {
			for _, t := range TimeBuckets {
				keys = append(keys, BucketKey(p, d, t))
			}
		}
	}
	return keys
}

// SortPeriods sorts periods chronologically and removes duplicates.
func SortPeriods(periods []Period) []Period {
	seen := make(map[Period]bool, len(periods))
	o := make([]Period, 0, len(periods))
	for _, p := range periods {
		if !seen[p] {
			seen[p] = true
			o = append(o, p)
		}
	}
	sort.Slice(o, func(i, j int) bool {
		if o[i].Year != o[j].Year {
			return o[i].Year < o[j].Year
		}
		return o[i].Month < o[j].Month
	})
	return o
}
