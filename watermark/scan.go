/*
Package watermark derives the last invoiced month from generated files.

PURPOSE:
  Every generated invoice is written as faktura_{rulesetId}_{yy}_{mm}
  with an optional _{index} suffix for split parts and a document
  extension. The highest month found for a year is the watermark: the
  calculator starts billing the month after it.

KEY CONCEPTS:
  FileName:  Builds the base name for a generated draft
  Scan:      Walks a directory and returns year -> highest month
  Watcher:   Keeps Scan's result current with fsnotify

SEE ALSO:
  - planner/planner.go: Combines this with the stored watermark
*/
package watermark

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/warp/invoice-engine/billing"
)

const filePrefix = "faktura_"

var (
	extPattern   = regexp.MustCompile(`\.[A-Za-z0-9]+$`)
	twoDigits    = regexp.MustCompile(`^\d{2}$`)
	digitsSuffix = regexp.MustCompile(`^\d+$`)
)

// FileName returns the base file name for part index of a ruleset month.
// The first part carries no index suffix.
func FileName(rulesetID billing.RulesetID, year, month, index int) string {
	name := fmt.Sprintf("%s%s_%02d_%02d", filePrefix, rulesetID, billing.YearShort(year), month)
	if index > 0 {
		name += "_" + strconv.Itoa(index)
	}
	return name
}

// ParseFileName extracts the year and month from a generated file name.
// Two-digit years are read as 20yy.
//
// Ruleset ids may contain underscores and digits, so the name is read from
// the right: first as {id}_{yy}_{mm}_{index}, then as {id}_{yy}_{mm}. The
// first reading with a non-empty id and a valid month wins.
func ParseFileName(name string) (year, month int, ok bool) {
	if !strings.HasPrefix(name, filePrefix) {
		return 0, 0, false
	}
	parts := strings.Split(extPattern.ReplaceAllString(name[len(filePrefix):], ""), "_")

	n := len(parts)
	hasID := func(fields int) bool {
		return n > fields && strings.Join(parts[:n-fields], "_") != ""
	}
	if hasID(3) && digitsSuffix.MatchString(parts[n-1]) {
		if y, m, found := yearMonth(parts[n-3], parts[n-2]); found {
			return y, m, true
		}
	}
	if hasID(2) {
		return yearMonth(parts[n-2], parts[n-1])
	}
	return 0, 0, false
}

func yearMonth(yy, mm string) (int, int, bool) {
	if !twoDigits.MatchString(yy) || !twoDigits.MatchString(mm) {
		return 0, 0, false
	}
	year, _ := strconv.Atoi(yy)
	month, _ := strconv.Atoi(mm)
	if month < 1 || month > 12 {
		return 0, 0, false
	}
	return 2000 + year, month, true
}

// Scan walks dir recursively and returns the highest invoiced month per
// year. A missing directory yields an empty result.
func Scan(dir string) (map[int]int, error) {
	months := make(map[int]int)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if year, month, ok := ParseFileName(d.Name()); ok && month > months[year] {
			months[year] = month
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	return months, nil
}

// LastInvoiced returns the highest invoiced month of year in dir, 0 when
// none.
func LastInvoiced(dir string, year int) (int, error) {
	months, err := Scan(dir)
	if err != nil {
		return 0, err
	}
	return months[year], nil
}
