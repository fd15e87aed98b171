package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/domset-tools/stride-runner/internal/store"
)

// ErrNoSelection is returned when neither an instance file nor a where
// clause was given.
var ErrNoSelection = errors.New("no instances selected; pass -i/--instances and/or -w/--where")

// ReadInstanceList parses an IID list: one unsigned integer per line,
// blank lines skipped, lines starting with '#' or 'c' treated as comments
// (the export subcommand writes a 'c' header, so both forms re-import).
// Duplicates are dropped, first occurrence wins.
func ReadInstanceList(r io.Reader) ([]uint32, error) {
	sc := bufio.NewScanner(r)

	var iids []uint32
	seen := make(map[uint32]bool)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "c") {
			continue
		}
		v, err := strconv.ParseUint(line, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("instance list line %d: %q is not an instance id", lineNo, line)
		}
		iid := uint32(v)
		if !seen[iid] {
			seen[iid] = true
			iids = append(iids, iid)
		}
	}
	return iids, sc.Err()
}

// SelectJobs computes the ordered iid list from the instance file and/or
// the where clause:
//
//	file only  -> file order, deduplicated
//	where only -> SQLite result order
//	both       -> intersection, in file order
//
// The returned unknown slice lists file iids that have no metadata row
// (sorted). They are always reported; with a file-only selection they are
// also dispatched so they show up as Error outcomes rather than silently
// vanishing, while an intersection drops them because the where clause
// cannot match them.
func SelectJobs(ctx context.Context, meta *store.MetaStore, instanceFile, where string, sortByIID bool) (iids []uint32, unknown []uint32, err error) {
	if instanceFile == "" && where == "" {
		return nil, nil, ErrNoSelection
	}

	var fromFile []uint32
	if instanceFile != "" {
		f, err := os.Open(instanceFile)
		if err != nil {
			return nil, nil, fmt.Errorf("open instance list: %w", err)
		}
		fromFile, err = ReadInstanceList(f)
		f.Close()
		if err != nil {
			return nil, nil, err
		}
	}

	var fromDB []uint32
	if where != "" {
		fromDB, err = meta.SelectIIDs(ctx, where)
		if err != nil {
			return nil, nil, err
		}
	}

	switch {
	case instanceFile != "" && where != "":
		inDB := make(map[uint32]bool, len(fromDB))
		for _, iid := range fromDB {
			inDB[iid] = true
		}
		for _, iid := range fromFile {
			if inDB[iid] {
				iids = append(iids, iid)
			}
		}
	case instanceFile != "":
		iids = fromFile
	default:
		iids = fromDB
	}

	if instanceFile != "" {
		unknown, err = missingFromMeta(ctx, meta, fromFile)
		if err != nil {
			return nil, nil, err
		}
	}

	if sortByIID {
		sort.Slice(iids, func(i, j int) bool { return iids[i] < iids[j] })
	}
	return iids, unknown, nil
}

func missingFromMeta(ctx context.Context, meta *store.MetaStore, iids []uint32) ([]uint32, error) {
	known, err := meta.SelectIIDs(ctx, "1=1")
	if err != nil {
		return nil, err
	}
	knownSet := make(map[uint32]bool, len(known))
	for _, iid := range known {
		knownSet[iid] = true
	}

	var missing []uint32
	for _, iid := range iids {
		if !knownSet[iid] {
			missing = append(missing, iid)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing, nil
}

// WriteInstanceList writes the selected iids in the list format, with a
// leading comment carrying the count.
func WriteInstanceList(w io.Writer, iids []uint32) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "c %d instances\n", len(iids)); err != nil {
		return err
	}
	for _, iid := range iids {
		if _, err := fmt.Fprintf(bw, "%d\n", iid); err != nil {
			return err
		}
	}
	return bw.Flush()
}
