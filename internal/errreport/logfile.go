package errreport

import (
	"bufio"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var entryHeader = regexp.MustCompile(`^#([0-9a-f]{8}) (\d+)x$`)

// ReadLog parses an error log written by a Reporter. Entries with the same
// hash are merged; Count is the highest count seen. A missing file yields no
// records.
func ReadLog(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	records := make(map[string]*Record)
	var (
		current *Record
		trace   []string
	)
	flush := func() {
		if current == nil {
			return
		}
		current.Trace = strings.TrimSpace(strings.Join(trace, "\n"))
		if prev, ok := records[current.Hash]; !ok || current.Count >= prev.Count {
			records[current.Hash] = current
		}
		current, trace = nil, nil
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if m := entryHeader.FindStringSubmatch(line); m != nil {
			flush()
			count, _ := strconv.Atoi(m[2])
			current = &Record{Hash: m[1], Count: count}
			continue
		}
		if current != nil {
			trace = append(trace, line)
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(records))
	for _, rec := range records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Hash < out[j].Hash
	})
	return out, nil
}
