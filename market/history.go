package market

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// HistData ASCII M1 files are stamped in EST without daylight saving.
var estNoDST = time.FixedZone("EST", -5*60*60)

const histLayout = "20060102 150405"

// HistoryStats counts lines skipped while loading a history file.
type HistoryStats struct {
	Loaded     int
	Duplicates int
	BadLines   int
}

// LoadHistory reads M1 bars from a semicolon separated HistData file
// ("20250101 170000;1.035030;1.035140;1.035030;1.035140;0"). Bars come
// back in UTC, oldest first. Later duplicates of a minute are ignored.
func LoadHistory(path string) ([]Candle, HistoryStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, HistoryStats{}, err
	}
	defer f.Close()
	return ReadHistory(f)
}

func ReadHistory(r io.Reader) ([]Candle, HistoryStats, error) {
	var (
		stats HistoryStats
		out   []Candle
	)
	seen := make(map[int64]bool)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "time;") || strings.HasPrefix(line, "Time;") {
			continue
		}
		c, err := parseHistLine(line)
		if err != nil {
			stats.BadLines++
			continue
		}
		ts := c.Time.Unix()
		if seen[ts] {
			stats.Duplicates++
			continue
		}
		seen[ts] = true
		out = append(out, c)
	}
	if err := sc.Err(); err != nil {
		return nil, stats, err
	}
	if len(out) == 0 {
		return nil, stats, fmt.Errorf("no valid bars in history")
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	stats.Loaded = len(out)
	return out, stats, nil
}

func parseHistLine(line string) (Candle, error) {
	parts := strings.Split(line, ";")
	if len(parts) < 5 {
		return Candle{}, fmt.Errorf("want at least 5 fields, got %d", len(parts))
	}
	t, err := time.ParseInLocation(histLayout, parts[0], estNoDST)
	if err != nil {
		return Candle{}, err
	}

	var px [4]float64
	for i := range px {
		if px[i], err = strconv.ParseFloat(strings.TrimSpace(parts[i+1]), 64); err != nil {
			return Candle{}, err
		}
	}
	c := Candle{Time: t.UTC(), Open: px[0], High: px[1], Low: px[2], Close: px[3]}
	if len(parts) > 5 {
		c.Volume, _ = strconv.ParseFloat(strings.TrimSpace(parts[5]), 64)
	}
	if c.Low > c.High || c.Open <= 0 || c.Close <= 0 {
		return Candle{}, fmt.Errorf("inconsistent bar %q", line)
	}
	return c, nil
}

// Aggregate rolls sorted M1 bars up into tf bars. Buckets are aligned
// to the unix epoch, except W1 which starts on Monday 00:00 UTC. Empty
// buckets produce no bar.
func Aggregate(m1 []Candle, tf Timeframe) []Candle {
	if tf == M1 {
		return append([]Candle(nil), m1...)
	}
	secs := int64(tf.Seconds())
	if secs <= 0 {
		return nil
	}

	var out []Candle
	cur := int64(-1)
	for _, bar := range m1 {
		start := bucketStart(bar.Time.Unix(), secs, tf)
		if start != cur {
			cur = start
			out = append(out, Candle{
				Time:   time.Unix(start, 0).UTC(),
				Open:   bar.Open,
				High:   bar.High,
				Low:    bar.Low,
				Close:  bar.Close,
				Volume: bar.Volume,
			})
			continue
		}
		agg := &out[len(out)-1]
		agg.High = max(agg.High, bar.High)
		agg.Low = min(agg.Low, bar.Low)
		agg.Close = bar.Close
		agg.Volume += bar.Volume
	}
	return out
}

// Monday 1970-01-05 is four days after the epoch.
const mondayOffset = 4 * 24 * 60 * 60

func bucketStart(ts, secs int64, tf Timeframe) int64 {
	if tf == W1 {
		return ((ts-mondayOffset)/secs)*secs + mondayOffset
	}
	return (ts / secs) * secs
}
