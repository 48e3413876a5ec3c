// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

package scenario

import (
	"bytes"
	"strconv"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/hhsurvey/gainimpute/pkg/support/fsutil"
	"github.com/hhsurvey/gainimpute/pkg/support/imputeerr"
)

// DefaultTimingFile is the name of the timing log of GAIN runs.
const DefaultTimingFile = "imputation_times_gain.csv"

// TimingColumns of the timing log.
var TimingColumns = []string{"Dataset", "Mechanism", "MissingRatio", "AvgTime"}

// TimingRecord is the average imputation time, in seconds, over the runs of a (mechanism, ratio).
type TimingRecord struct {
	Cohort    string
	Mechanism Mechanism
	Ratio     int
	AvgTime   float64
}

// TimingLog accumulates TimingRecords and rewrites the whole log file on every Add.
type TimingLog struct {
	Path    string
	Records []TimingRecord
}

// NewTimingLog creates an empty log to be written to path.
func NewTimingLog(path string) *TimingLog {
	return &TimingLog{Path: path}
}

// Add a record, computing the average of durations, and rewrite the file.
// It returns the record added.
func (l *TimingLog) Add(cohort string, mech Mechanism, ratio int, durations []time.Duration) (TimingRecord, error) {
	r := TimingRecord{Cohort: cohort, Mechanism: mech, Ratio: ratio}
	if len(durations) > 0 {
		var total time.Duration
		for _, d := range durations {
			total += d
		}
		r.AvgTime = total.Seconds() / float64(len(durations))
	}
	l.Records = append(l.Records, r)
	return r, l.Write()
}

// DataFrame returns the log as a gota DataFrame.
func (l *TimingLog) DataFrame() dataframe.DataFrame {
	records := [][]string{TimingColumns}
	for _, r := range l.Records {
		records = append(records, []string{
			r.Cohort, r.Mechanism.String(), strconv.Itoa(r.Ratio), strconv.FormatFloat(r.AvgTime, 'f', -1, 64)})
	}
	return dataframe.LoadRecords(records,
		dataframe.DetectTypes(false),
		dataframe.WithTypes(map[string]series.Type{
			"Dataset":      series.String,
			"Mechanism":    series.String,
			"MissingRatio": series.Int,
			"AvgTime":      series.Float,
		}))
}

// Write the whole log to its path.
func (l *TimingLog) Write() error {
	df := l.DataFrame()
	if df.Err != nil {
		return imputeerr.Wrap(imputeerr.IOError, df.Err, "building timing log")
	}
	var buf bytes.Buffer
	if err := df.WriteCSV(&buf); err != nil {
		return imputeerr.Wrap(imputeerr.IOError, err, "serializing timing log")
	}
	if err := fsutil.WriteFileAtomic(l.Path, buf.Bytes()); err != nil {
		return imputeerr.Wrap(imputeerr.IOError, err, "writing timing log")
	}
	return nil
}
