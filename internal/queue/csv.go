package queue

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Canonical column order for freshly written files. Reads resolve columns by
// header name so files with reordered or trailing extra columns still load.
var csvColumns = []string{
	"Topic",
	"Status",
	"Timestamp_Start",
	"Timestamp_End",
	"Duration_Seconds",
	"Quality_Score",
	"Error_Message",
	"Output_Path",
}

const csvTimeLayout = time.RFC3339Nano

func (s *FileStore) readRows() ([]*Record, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open record store: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	raw, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse record store %s: %w", s.path, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	columnAt := make(map[string]int, len(raw[0]))
	for i, name := range raw[0] {
		columnAt[name] = i
	}
	for _, required := range []string{"Topic", "Status"} {
		if _, ok := columnAt[required]; !ok {
			return nil, fmt.Errorf("record store %s missing %s column", s.path, required)
		}
	}

	field := func(row []string, name string) string {
		idx, ok := columnAt[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return row[idx]
	}

	rows := make([]*Record, 0, len(raw)-1)
	for lineNo, row := range raw[1:] {
		topic := field(row, "Topic")
		if topic == "" {
			continue
		}
		status, ok := ParseStatus(field(row, "Status"))
		if !ok {
			return nil, fmt.Errorf("record store %s line %d: unknown status %q", s.path, lineNo+2, field(row, "Status"))
		}
		record := &Record{
			Topic:        topic,
			Status:       status,
			ErrorMessage: field(row, "Error_Message"),
			OutputPath:   field(row, "Output_Path"),
		}
		var err error
		if record.StartedAt, err = parseCSVTime(field(row, "Timestamp_Start")); err != nil {
			return nil, fmt.Errorf("record store %s line %d: start timestamp: %w", s.path, lineNo+2, err)
		}
		if record.FinishedAt, err = parseCSVTime(field(row, "Timestamp_End")); err != nil {
			return nil, fmt.Errorf("record store %s line %d: end timestamp: %w", s.path, lineNo+2, err)
		}
		if raw := field(row, "Duration_Seconds"); raw != "" {
			if record.DurationSeconds, err = strconv.ParseFloat(raw, 64); err != nil {
				return nil, fmt.Errorf("record store %s line %d: duration: %w", s.path, lineNo+2, err)
			}
		}
		if raw := field(row, "Quality_Score"); raw != "" {
			score, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("record store %s line %d: quality score: %w", s.path, lineNo+2, err)
			}
			record.QualityScore = &score
		}
		rows = append(rows, record)
	}
	return rows, nil
}

// writeRows rewrites the whole store atomically: write a sibling temp file,
// fsync, then rename over the original. A crash mid-write leaves the
// previous file intact.
func (s *FileStore) writeRows(rows []*Record) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".topics-*.csv")
	if err != nil {
		return fmt.Errorf("create temp record store: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	writer := csv.NewWriter(tmp)
	if err := writer.Write(csvColumns); err != nil {
		tmp.Close()
		return fmt.Errorf("write record store header: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(csvRow(row)); err != nil {
			tmp.Close()
			return fmt.Errorf("write record store row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush record store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync record store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close record store: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace record store: %w", err)
	}
	return nil
}

func csvRow(record *Record) []string {
	duration := ""
	if record.DurationSeconds != 0 {
		duration = strconv.FormatFloat(record.DurationSeconds, 'f', -1, 64)
	}
	quality := ""
	if record.QualityScore != nil {
		quality = strconv.FormatFloat(*record.QualityScore, 'f', -1, 64)
	}
	return []string{
		record.Topic,
		string(record.Status),
		formatCSVTime(record.StartedAt),
		formatCSVTime(record.FinishedAt),
		duration,
		quality,
		record.ErrorMessage,
		record.OutputPath,
	}
}

func formatCSVTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(csvTimeLayout)
}

func parseCSVTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(csvTimeLayout, raw)
	if err != nil {
		// Files written by other tooling may carry second precision.
		parsed, err = time.Parse("2006-01-02 15:04:05", raw)
		if err != nil {
			return nil, err
		}
	}
	parsed = parsed.UTC()
	return &parsed, nil
}
