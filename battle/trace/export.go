package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
)

// CSV column headers for the turn log.
var turnLogColumns = []string{
	"turn", "code", "kind", "subject", "controller", "params", "result", "outcome", "detail",
}

// paramSeparator joins parameter tokens inside the params column.
const paramSeparator = " "

// IsCompressed reports whether a data path selects zstd compression.
func IsCompressed(path string) bool {
	return strings.HasSuffix(path, ".zst")
}

// HeaderPathFor derives the YAML header path that accompanies a data path:
// battle.csv.zst -> battle.header.yaml.
func HeaderPathFor(dataPath string) string {
	base := strings.TrimSuffix(dataPath, ".zst")
	base = strings.TrimSuffix(base, ".csv")
	return base + ".header.yaml"
}

// ExportTurnLog writes the trace header (YAML) and records (CSV) to separate
// files. A data path ending in .zst is zstd-compressed.
func ExportTurnLog(mt *MatchTrace, headerPath, dataPath string) error {
	headerData, err := yaml.Marshal(&mt.Header)
	if err != nil {
		return fmt.Errorf("marshaling turn log header: %w", err)
	}
	if err := os.WriteFile(headerPath, headerData, 0644); err != nil {
		return fmt.Errorf("writing turn log header: %w", err)
	}

	file, err := os.Create(dataPath)
	if err != nil {
		return fmt.Errorf("creating turn log data file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var out io.Writer = file
	var enc *zstd.Encoder
	if IsCompressed(dataPath) {
		enc, err = zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("creating zstd encoder: %w", err)
		}
		out = enc
	}

	if err := WriteRecords(out, mt.Records); err != nil {
		if enc != nil {
			_ = enc.Close()
		}
		return err
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return fmt.Errorf("finishing zstd stream: %w", err)
		}
	}
	return file.Close()
}

// WriteRecords writes the CSV header row and one row per record.
func WriteRecords(w io.Writer, records []ActionRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(turnLogColumns); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for i, r := range records {
		row := []string{
			strconv.Itoa(r.Turn),
			fmt.Sprintf("%04x", r.Code),
			r.Kind,
			r.Subject,
			r.Controller,
			strings.Join(r.Params, paramSeparator),
			r.Result,
			string(r.Outcome),
			r.Detail,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("writing CSV row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadTurnLog reads a header (YAML) and data (CSV, optionally .zst) pair.
func ReadTurnLog(headerPath, dataPath string) (*MatchTrace, error) {
	headerData, err := os.ReadFile(headerPath)
	if err != nil {
		return nil, fmt.Errorf("reading turn log header: %w", err)
	}
	var header Header
	if err := yaml.Unmarshal(headerData, &header); err != nil {
		return nil, fmt.Errorf("parsing turn log header: %w", err)
	}

	file, err := os.Open(dataPath)
	if err != nil {
		return nil, fmt.Errorf("opening turn log data: %w", err)
	}
	defer func() { _ = file.Close() }()

	var in io.Reader = file
	if IsCompressed(dataPath) {
		dec, err := zstd.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		defer dec.Close()
		in = dec
	}

	records, err := ReadRecords(in)
	if err != nil {
		return nil, err
	}
	mt := NewMatchTrace(TraceConfig{Level: TraceLevelActions}, header)
	mt.Records = records
	return mt, nil
}

// ReadRecords parses the CSV produced by WriteRecords.
func ReadRecords(r io.Reader) ([]ActionRecord, error) {
	reader := csv.NewReader(r)

	// Skip header row
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	var records []ActionRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row: %w", err)
		}
		rec, err := parseActionRecord(row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseActionRecord(row []string) (ActionRecord, error) {
	if len(row) < len(turnLogColumns) {
		return ActionRecord{}, fmt.Errorf("CSV row has %d columns, expected %d", len(row), len(turnLogColumns))
	}
	turn, err := strconv.Atoi(row[0])
	if err != nil {
		return ActionRecord{}, fmt.Errorf("parsing turn %q: %w", row[0], err)
	}
	code, err := strconv.ParseUint(row[1], 16, 16)
	if err != nil {
		return ActionRecord{}, fmt.Errorf("parsing code %q: %w", row[1], err)
	}
	var params []string
	if row[5] != "" {
		params = strings.Split(row[5], paramSeparator)
	}
	return ActionRecord{
		Turn:       turn,
		Code:       uint16(code),
		Kind:       row[2],
		Subject:    row[3],
		Controller: row[4],
		Params:     params,
		Result:     row[6],
		Outcome:    Outcome(row[7]),
		Detail:     row[8],
	}, nil
}
