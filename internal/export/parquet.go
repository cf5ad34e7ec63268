package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"book-features/internal/features"
)

// WriteParquet writes tbl as a parquet file with an INT64 timestamp column and
// one OPTIONAL DOUBLE column per feature. Missing values are written as nulls.
// compression is "snappy", "gzip" or anything else for none.
func WriteParquet(path string, tbl *features.Table, compression string) (err error) {
	if err := ensureDir(path); err != nil {
		return err
	}

	names := tbl.Names()
	schema := make([]string, 0, len(names)+1)
	schema = append(schema, "name=timestamp, type=INT64")
	for _, name := range names {
		schema = append(schema, fmt.Sprintf("name=%s, type=DOUBLE, repetitiontype=OPTIONAL", name))
	}

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}
	defer func() {
		if cerr := fw.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close parquet file: %w", cerr)
		}
	}()

	pw, err := writer.NewCSVWriter(schema, fw, 1)
	if err != nil {
		return fmt.Errorf("new parquet writer: %w", err)
	}

	switch strings.ToLower(compression) {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	cols := make([][]float64, len(names))
	for j, name := range names {
		cols[j], _ = tbl.Column(name)
	}

	for i, ts := range tbl.Timestamps {
		rec := make([]interface{}, len(names)+1)
		rec[0] = ts
		for j := range names {
			if v := cols[j][i]; !math.IsNaN(v) {
				rec[j+1] = v
			}
		}
		if err := pw.Write(rec); err != nil {
			pw.WriteStop()
			return fmt.Errorf("write parquet row %d: %w", ts, err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finalize parquet: %w", err)
	}
	return nil
}
