package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"klinevault/internal/model"
)

type barRecord struct {
	OpenTime            int64   `parquet:"name=open_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Open                float64 `parquet:"name=open, type=DOUBLE"`
	High                float64 `parquet:"name=high, type=DOUBLE"`
	Low                 float64 `parquet:"name=low, type=DOUBLE"`
	Close               float64 `parquet:"name=close, type=DOUBLE"`
	Volume              float64 `parquet:"name=volume, type=DOUBLE"`
	CloseTime           int64   `parquet:"name=close_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	QuoteVolume         float64 `parquet:"name=quote_volume, type=DOUBLE"`
	Count               int64   `parquet:"name=count, type=INT64"`
	TakerBuyVolume      float64 `parquet:"name=taker_buy_volume, type=DOUBLE"`
	TakerBuyQuoteVolume float64 `parquet:"name=taker_buy_quote_volume, type=DOUBLE"`
	Ignore              float64 `parquet:"name=ignore, type=DOUBLE"`
	LogReturn           float64 `parquet:"name=log_return, type=DOUBLE"`
	CumReturn           float64 `parquet:"name=cum_return, type=DOUBLE"`
}

func toRecord(b model.Bar) barRecord {
	return barRecord{
		OpenTime:            b.OpenTime.UnixMilli(),
		Open:                b.Open,
		High:                b.High,
		Low:                 b.Low,
		Close:               b.Close,
		Volume:              b.Volume,
		CloseTime:           b.CloseTime.UnixMilli(),
		QuoteVolume:         b.QuoteVolume,
		Count:               b.Count,
		TakerBuyVolume:      b.TakerBuyVolume,
		TakerBuyQuoteVolume: b.TakerBuyQuoteVolume,
		Ignore:              b.Ignore,
		LogReturn:           b.LogReturn,
		CumReturn:           b.CumReturn,
	}
}

func fromRecord(r barRecord) model.Bar {
	return model.Bar{
		OpenTime:            time.UnixMilli(r.OpenTime).UTC(),
		Open:                r.Open,
		High:                r.High,
		Low:                 r.Low,
		Close:               r.Close,
		Volume:              r.Volume,
		CloseTime:           time.UnixMilli(r.CloseTime).UTC(),
		QuoteVolume:         r.QuoteVolume,
		Count:               r.Count,
		TakerBuyVolume:      r.TakerBuyVolume,
		TakerBuyQuoteVolume: r.TakerBuyQuoteVolume,
		Ignore:              r.Ignore,
		LogReturn:           r.LogReturn,
		CumReturn:           r.CumReturn,
	}
}

// writeParquet writes the table to a temporary file next to path and
// renames it into place, so readers never observe a partial artifact.
func writeParquet(path string, t *model.Table, compression string) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	tmp := path + ".tmp"
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	fw, err := local.NewLocalFileWriter(tmp)
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}

	pw, err := writer.NewParquetWriter(fw, new(barRecord), 1)
	if err != nil {
		fw.Close()
		return fmt.Errorf("new parquet writer: %w", err)
	}

	switch compression {
	case "snappy", "":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, b := range t.Bars {
		if err := pw.Write(toRecord(b)); err != nil {
			pw.WriteStop()
			fw.Close()
			return fmt.Errorf("write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("finalize parquet: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("close parquet file: %w", err)
	}
	return os.Rename(tmp, path)
}

func readParquet(path string) ([]model.Bar, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(barRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("new parquet reader: %w", err)
	}
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	recs := make([]barRecord, n)
	if n > 0 {
		if err := pr.Read(&recs); err != nil {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
	}

	bars := make([]model.Bar, len(recs))
	for i, r := range recs {
		bars[i] = fromRecord(r)
	}
	return bars, nil
}
