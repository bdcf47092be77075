package market

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"alpha-tick-bot-go/internal/models"
)

// ReadBarsCSV loads historical bars from a CSV file in the downloader's
// format: open_time_ms,open,high,low,close,volume with a header row.
func ReadBarsCSV(path string) ([]models.Bar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv records: %w", err)
	}
	if len(records) <= 1 {
		return nil, fmt.Errorf("data file %s is empty or header-only", path)
	}
	records = records[1:]

	bars := make([]models.Bar, 0, len(records))
	for _, rec := range records {
		if len(rec) < 6 {
			return nil, fmt.Errorf("malformed csv row: %v", rec)
		}
		tsMs, errT := strconv.ParseInt(rec[0], 10, 64)
		open, errO := strconv.ParseFloat(rec[1], 64)
		high, errH := strconv.ParseFloat(rec[2], 64)
		low, errL := strconv.ParseFloat(rec[3], 64)
		closePx, errC := strconv.ParseFloat(rec[4], 64)
		volume, errV := strconv.ParseFloat(rec[5], 64)
		if errT != nil || errO != nil || errH != nil || errL != nil || errC != nil || errV != nil {
			return nil, fmt.Errorf("unparsable csv row: %v", rec)
		}
		bars = append(bars, models.Bar{
			OpenTime: time.UnixMilli(tsMs),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closePx,
			Volume:   volume,
		})
	}
	return bars, nil
}
