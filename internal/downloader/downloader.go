// Package downloader fetches historical klines for replay runs and caches
// them as CSV.
package downloader

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adshao/go-binance/v2"
	"go.uber.org/zap"
)

// batchLimit is the maximum klines per REST request.
const batchLimit = 1000

// KlineDownloader pulls klines from the public REST API and writes them in
// the replay CSV format: open_time_ms,open,high,low,close,volume.
type KlineDownloader struct {
	client *binance.Client
	logger *zap.SugaredLogger
}

// NewKlineDownloader builds a downloader. The kline endpoint is public, so
// no credentials are needed.
func NewKlineDownloader(logger *zap.SugaredLogger) *KlineDownloader {
	return &KlineDownloader{
		client: binance.NewClient("", ""),
		logger: logger,
	}
}

// DownloadKlines writes the klines for [startTime, endTime) to filePath.
// An existing file is treated as a cache hit and left untouched.
func (d *KlineDownloader) DownloadKlines(symbol, interval, filePath string, startTime, endTime time.Time) error {
	if _, err := os.Stat(filePath); err == nil {
		d.logger.Infof("using cached data: %s", filePath)
		return nil
	}

	d.logger.Infof("downloading %s %s klines, %s to %s",
		symbol, interval, startTime.Format("2006-01-02"), endTime.Format("2006-01-02"))

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("create data file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"open_time_ms", "open", "high", "low", "close", "volume"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for t := startTime; t.Before(endTime); {
		klines, err := d.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(t.UnixMilli()).
			EndTime(endTime.UnixMilli()).
			Limit(batchLimit).
			Do(context.Background())
		if err != nil {
			return fmt.Errorf("fetch klines: %w", err)
		}
		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			record := []string{
				fmt.Sprintf("%d", k.OpenTime),
				k.Open,
				k.High,
				k.Low,
				k.Close,
				k.Volume,
			}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("write csv record: %w", err)
			}
		}

		t = time.UnixMilli(klines[len(klines)-1].CloseTime + 1)
		d.logger.Debugf("downloaded through %s", t.Format("2006-01-02 15:04:05"))
		time.Sleep(200 * time.Millisecond) // stay under the request weight limit
	}

	d.logger.Infof("saved kline data to %s", filePath)
	return nil
}
