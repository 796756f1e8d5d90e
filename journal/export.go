package journal

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"klubstake/core"
)

// ClientLister is the subset of the ledger the export needs.
type ClientLister interface {
	AllClients(ctx context.Context) ([]core.ClientResponse, error)
}

type clientRow struct {
	Address        string `parquet:"name=address, type=UTF8, encoding=PLAIN_DICTIONARY"`
	StakedAmount   string `parquet:"name=staked_amount, type=UTF8, encoding=PLAIN_DICTIONARY"`
	YieldGenerated string `parquet:"name=yield_generated, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Position       int64  `parquet:"name=position, type=INT64"`
	ExportedAt     string `parquet:"name=exported_at, type=UTF8, encoding=PLAIN_DICTIONARY"`
}

// ExportClients writes every client registry record to a Parquet file at path
// in index order and returns the number of rows written.
func ExportClients(ctx context.Context, lister ClientLister, path string) (int, error) {
	clients, err := lister.AllClients(ctx)
	if err != nil {
		return 0, fmt.Errorf("journal: list clients: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("journal: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(clientRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("journal: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	exportedAt := time.Now().UTC().Format(time.RFC3339)
	for i, client := range clients {
		row := &clientRow{
			Address:        client.Address,
			StakedAmount:   client.StakedAmount,
			YieldGenerated: client.YieldGenerated,
			Position:       int64(i),
			ExportedAt:     exportedAt,
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return 0, fmt.Errorf("journal: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return 0, fmt.Errorf("journal: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("journal: close parquet file: %w", err)
	}
	return len(clients), nil
}
