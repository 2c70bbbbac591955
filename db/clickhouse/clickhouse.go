package clickhouse

import (
	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"hermannm.dev/devlog/log"
	"hermannm.dev/summarytable/config"
	"hermannm.dev/summarytable/db"
	"hermannm.dev/wrap"
)

// Implements db.SummaryDB for ClickHouse, aggregating over a table of loan records with one
// column per field.
type ClickHouseDB struct {
	conn    driver.Conn
	table   string
	maxRows int
}

func NewClickHouseDB(config config.Config) (ClickHouseDB, error) {
	if err := ValidateIdentifier(config.ClickHouse.Table); err != nil {
		return ClickHouseDB{}, wrap.Error(err, "invalid ClickHouse table name")
	}

	// Options docs: https://clickhouse.com/docs/en/integrations/go#connection-settings
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{config.ClickHouse.Address},
		Auth: clickhouse.Auth{
			Database: config.ClickHouse.DatabaseName,
			Username: config.ClickHouse.Username,
			Password: config.ClickHouse.Password,
		},
		Debug:       config.ClickHouse.Debug,
		Debugf:      log.Debugf,
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
	})
	if err != nil {
		return ClickHouseDB{}, wrap.Error(err, "failed to connect to ClickHouse")
	}

	maxRows := config.Query.MaxRows
	if maxRows <= 0 {
		maxRows = db.DefaultMaxRows
	}

	return ClickHouseDB{conn: conn, table: config.ClickHouse.Table, maxRows: maxRows}, nil
}

func (clickhouse ClickHouseDB) Close() error {
	return clickhouse.conn.Close()
}
