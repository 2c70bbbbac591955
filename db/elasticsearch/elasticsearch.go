package elasticsearch

import (
	"errors"

	"github.com/elastic/go-elasticsearch/v8"
	"hermannm.dev/summarytable/config"
	"hermannm.dev/summarytable/db"
	"hermannm.dev/wrap"
)

// Implements db.SummaryDB for Elasticsearch, aggregating over an index with one document per loan
// record. Dimension fields must be mapped as keyword (or numeric) fields so that they can be
// used in terms aggregations.
type ElasticsearchDB struct {
	client  *elasticsearch.TypedClient
	index   string
	maxRows int
}

func NewElasticsearchDB(config config.Config) (ElasticsearchDB, error) {
	if config.Elasticsearch.Index == "" {
		return ElasticsearchDB{}, errors.New("Elasticsearch index name is blank")
	}

	client, err := elasticsearch.NewTypedClient(elasticsearch.Config{
		Addresses:         []string{config.Elasticsearch.Address},
		EnableDebugLogger: config.Elasticsearch.Debug,
	})
	if err != nil {
		return ElasticsearchDB{}, wrap.Error(err, "failed to connect to Elasticsearch")
	}

	maxRows := config.Query.MaxRows
	if maxRows <= 0 {
		maxRows = db.DefaultMaxRows
	}

	return ElasticsearchDB{client: client, index: config.Elasticsearch.Index, maxRows: maxRows}, nil
}
