package sources

import (
	"bytes"
	"testing"

	"github.com/matryer/is"
)

func TestLoadConfig(t *testing.T) {
	is, config := setupConfigTest(t)

	is.Equal(len(config.Sources), 3) // should find three sources
}

func TestLoadPostgresSource(t *testing.T) {
	is, config := setupConfigTest(t)
	src := config.Sources[0]

	is.Equal(src.ID, "library")
	is.Equal(src.Kind, KindPostgres)
	is.Equal(src.Schema, "public")
	is.Equal(len(src.Entities), 2)
	is.Equal(src.Entities[0].Name, "books")
	is.Equal(src.Entities[1].Pattern, "^audit_.+")
}

func TestLoadDynamoDBSource(t *testing.T) {
	is, config := setupConfigTest(t)
	src := config.Sources[1]

	is.Equal(src.Kind, KindDynamoDB)
	is.Equal(src.Region, "eu-north-1")
	is.Equal(src.Endpoint, "http://localhost:8000")
	is.Equal(src.TablePrefix, "catalog_")
}

func TestLoadHTTPSource(t *testing.T) {
	is, config := setupConfigTest(t)
	src := config.Sources[2]

	is.Equal(src.Kind, KindHTTP)
	is.Equal(src.Endpoint, "http://legacy-gateway:8080")
	is.Equal(src.Entities[0].Name, "customers")
	is.Equal(src.Headers["Authorization"], "Bearer legacy-token") // headers are forwarded to the remote source
}

func setupConfigTest(t *testing.T) (*is.I, *Config) {
	is := is.New(t)
	cfgData := bytes.NewBuffer([]byte(configFile))
	config, err := LoadConfiguration(cfgData)
	is.NoErr(err)

	return is, config
}

var configFile string = `
sources:
  - id: library
    kind: postgres
    schema: public
    entities:
      - name: books
      - pattern: ^audit_.+
  - id: catalog
    kind: dynamodb
    region: eu-north-1
    endpoint: http://localhost:8000
    tablePrefix: catalog_
    entities:
      - name: orders
  - id: legacy
    kind: http
    endpoint: http://legacy-gateway:8080
    headers:
      Authorization: Bearer legacy-token
    entities:
      - name: customers
`
