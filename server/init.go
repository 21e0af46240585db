package server

import (
	"fmt"
	"os"
)

const starterConfig = `# Federation Gateway configuration.
endpoint: /graphql
service_name: federation-router
port: 8080
timeout_duration: 5s
enable_hang_over_request_header: true

supergraph:
  source: file # file | url | registration
  poll_interval: 30s
  files:
    - name: products
      host: http://localhost:4001
      schema_files:
        - schema/products.graphql

limits:
  max_depth: 16
  max_directives: 64
  max_complexity: 10000

auth:
  jwt:
    enabled: false

opentelemetry:
  tracing:
    enable: false
  metrics:
    exporters:
      - prometheus

cache:
  max_entries: 1024
`

// Init writes a starter gateway.yaml to the current directory in the shape
// config.Load expects.
func Init() {
	const path = "gateway.yaml"

	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "%s already exists, leaving it untouched\n", path)
		return
	}

	if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", path, err)
		os.Exit(1)
	}

	fmt.Printf("wrote starter configuration to %s\n", path)
}
