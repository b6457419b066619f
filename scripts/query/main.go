package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	mode := flag.String("mode", "api", "Query mode: 'api' for the HTTP API, 'health' for the gRPC health service, 'direct' to query ClickHouse directly.")
	apiAddr := flag.String("api", "http://localhost:8080", "Base URL of the HTTP API")
	path := flag.String("path", "/stats/protocol", "API path for 'api' mode (e.g. /stats/switch, /stats/flow/1)")
	method := flag.String("method", "GET", "HTTP method for 'api' mode")
	grpcAddr := flag.String("grpc", "localhost:50051", "gRPC health server address")
	service := flag.String("service", "ofspectra.switches", "Health service name for 'health' mode")
	chAddr := flag.String("clickhouse", "localhost:9000", "ClickHouse address for 'direct' mode")
	since := flag.Duration("since", time.Hour, "How far back 'direct' mode looks")
	flag.Parse()

	log.Printf("Running in '%s' mode.", *mode)

	switch *mode {
	case "api":
		queryViaAPI(*method, *apiAddr+*path)
	case "health":
		queryHealth(*grpcAddr, *service)
	case "direct":
		directQueryClickHouse(*chAddr, *since)
	default:
		log.Fatalf("Invalid mode: %s. Use 'api', 'health' or 'direct'.", *mode)
	}
}

func queryViaAPI(method, url string) {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		log.Fatalf("Error building request: %v", err)
	}
	log.Printf("Sending %s %s", method, url)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Error sending request: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Error reading response body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("API returned non-200 status code: %d\nResponse: %s", resp.StatusCode, string(respBody))
	}

	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, respBody, "", "  "); err != nil {
		log.Printf("Could not prettify JSON, printing raw response:")
		fmt.Println(string(respBody))
		return
	}
	fmt.Println(prettyJSON.String())
}

func queryHealth(addr, service string) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("did not connect: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		log.Fatalf("Health check failed: %v", err)
	}
	fmt.Printf("%s: %s\n", service, resp.GetStatus())
}

func directQueryClickHouse(addr string, since time.Duration) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
		},
	})
	if err != nil {
		log.Fatalf("Error connecting to ClickHouse: %v", err)
	}
	defer conn.Close()

	query := `
		SELECT Protocol, argMax(Packets, Timestamp), argMax(Bytes, Timestamp)
		FROM protocol_stats
		WHERE Timestamp >= ?
		GROUP BY Protocol
		ORDER BY Protocol
	`
	rows, err := conn.Query(context.Background(), query, time.Now().Add(-since))
	if err != nil {
		log.Fatalf("Error executing query: %v", err)
	}
	defer rows.Close()

	log.Println("--- Latest protocol counters (Direct) ---")
	var found bool
	for rows.Next() {
		found = true
		var (
			protocol           string
			packets, byteCount uint64
		)
		if err := rows.Scan(&protocol, &packets, &byteCount); err != nil {
			log.Printf("Error scanning row: %v", err)
			continue
		}
		fmt.Printf("%-6s packets=%d bytes=%d\n", protocol, packets, byteCount)
	}
	if !found {
		log.Println("No data found for the specified window.")
	}
	if err := rows.Err(); err != nil {
		log.Printf("An error occurred during row iteration: %v", err)
	}
}
