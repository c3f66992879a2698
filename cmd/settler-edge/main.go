// Command settler-edge runs an edge reconciliation node: local
// ingestion with PII redaction, candidate matching, anomaly detection
// and background sync to the cloud control plane.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/settlerhq/settler-edge/internal/config"
	"github.com/settlerhq/settler-edge/internal/node"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file (optional, uses env vars by default)")
	enrollCmd  = flag.Bool("enroll", false, "Enroll this node with the control plane and exit")
	statusCmd  = flag.Bool("status", false, "Print node status and exit")
	ingestFile = flag.String("ingest", "", "Run the ingestion pipeline on a JSON batch file and exit")
	sourceFile = flag.String("source", "", "Source batch file for -match")
	matchFile  = flag.String("match", "", "Match the -source batch against this target batch file and exit")
	detectFile = flag.String("detect", "", "Run anomaly detection on a JSON batch file and exit")
	flushCmd   = flag.Bool("flush", false, "Run one sync cycle and exit")
)

func main() {
	flag.Parse()

	// A .env file is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	service, err := node.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create node service: %v", err)
	}

	ctx := context.Background()

	switch {
	case *enrollCmd:
		handleEnroll(ctx, service)
	case *statusCmd:
		handleStatus(ctx, service)
	case *ingestFile != "":
		handleIngest(ctx, service, *ingestFile)
	case *matchFile != "":
		handleMatch(ctx, service, *sourceFile, *matchFile)
	case *detectFile != "":
		handleDetect(ctx, service, *detectFile)
	case *flushCmd:
		handleFlush(ctx, service)
	default:
		runService(ctx, service)
	}
}

func handleEnroll(ctx context.Context, service *node.Service) {
	if err := service.Enroll(ctx); err != nil {
		log.Fatalf("Enrollment failed: %v", err)
	}
	fmt.Printf("Enrolled as %s\n", service.NodeID())
}

func handleStatus(ctx context.Context, service *node.Service) {
	status, err := service.Status(ctx)
	if err != nil {
		log.Fatalf("Failed to read status: %v", err)
	}
	printJSON(status)
}

func handleIngest(ctx context.Context, service *node.Service, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read batch file: %v", err)
	}

	result, err := service.ProcessIngestion(ctx, data)
	if err != nil {
		log.Fatalf("Ingestion failed: %v", err)
	}
	printJSON(result)
}

func handleMatch(ctx context.Context, service *node.Service, sourcePath, targetPath string) {
	if sourcePath == "" {
		log.Fatal("-match requires -source")
	}

	source, err := os.ReadFile(sourcePath)
	if err != nil {
		log.Fatalf("Failed to read source file: %v", err)
	}
	target, err := os.ReadFile(targetPath)
	if err != nil {
		log.Fatalf("Failed to read target file: %v", err)
	}

	candidates, err := service.ProcessMatching(ctx, source, target)
	if err != nil {
		log.Fatalf("Matching failed: %v", err)
	}
	fmt.Printf("Found %d candidates\n", len(candidates))
	printJSON(candidates)
}

func handleDetect(ctx context.Context, service *node.Service, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read batch file: %v", err)
	}

	anomalies, err := service.DetectAnomalies(ctx, data)
	if err != nil {
		log.Fatalf("Anomaly detection failed: %v", err)
	}
	fmt.Printf("Flagged %d anomalies\n", len(anomalies))
	printJSON(anomalies)
}

func handleFlush(ctx context.Context, service *node.Service) {
	if err := service.Flush(ctx); err != nil {
		log.Fatalf("Sync failed: %v", err)
	}
	log.Println("Sync cycle complete")
}

func runService(ctx context.Context, service *node.Service) {
	if err := service.Start(ctx); err != nil {
		log.Fatalf("Failed to start node: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received %v, shutting down", sig)

	if err := service.Stop(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode output: %v", err)
	}
	fmt.Println(string(out))
}
