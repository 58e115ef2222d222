// Command testclient probes the service's gRPC health endpoint.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	grpcapi "ai-speech-roundtrip-service/internal/api/grpc"
)

func main() {
	serverAddr := flag.String("server", "localhost:50051", "gRPC server address")
	timeout := flag.Duration("timeout", 5*time.Second, "Probe timeout")
	flag.Parse()

	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	client := grpc_health_v1.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	healthy := true
	for _, svc := range append([]string{""}, grpcapi.Services...) {
		resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: svc})
		name := svc
		if name == "" {
			name = "(overall)"
		}
		if err != nil {
			log.Printf("%s: check failed: %v", name, err)
			healthy = false
			continue
		}
		log.Printf("%s: %s", name, resp.Status)
		if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
			healthy = false
		}
	}

	if !healthy {
		os.Exit(1)
	}
}
