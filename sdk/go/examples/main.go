package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"CoSign-Relay/sdk/go/cosign"
)

// Walks a run through the full three step choreography against a local
// cosignd instance with a single secondary signer configured.
func main() {
	base := os.Getenv("COSIGN_API")
	if base == "" {
		base = "http://127.0.0.1:8080"
	}

	client, err := cosign.NewClient(base, nil)
	if err != nil {
		log.Fatalf("create client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := client.Connect(ctx, "primary"); err != nil {
		log.Fatalf("connect primary: %v", err)
	}
	run, err := client.CreateRun(ctx, cosign.RunRequest{})
	if err != nil {
		log.Fatalf("create run: %v", err)
	}
	fmt.Printf("run %s created, stage=%s\n", run.ID, run.Stage)

	run, err = client.CreateTransaction(ctx, run.ID)
	if err != nil {
		log.Fatalf("create transaction: %v", err)
	}
	fmt.Printf("stage=%s\n", run.Stage)

	if _, err := client.Connect(ctx, "secondary"); err != nil {
		log.Fatalf("connect secondary: %v", err)
	}
	run, err = client.Countersign(ctx, run.ID)
	if err != nil {
		log.Fatalf("countersign: %v", err)
	}
	fmt.Printf("stage=%s\n", run.Stage)

	if _, err := client.Connect(ctx, "primary"); err != nil {
		log.Fatalf("reconnect primary: %v", err)
	}
	run, err = client.Submit(ctx, run.ID)
	if err != nil {
		log.Fatalf("submit: %v", err)
	}
	fmt.Printf("stage=%s tx=%s error=%s\n", run.Stage, run.TxHash, run.ErrorCode)

	entries, err := client.Logs(ctx, run.ID)
	if err != nil {
		log.Fatalf("fetch logs: %v", err)
	}
	for _, entry := range entries {
		fmt.Printf("%2d [%s] %s\n", entry.Seq, entry.Level, entry.Message)
	}
}
