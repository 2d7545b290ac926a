// Inspect a book store: headers, free lists, the 2-3 tree and the live
// records.
// Usage: go run ./cmd/inspect_db <books.dat> <books.idx>
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"BookDB/bookmanager"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s <books.dat> <books.idx>\n", os.Args[0])
		os.Exit(1)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	mgr, err := bookmanager.Open(os.Args[1], os.Args[2], logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer mgr.Close()

	dataHdr := mgr.Books().Header()
	fmt.Printf("Data file: %s\n", mgr.Books().Path())
	fmt.Printf("  firstEmpty=%d freeHead=%d\n", dataHdr.FirstEmpty, dataHdr.FreeHead)

	dataFree, err := mgr.Books().FreeOffsets()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  free slots: %v\n", dataFree)

	indexFree, err := mgr.Index().FreeOffsets()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	if err := mgr.Index().Dump(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  free node slots: %v\n", indexFree)

	if err := mgr.Index().Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Tree invariant violation: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	if err := mgr.List(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
