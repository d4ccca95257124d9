package config_test

import (
	"fmt"
	"log"

	"github.com/ajitpratap0/framefeed/pkg/config"
)

// ExampleNewDefault demonstrates the defaults applied before a file is loaded.
func ExampleNewDefault() {
	cfg := config.NewDefault()

	fmt.Printf("Work packet: %d\n", cfg.Worker.WorkPacketSize)
	fmt.Printf("Source threads: %d\n", cfg.Worker.SourceThreads())
	fmt.Printf("Storage: %s\n", cfg.Storage.Backend)

	// Output:
	// Work packet: 250
	// Source threads: 16
	// Storage: local
}

// ExampleConfig_Validate shows how to validate a configuration before use.
func ExampleConfig_Validate() {
	cfg := config.NewDefault()
	cfg.Sources = []config.SourceSpec{{
		Name:    "column",
		Columns: []config.ColumnConfig{{Name: "frame", Type: "video"}},
	}}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Println("Configuration is valid!")

	// Output:
	// Configuration is valid!
}
