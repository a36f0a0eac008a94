package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/debemdeboas/draftsync/internal/config"
)

const header = "# draftsync configuration example\n# Copy this file to config.yaml and customize as needed\n\n"

func main() {
	outputFile := "config.example.yaml"
	if len(os.Args) > 1 {
		outputFile = os.Args[1]
	}

	output, err := render()
	if err != nil {
		fmt.Fprintf(os.Stderr, config.ErrGenerateYAMLFmt+"\n", err)
		os.Exit(1)
	}

	if outputFile == "-" {
		fmt.Print(output)
		return
	}

	if err := os.WriteFile(outputFile, []byte(output), 0644); err != nil {
		fmt.Fprintf(os.Stderr, config.ErrWriteFileFmt+"\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generated example config: %s\n", outputFile)
}

// render returns the example config: every default applied, nothing else.
func render() (string, error) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return header + string(yamlData), nil
}
