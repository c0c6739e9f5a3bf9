// Command schemagen writes the JSON schema of a configuration kind.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/macropower/rulepool/api/v1beta1/configs"
	"github.com/macropower/rulepool/pkg/mode"
)

var (
	kind    = flag.String("kind", "config", "Kind to generate a schema for, one of: config, mode")
	outFile = flag.String("o", "schema.json", "Output file for the generated schema")
)

func main() {
	flag.Parse()

	var v any

	switch *kind {
	case "config":
		v = configs.New()
	case "mode":
		v = &mode.Configuration{}
	default:
		log.Fatalf("unknown kind %q", *kind)
	}

	r := &jsonschema.Reflector{}

	jsData, err := json.MarshalIndent(r.Reflect(v), "", "  ")
	if err != nil {
		log.Fatalf("generate JSON schema: %v", err)
	}

	// Write schema.json file.
	err = os.WriteFile(*outFile, append(jsData, '\n'), 0o600)
	if err != nil {
		log.Fatalf("write schema file: %v", err)
	}
}
