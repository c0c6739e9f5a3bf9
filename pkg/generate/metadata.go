package generate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/macropower/rulepool/pkg/mode"
	"github.com/macropower/rulepool/pkg/selection"
)

const (
	// MetadataFile records how a mode was generated.
	MetadataFile = "generation-metadata.json"

	generationMethod = "rule-based-pipeline"
)

// Metadata is the content of [MetadataFile].
type Metadata struct {
	Mode          MetadataMode          `json:"mode"`
	Source        MetadataSource        `json:"source"`
	Configuration MetadataConfiguration `json:"configuration"`
	Generation    MetadataGeneration    `json:"generation"`
}

type MetadataMode struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        mode.Type `json:"type"`
	Description string    `json:"description"`
}

type MetadataGeneration struct {
	GeneratedAt time.Time `json:"generatedAt"`
	Method      string    `json:"method"`
	Files       []string  `json:"files"`
	RulesUsed   int       `json:"rulesUsed"`
}

type MetadataConfiguration struct {
	RuleSelectionCriteria *selection.Selection `json:"ruleSelectionCriteria"`
	Templates             mode.Templates       `json:"templates"`
	Structure             mode.Structure       `json:"structure"`
}

type MetadataSource struct {
	ConfigurationID string   `json:"configurationId"`
	MigrationDate   string   `json:"migrationDate,omitempty"`
	OriginalFiles   []string `json:"originalFiles,omitempty"`
}

// newMetadata describes a run that produced files so far.
func newMetadata(cfg *mode.Configuration, generatedAt time.Time, rulesUsed int, files []string) *Metadata {
	md := &Metadata{
		Mode: MetadataMode{
			ID:          cfg.ID,
			Name:        cfg.Name,
			Type:        cfg.Type,
			Description: cfg.Description,
		},
		Generation: MetadataGeneration{
			GeneratedAt: generatedAt.UTC(),
			Method:      generationMethod,
			RulesUsed:   rulesUsed,
			Files:       append([]string{}, files...),
		},
		Configuration: MetadataConfiguration{
			RuleSelectionCriteria: cfg.RuleSelection,
			Templates:             cfg.Templates,
			Structure:             cfg.Structure,
		},
		Source: MetadataSource{
			ConfigurationID: cfg.ID,
		},
	}

	if cfg.Metadata != nil {
		md.Source.MigrationDate = cfg.Metadata.MigrationDate
		md.Source.OriginalFiles = cfg.Metadata.OriginalFiles
	}

	return md
}

func (md *Metadata) encode() ([]byte, error) {
	b, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode generation metadata: %w", err)
	}

	return append(b, '\n'), nil
}
