package generate

import "github.com/grump-ai/grump-engine/internal/pipeline"

// DefaultServices wires the default local collaborators around the given
// intent parser.
func DefaultServices(parser pipeline.IntentParser) pipeline.Services {
	return pipeline.Services{
		Intent:    parser,
		Architect: Architect{},
		PRD:       PRDWriter{},
		CodeGen:   CodeGen{},
		Skeleton:  Skeleton{},
		Validator: Validator{},
	}
}
