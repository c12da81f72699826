package generate

import (
	"fmt"

	"github.com/grump-ai/grump-engine/internal/pipeline"
)

// Skeleton synthesizes a minimal file scaffold from the tech stack. Pure and
// local; the final stage keeps skeleton entries only where the generated
// implementation left the path unclaimed.
type Skeleton struct{}

// Scaffold returns stub entry points for the detected tiers plus baseline
// project files.
func (Skeleton) Scaffold(techStack []string, projectName string) []pipeline.GeneratedFile {
	if projectName == "" {
		projectName = "app"
	}

	var files []pipeline.GeneratedFile
	if HasFrontend(techStack) {
		files = append(files, pipeline.GeneratedFile{
			Path:    "src/App.tsx",
			Content: fmt.Sprintf("export default function App() {\n  return <h1>%s</h1>;\n}\n", projectName),
		})
	}
	if HasBackend(techStack) || len(files) == 0 {
		files = append(files, pipeline.GeneratedFile{
			Path:    "src/index.ts",
			Content: fmt.Sprintf("// %s scaffold\nexport {};\n", projectName),
		})
	}
	return files
}
