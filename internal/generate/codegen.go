package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/grump-ai/grump-engine/internal/pipeline"
)

// CodeGen is the default code generator: deterministic entry points derived
// from the architecture's component kinds.
type CodeGen struct{}

// Generate emits one source file per detected tier: src/App.tsx for a
// frontend, src/index.ts for a backend. A nil architecture yields a backend
// entry point only.
func (CodeGen) Generate(_ context.Context, arch *pipeline.Architecture) ([]pipeline.GeneratedFile, error) {
	var techStack []string
	projectName := "app"
	if arch != nil {
		techStack = arch.TechStack
		if arch.ProjectName != "" {
			projectName = arch.ProjectName
		}
	}

	var files []pipeline.GeneratedFile

	if HasFrontend(techStack) {
		files = append(files, pipeline.GeneratedFile{
			Path:    "src/App.tsx",
			Content: frontendEntry(projectName, arch),
		})
	}
	if HasBackend(techStack) || len(files) == 0 {
		files = append(files, pipeline.GeneratedFile{
			Path:    "src/index.ts",
			Content: backendEntry(projectName, arch),
		})
	}

	return files, nil
}

func frontendEntry(projectName string, arch *pipeline.Architecture) string {
	var b strings.Builder
	fmt.Fprintf(&b, "export default function App() {\n")
	fmt.Fprintf(&b, "  return (\n    <main>\n      <h1>%s</h1>\n", projectName)
	if arch != nil {
		for _, c := range arch.Components {
			if c.Kind == "frontend" {
				continue
			}
			fmt.Fprintf(&b, "      {/* %s: %s */}\n", c.Name, c.Responsibility)
		}
	}
	b.WriteString("    </main>\n  );\n}\n")
	return b.String()
}

func backendEntry(projectName string, arch *pipeline.Architecture) string {
	var b strings.Builder
	fmt.Fprintf(&b, "// %s API entry point\n", projectName)
	b.WriteString("import http from \"node:http\";\n\n")
	if arch != nil {
		for _, c := range arch.Components {
			if c.Kind == "frontend" {
				continue
			}
			fmt.Fprintf(&b, "// component %s: %s\n", c.Name, c.Responsibility)
		}
	}
	b.WriteString("\nconst server = http.createServer((req, res) => {\n")
	b.WriteString("  res.writeHead(200, { \"content-type\": \"application/json\" });\n")
	fmt.Fprintf(&b, "  res.end(JSON.stringify({ service: %q }));\n", projectName)
	b.WriteString("});\n\nserver.listen(process.env.PORT ?? 3000);\n")
	return b.String()
}
