package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/queryhub/queryhub/pkg/engine"
)

// builtinFactories returns the provider types compiled into the binary.
// The static provider serves fixture rows from its settings, which is
// enough to exercise full report runs without external data sources.
func builtinFactories() engine.FactoryRegistry {
	factories := engine.FactoryRegistry{}
	factories.Register("static", newStaticProvider)
	return factories
}

// builtinCredentialFactory hands out inert credentials. Real credential
// strategies plug in through the same factory signature.
func builtinCredentialFactory(_ context.Context, _ *engine.CredentialConfig) (engine.Credential, error) {
	return noopCredential{}, nil
}

type noopCredential struct{}

func (noopCredential) Close(context.Context) error { return nil }

// staticProvider returns the rows configured under settings.rows.
type staticProvider struct {
	rows []map[string]any
}

func newStaticProvider(_ context.Context, cfg *engine.ProviderConfig, _ engine.Credential) (engine.Provider, error) {
	raw, ok := cfg.Settings["rows"]
	if !ok {
		return &staticProvider{}, nil
	}

	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("static provider %q: settings.rows must be a list", cfg.ID)
	}
	rows := make([]map[string]any, 0, len(items))
	for i, item := range items {
		row, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("static provider %q: row %d is not a mapping", cfg.ID, i)
		}
		rows = append(rows, row)
	}
	return &staticProvider{rows: rows}, nil
}

func (p *staticProvider) Execute(ctx context.Context, _ string) (*engine.QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &engine.QueryResult{
		Rows:     p.rows,
		Metadata: map[string]any{"rowcount": len(p.rows)},
	}, nil
}

func (p *staticProvider) Close(context.Context) error { return nil }

// builtinRenderers resolves the render types compiled into the binary.
type builtinRenderers struct{}

func (builtinRenderers) Resolve(spec engine.RenderSpec) (engine.Renderer, error) {
	switch spec.Type {
	case "table":
		return tableRenderer{}, nil
	case "text":
		return textRenderer{}, nil
	case "json":
		return jsonRenderer{}, nil
	default:
		return nil, fmt.Errorf("unknown render type %q", spec.Type)
	}
}

// tableRenderer renders rows as an HTML table with sorted column order.
type tableRenderer struct{}

func (tableRenderer) Render(_ *engine.ComponentConfig, result *engine.QueryResult) (string, error) {
	if result.RowCount() == 0 {
		return "<p>No data</p>", nil
	}

	columns := make([]string, 0, len(result.Rows[0]))
	for column := range result.Rows[0] {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	var b strings.Builder
	b.WriteString("<table><thead><tr>")
	for _, column := range columns {
		fmt.Fprintf(&b, "<th>%s</th>", html.EscapeString(column))
	}
	b.WriteString("</tr></thead><tbody>")
	for _, row := range result.Rows {
		b.WriteString("<tr>")
		for _, column := range columns {
			fmt.Fprintf(&b, "<td>%s</td>", html.EscapeString(fmt.Sprint(row[column])))
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table>")
	return b.String(), nil
}

// textRenderer renders rows as plain lines.
type textRenderer struct{}

func (textRenderer) Render(_ *engine.ComponentConfig, result *engine.QueryResult) (string, error) {
	var b strings.Builder
	for _, row := range result.Rows {
		columns := make([]string, 0, len(row))
		for column := range row {
			columns = append(columns, column)
		}
		sort.Strings(columns)
		parts := make([]string, 0, len(columns))
		for _, column := range columns {
			parts = append(parts, fmt.Sprintf("%s=%v", column, row[column]))
		}
		b.WriteString(strings.Join(parts, " "))
		b.WriteString("\n")
	}
	return b.String(), nil
}

// jsonRenderer renders rows as indented JSON.
type jsonRenderer struct{}

func (jsonRenderer) Render(_ *engine.ComponentConfig, result *engine.QueryResult) (string, error) {
	data, err := json.MarshalIndent(result.Rows, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode rows: %w", err)
	}
	return string(data), nil
}

// htmlTemplate assembles component fragments into a single HTML document.
// Failed components are reported in place so a partial document still shows
// what went wrong.
type htmlTemplate struct{}

func (htmlTemplate) Render(_ context.Context, report *engine.ReportConfig, components []engine.ComponentExecutionResult) (string, error) {
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<h1>%s</h1>", html.EscapeString(reportTitle(report)))
	for _, component := range components {
		title := component.Title
		if title == "" {
			title = component.ComponentID
		}
		fmt.Fprintf(&b, "<section><h2>%s</h2>", html.EscapeString(title))
		if component.Success() {
			b.WriteString(component.Rendered)
		} else {
			fmt.Fprintf(&b, "<p class=\"error\">component failed: %s</p>",
				html.EscapeString(component.Err.Message))
		}
		b.WriteString("</section>")
	}
	b.WriteString("</body></html>")
	return b.String(), nil
}

func reportTitle(report *engine.ReportConfig) string {
	if report.Title != "" {
		return report.Title
	}
	return report.ID
}
