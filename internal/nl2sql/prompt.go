package nl2sql

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/datainsight/datainsight/internal/describe"
)

const noDescriptionsMarker = "No field descriptions are available."

func buildTranslationPrompt(collection, request, extraContext string, samples []map[string]any, description describe.Description, rowLimit int) (string, error) {
	samplesJSON, err := json.MarshalIndent(samples, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal sample documents: %w", err)
	}

	var b strings.Builder
	b.WriteString("You convert natural language analytics requests into a single DuckDB SQL query. ")
	b.WriteString("DuckDB uses PostgreSQL-like SQL syntax.\n\n")
	fmt.Fprintf(&b, "### Collection name: %s\n", collection)
	b.WriteString("### Sample documents:\n")
	b.Write(samplesJSON)
	b.WriteString("\n\n### Field descriptions:\n")
	b.WriteString(renderDescriptions(description))
	if extra := strings.TrimSpace(extraContext); extra != "" {
		b.WriteString("\n### Dataset context:\n")
		b.WriteString(extra)
		b.WriteString("\n")
	}

	b.WriteString(`
### Examples:
- Request: "orders above 100" -> SELECT * FROM "sales_csv" WHERE amount > 100
- Request: "total amount per region" -> SELECT region, SUM(amount) AS total FROM "sales_csv" GROUP BY region ORDER BY total DESC
- Request: "orders placed in 2024" -> SELECT * FROM "sales_csv" WHERE year(ordered_at) = 2024

### Rules:
- Query only the collection named above and always write its name in double quotes.
- Use only field names that appear in the sample documents or field descriptions.
- Produce exactly one read-only SELECT statement.
`)
	if rowLimit > 0 {
		fmt.Fprintf(&b, "- Add LIMIT %d unless the request asks for a specific number of rows.\n", rowLimit)
	}
	fmt.Fprintf(&b, `- Return only valid JSON in this format and nothing else:
{
  "collection": %q,
  "query": "SQL query here",
  "explanation": "one or two sentences describing what the query returns"
}

### User request:
%q
`, collection, strings.TrimSpace(request))
	return b.String(), nil
}

func renderDescriptions(description describe.Description) string {
	if description.Empty() {
		return noDescriptionsMarker + "\n"
	}
	var b strings.Builder
	if summary := strings.TrimSpace(description.FileSummary); summary != "" {
		fmt.Fprintf(&b, "File summary: %s\n", summary)
	}
	for _, field := range description.Descriptions {
		if field.DataType != "" {
			fmt.Fprintf(&b, "- %s (%s): %s\n", field.Field, field.DataType, field.Description)
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", field.Field, field.Description)
	}
	return b.String()
}

func buildExtractionPrompt(request string) string {
	return fmt.Sprintf(`You extract the database collection name a user request refers to.

### Rules:
- The collection name is a single word or a hyphen/underscore separated string.
- If no collection name is found, use null.
- Return only valid JSON in this format and nothing else:
{
  "collection": "extracted_collection_name"
}

### User request:
%q
`, strings.TrimSpace(request))
}
