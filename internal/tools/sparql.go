package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// graphSlot is replaced by "GRAPH <iri>" or "GRAPH ?g".
const graphSlot = "{graph}"

const (
	entityTypesQuery = `SELECT DISTINCT * FROM (
  SPARQL
  SELECT DISTINCT ?entityType
  WHERE { {graph} { ?s a ?entityType } }
) AS x`

	entityTypesDetailedQuery = `SELECT * FROM (
  SPARQL
  PREFIX rdfs: <http://www.w3.org/2000/01/rdf-schema#>
  SELECT ?entityType (SAMPLE(?label) AS ?label) (SAMPLE(?comment) AS ?comment)
  WHERE {
    {graph} {
      ?s a ?entityType .
      OPTIONAL { ?entityType rdfs:label ?label }
      OPTIONAL { ?entityType rdfs:comment ?comment }
    }
  }
  GROUP BY ?entityType
) AS x`

	entityTypesSamplesQuery = `SELECT * FROM (
  SPARQL
  PREFIX rdfs: <http://www.w3.org/2000/01/rdf-schema#>
  SELECT ?entity ?entityType (SAMPLE(?label) AS ?label)
  WHERE {
    {graph} {
      ?entity a ?entityType .
      OPTIONAL { ?entity rdfs:label ?label }
    }
  }
  GROUP BY ?entity ?entityType
  LIMIT 20
) AS x`

	ontologiesQuery = `SELECT * FROM (
  SPARQL
  PREFIX owl: <http://www.w3.org/2002/07/owl#>
  PREFIX rdfs: <http://www.w3.org/2000/01/rdf-schema#>
  SELECT ?ontology (SAMPLE(?label) AS ?label) (SAMPLE(?comment) AS ?comment)
  WHERE {
    {graph} {
      ?ontology a owl:Ontology .
      OPTIONAL { ?ontology rdfs:label ?label }
      OPTIONAL { ?ontology rdfs:comment ?comment }
    }
  }
  GROUP BY ?ontology
) AS x`
)

func (t *Tools) sparqlTemplateTools() []server.ServerTool {
	templates := []struct {
		name, desc, query string
	}{
		{"sparql_get_entity_types", "List the distinct entity types (rdf:type values) in a graph, or in every graph.", entityTypesQuery},
		{"sparql_get_entity_types_detailed", "List entity types with their labels and comments.", entityTypesDetailedQuery},
		{"sparql_get_entity_types_samples", "List sample entities with their types and labels.", entityTypesSamplesQuery},
		{"sparql_get_ontologies", "List the ontologies (owl:Ontology) with their labels and comments.", ontologiesQuery},
	}

	out := make([]server.ServerTool, 0, len(templates))
	for _, tpl := range templates {
		out = append(out, server.ServerTool{
			Tool: mcp.NewTool(tpl.name,
				mcp.WithDescription(tpl.desc),
				mcp.WithString("graph", mcp.Description("Graph IRI to restrict the query to. Leave empty to query every graph.")),
				urlParam(),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithIdempotentHintAnnotation(true),
			),
			Handler: t.handle(tpl.name, t.sparqlTemplate(tpl.query)),
		})
	}
	return out
}

func (t *Tools) sparqlTemplate(query string) toolFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (string, error) {
		stmt, err := renderGraph(query, req.GetString("graph", ""))
		if err != nil {
			return "", err
		}
		return t.runJSON(ctx, req.GetString("url", ""), stmt, DefaultMaxRows)
	}
}

// renderGraph substitutes the graph clause. It is plain text substitution,
// so IRIs that could close the clause early are rejected.
func renderGraph(query, graph string) (string, error) {
	graph = strings.TrimSpace(graph)
	if graph == "" {
		return strings.ReplaceAll(query, graphSlot, "GRAPH ?g"), nil
	}
	if strings.ContainsAny(graph, "<>\"{}|^`\\ \t\r\n") {
		return "", fmt.Errorf("invalid graph IRI %q", graph)
	}
	return strings.ReplaceAll(query, graphSlot, "GRAPH <"+graph+">"), nil
}
