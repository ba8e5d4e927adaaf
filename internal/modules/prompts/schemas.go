package prompts

func SourceSelectSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id": map[string]any{"type": "string"},
		},
		"required":             []string{"id"},
		"additionalProperties": false,
	}
}

func ChartConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"type": map[string]any{
				"type": "string",
				"enum": []any{"bar", "line", "pie", "area"},
			},
			"title":       map[string]any{"type": "string"},
			"labels":      StringArraySchema(),
			"values":      map[string]any{"type": "array", "items": NumberSchema()},
			"series_name": map[string]any{"type": "string"},
		},
		"required":             []string{"type", "title", "labels", "values", "series_name"},
		"additionalProperties": false,
	}
}

func StringArraySchema() map[string]any {
	return map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}
}

func NumberSchema() map[string]any {
	return map[string]any{"type": "number"}
}

// schemaFuncs binds catalog schema names to their Go definitions.
var schemaFuncs = map[string]func() map[string]any{
	"source_select_v1": SourceSelectSchema,
	"chart_config_v1":  ChartConfigSchema,
}
