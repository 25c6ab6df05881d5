package vision

import (
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const similaritySchema = `{
	"type": "object",
	"required": ["similarity"],
	"properties": {
		"similarity": {"type": "number", "minimum": 0, "maximum": 1}
	}
}`

const poolSchema = `{
	"type": "object",
	"required": ["photo", "imagery"],
	"definitions": {
		"side": {
			"type": "object",
			"required": ["pool"],
			"properties": {
				"pool": {"enum": ["none", "rectangular", "round", "other", "unknown"]}
			}
		}
	},
	"properties": {
		"photo": {"$ref": "#/definitions/side"},
		"imagery": {"$ref": "#/definitions/side"}
	}
}`

const roofSchema = `{
	"type": "object",
	"required": ["photo", "imagery"],
	"definitions": {
		"side": {
			"type": "object",
			"properties": {
				"roof_color": {"type": "string"},
				"roof_shape": {"type": "string"}
			}
		}
	},
	"properties": {
		"photo": {"$ref": "#/definitions/side"},
		"imagery": {"$ref": "#/definitions/side"}
	}
}`

const terrainSchema = `{
	"type": "object",
	"required": ["photo", "imagery"],
	"definitions": {
		"side": {
			"type": "object",
			"properties": {
				"terrain_shape": {"type": "string"},
				"terrace": {"type": "boolean"}
			}
		}
	},
	"properties": {
		"photo": {"$ref": "#/definitions/side"},
		"imagery": {"$ref": "#/definitions/side"}
	}
}`

var schemas = map[Instruction]*jsonschema.Schema{
	InstructSimilarity: jsonschema.MustCompileString("similarity.json", similaritySchema),
	InstructPool:       jsonschema.MustCompileString("pool.json", poolSchema),
	InstructRoof:       jsonschema.MustCompileString("roof.json", roofSchema),
	InstructTerrain:    jsonschema.MustCompileString("terrain.json", terrainSchema),
}
