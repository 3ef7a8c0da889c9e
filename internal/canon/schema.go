package canon

import (
	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schemas are embedded so validation needs nothing from the workspace being
// checked. They pin the types of the fields the gate reads and tolerate
// unknown fields; presence checks stay in the gate logic so a missing field
// fails its cross-check instead of the load.
var (
	//go:embed schemas/run_manifest.schema.json
	runManifestSchemaText string
	//go:embed schemas/contract_payload.schema.json
	contractPayloadSchemaText string
	//go:embed schemas/lifecycle_index.schema.json
	lifecycleIndexSchemaText string
	//go:embed schemas/reconstruction_check.schema.json
	reconstructionCheckSchemaText string
	//go:embed schemas/claims_matrix.schema.json
	claimsMatrixSchemaText string
	//go:embed schemas/evidence_index.schema.json
	evidenceIndexSchemaText string
)

var (
	runManifestSchema         = jsonschema.MustCompileString("run_manifest.schema.json", runManifestSchemaText)
	contractPayloadSchema     = jsonschema.MustCompileString("contract_payload.schema.json", contractPayloadSchemaText)
	lifecycleIndexSchema      = jsonschema.MustCompileString("lifecycle_index.schema.json", lifecycleIndexSchemaText)
	reconstructionCheckSchema = jsonschema.MustCompileString("reconstruction_check.schema.json", reconstructionCheckSchemaText)
	claimsMatrixSchema        = jsonschema.MustCompileString("claims_matrix.schema.json", claimsMatrixSchemaText)
	evidenceIndexSchema       = jsonschema.MustCompileString("evidence_index.schema.json", evidenceIndexSchemaText)
)
