// Package config loads the extconf settings file and validates documents
// against CUE schemas.
//
// # Settings
//
// The settings file (extconf.yaml by default) holds the package table and
// the tool's own options:
//
//	packages:
//	  - name: svc
//	    root: services/svc
//	  - name: audit
//	    root: services/audit
//	    entryPoint: audit.yaml
//	includePaths: [lib]
//	journal:
//	  enabled: true
//	  path: state/journal.db
//	policy:
//	  enabled: true
//	  paths: [policies]
//	cache:
//	  debounce: 500ms
//	telemetry:
//	  logging:
//	    level: info
//
// Relative paths are taken from the directory of the settings file. Load
// first checks the raw document against the #Settings schema, then
// decodes it strictly and applies validator struct tags.
//
// # Schemas
//
// SchemaRegistry holds CUE definitions. Two are built in: #Settings and
// #Region. #Region describes a merged region in the form produced by
// col.Region.Data and is used by `extconf check`:
//
//	registry := config.NewSchemaRegistry()
//	if err := registry.ValidateRegion(ctx, region); err != nil {
//	    return err
//	}
package config
