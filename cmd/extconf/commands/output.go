package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// printData writes v as JSON or YAML.
func printData(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		return printJSON(w, v)
	case "yaml", "":
		return printYAML(w, v)
	default:
		return fmt.Errorf("unknown output format %q (want json or yaml)", format)
	}
}

// short truncates identifiers and digests for tables.
func short(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
