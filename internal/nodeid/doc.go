/*
Package nodeid provides a structured, type-safe representation for node
identifiers within the graph.

The canonical format is `<kind>.<type>.<name>`, optionally followed by an
instance key for steps expanded with `for_each`:

	step.s3_upload.upload
	resource.warehouse.redshift
	step.sql_check.row_quality["17"]

This package centralizes all formatting and parsing of those identifiers.
*/
package nodeid
