// Package variables resolves the values behind `variable` blocks in a grid.
//
// Values come from the process environment (`ELGRID_VAR_<NAME>`), an optional
// variables file (any format viper reads) and a `.env` file loaded at
// startup. The store hands out raw strings; decoding (for example the JSON
// form of `aws_configs`) happens when the grid's scope is resolved.
package variables
