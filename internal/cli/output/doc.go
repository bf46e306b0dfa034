// Package output renders peerscout-cli results.
//
// Formatters print the same value as an aligned table, JSON or YAML.
// Table mode reads `json` tags for column names and hides fields tagged
// `table:"wide"` unless wide output is requested. Spinner and
// ProgressBar report long operations on stderr.
package output
