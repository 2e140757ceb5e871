// Package device holds the configured Nikobus device model and the
// delivery log repository.
//
// Covers are defined in config.yaml as triples of raw button codes
// (up/down/stop) learned from the physical bus. NormalizeCovers turns the
// raw definitions into stable, validated Cover values with derived unique
// ids; ExcludedButtonAddresses feeds the button event filter so cover
// command echoes are not reported as user presses.
//
// CommandLog persists the outcome of every command delivery operation to
// SQLite for diagnostics.
package device
