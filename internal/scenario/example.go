package scenario

import _ "embed"

// Example is a small starter scenario written by `idlecrew init`.
//
//go:embed example.yaml
var Example []byte
