package rolemanager

import _ "embed"

//go:embed rolemanager-create.sql
var CreateScript string
