//go:build tools

// Package tools tracks development tool dependencies in go.mod.
// Install with: go install -tags tools ./...
package tools

import (
	// Linting
	_ "github.com/golangci/golangci-lint/cmd/golangci-lint"
	_ "golang.org/x/tools/cmd/goimports"

	// Mocks for pkg/interfaces
	_ "github.com/golang/mock/mockgen"

	// Test runner
	_ "gotest.tools/gotestsum"

	// Security scanning
	_ "github.com/securego/gosec/v2/cmd/gosec"
)
