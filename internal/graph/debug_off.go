//go:build !debug

package graph

const debugAssertions = false
