// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

//go:build integration

// Package auth provides end-to-end integration tests for the identity core
// against a real PostgreSQL instance.
package auth

import (
	"testing"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

func TestAuthIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Auth Integration Suite")
}
