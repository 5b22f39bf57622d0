// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package auth implements the identity core of Parley: user accounts and
// password hashing, opaque web sessions, and single-use purpose tokens for
// password resets and admin elevation.
//
// The package defines entities and repository interfaces; persistence lives
// in the postgres and memory subpackages. Services orchestrate the
// repositories and are the only types the HTTP layer talks to.
//
// Tokens (session, reset, elevation) are stored hashed. A database read never
// yields a redeemable credential.
package auth
