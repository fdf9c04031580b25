// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds the login password and access token outside the
// Go heap.
//
// [Buffer] is backed by an anonymous mmap region that is locked into
// RAM and excluded from core dumps; Close wipes and unmaps it.
// [ReadPasswordFile] and [PromptPassword] load a password straight into
// a Buffer. [Zero] wipes the short-lived heap copies that JSON and file
// boundaries force.
package secret
