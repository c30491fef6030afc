//go:build !debug

// Package debug provides build-tag-gated invariant assertions for the codec,
// framing, and channel packages. Compiled out entirely unless built with
// -tags=debug.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package debug

func ON() bool { return false }

func Assert(_ bool, _ ...any)            {}
func AssertFunc(_ func() bool, _ ...any) {}
func AssertNoErr(_ error)                {}
func Assertf(_ bool, _ string, _ ...any) {}
func Func(_ func())                      {}
