// Package testutil provides testing utilities for rescache.
//
// This package is intended for use in tests and benchmarks only.
// It provides resource kinds that count their lifecycle hooks, a manifest
// kind that declares dependencies, an in-memory loader fixture and a seeded
// random generator.
//
// # Fixtures
//
//	files := testutil.NewFiles(t, map[string][]byte{"a.bin": []byte("a")})
//	mgr, _ := rescache.New(files.Loader)
//	inst, _ := mgr.RequestPath(ctx, "a.bin", testutil.NewCountingKind("blob"))
package testutil
