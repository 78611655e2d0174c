// Package vm implements the object, type and function model of the
// avmcore script engine.
//
// This package contains:
//   - NaN-boxed value representation and per-worker handle arenas
//   - Classes, metaclasses, interfaces, templates and coercion
//   - Static and runtime property resolution over multinames
//   - Native, compiled and legacy callables behind one call contract
//   - Reference counting with two-phase teardown and class free lists
package vm
