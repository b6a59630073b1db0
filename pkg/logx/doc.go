// Package logx provides a small structured logger built on zerolog.
//
// Components receive a Logger by value and derive scoped loggers with
// With(String("comp", ...)). The zero value is a safe no-op, so wiring
// order never matters.
package logx
