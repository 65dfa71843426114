// Package errors provides the classified error type used across omnipreview.
//
// A ClassifiedError carries a category, a severity, a retry hint and structured
// context. Errors are built with the fluent ErrorBuilder:
//
//	err := errors.RendererError("is-enabled check failed").
//		WithContext("renderer", name).
//		WithCause(cause).
//		Build()
//
// CLI and HTTP adapters translate classified errors into exit codes and JSON
// responses.
package errors
