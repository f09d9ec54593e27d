package cache

// DiagnosticCode classifies a non-fatal problem found while reading or
// writing. It is attached to log records under the "code" attribute.
type DiagnosticCode string

const (
	// A selected field is absent from the data being written.
	CodeUndefinedField DiagnosticCode = "undefined_field"
	// A field with a selection set holds a scalar.
	CodeScalarForSelection DiagnosticCode = "scalar_for_selection"
	// A non-embeddable object has no key and was stored under its parent.
	CodeUnkeyedEntity DiagnosticCode = "unkeyed_entity"
	// A fragment document defines no fragment.
	CodeEmptyFragment DiagnosticCode = "empty_fragment"
	// Fragment data yields no entity key.
	CodeUnkeyableFragment DiagnosticCode = "unkeyable_fragment"
	// A resolver returned a value of the wrong shape or type.
	CodeInvalidResolverValue DiagnosticCode = "invalid_resolver_value"
	// A field is not defined on the type in the configured schema.
	CodeUnknownField DiagnosticCode = "unknown_field"
	// A fragment spread names a fragment the document does not define.
	CodeMissingFragment DiagnosticCode = "missing_fragment"
	// The document has no operation to execute.
	CodeMissingOperation DiagnosticCode = "missing_operation"
)
