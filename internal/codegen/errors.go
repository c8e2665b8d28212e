package codegen

import "fmt"

// StackTooDeepError is returned when a variable would have to be addressed
// beyond the reach of dup/swap (16 and 17 slots). Depth is how many slots too
// deep the access is.
type StackTooDeepError struct {
	Variable string
	Depth    int
	Context  string
}

func (e *StackTooDeepError) Error() string {
	msg := fmt.Sprintf("variable %q is %d slot(s) too deep in the stack", e.Variable, e.Depth)
	if e.Context != "" {
		msg += " " + e.Context
	}
	return msg
}

// UnsupportedOperationError reports an emitter operation the target cannot
// express. It is raised as a panic and recovered at the unit boundary.
type UnsupportedOperationError struct {
	Operation string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("operation %s is not supported by the target", e.Operation)
}

// InternalError reports a broken code generator invariant. It is raised as a
// panic and recovered at the unit boundary.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string {
	return "internal code generation error: " + e.Msg
}

func ice(format string, args ...any) {
	panic(&InternalError{Msg: fmt.Sprintf(format, args...)})
}

func unsupported(operation string) {
	panic(&UnsupportedOperationError{Operation: operation})
}
