// Package kernel contains the types shared by every core subsystem.
package kernel

// Error describes a kernel error. All kernel errors are values of this type.
// Many are package-level variables allocated once; others are built with a
// composite literal at the point where they are returned.
type Error struct {
	// Module is the subsystem that raised the error.
	Module string

	// Message describes what went wrong.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return "[" + e.Module + "] " + e.Message
}
