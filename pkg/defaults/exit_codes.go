package defaults

// Exit codes for the CLI.
const (
	ExitSuccess       = 0 // Every case in every selected suite passed
	ExitCasesFailed   = 1 // One or more conformance cases or flow steps failed
	ExitUserError     = 2 // Invalid arguments or configuration
	ExitStartupError  = 3 // A service failed to build, start, or become ready
	ExitInternalError = 4 // Unexpected internal error
)
