// Package exitcodes defines the standard exit codes used by tft.
package exitcodes

// Exit code constants used by tft
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when every flow test and plugin check passes
// * TestFailure (1): Used when one or more flow tests or plugin checks fail
// * RuntimeErr (2): Used for runtime errors such as panics, timeouts or other failures
const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures
	RuntimeErr  = 2 // Runtime errors or timeouts
)
