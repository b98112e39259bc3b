// Package led drives a board status LED from the health of the display
// pipelines.
package led

// Patterns understood by every Controller.
const (
	PatternSolid = "solid"
	PatternBlink = "blink"
)

// Controller abstracts LED hardware across boards.
type Controller interface {
	// Set switches the named LED on or off. pattern selects solid or
	// blinking output; an empty pattern leaves the current one.
	Set(name string, enabled bool, pattern string) error

	// Available returns the LED names this controller can drive.
	Available() []string

	// Patterns returns the patterns this controller supports.
	Patterns() []string
}
