// Package safety enforces output redaction policy for card data.
//
// The persona prompts instruct the model to mask primary account numbers,
// but prompt compliance is not a guarantee. MaskPANs is applied to the final
// answer text so the masking invariant holds regardless of what the model
// produced.
package safety

import "regexp"

// digitRun matches contiguous digit runs. Runs of PAN-plausible length
// (13 to 19 digits) are masked; shorter and longer runs pass through.
var digitRun = regexp.MustCompile(`[0-9]+`)

const (
	panMinDigits = 13
	panMaxDigits = 19
)

// MaskPANs replaces every 13-19 digit run in s with its first 6 and last 3
// digits joined by "...": 5152341111234567 becomes 515234...567.
//
// Idempotent: masked output contains no digit run longer than 6, so a second
// pass is a no-op.
func MaskPANs(s string) string {
	return digitRun.ReplaceAllStringFunc(s, func(run string) string {
		if len(run) < panMinDigits || len(run) > panMaxDigits {
			return run
		}
		return run[:6] + "..." + run[len(run)-3:]
	})
}
