package models

import (
	"fmt"
	"strconv"
)

// MinSequenceWidth is the zero padded width of the sequence part of a
// canonical filename. Existing catalog entries use six digits.
const MinSequenceWidth = 6

// CanonicalFilename formats <prefix>-<code>-<sequence>. The sequence is padded
// to width, growing only if the number itself needs more digits.
func CanonicalFilename(prefix, categoryCode string, seq, width int) string {
	if width < MinSequenceWidth {
		width = MinSequenceWidth
	}
	if n := len(strconv.Itoa(seq)); n > width {
		width = n
	}
	return fmt.Sprintf("%s-%s-%0*d", prefix, categoryCode, width, seq)
}
