package audio

import (
	"regexp"
	"strings"
)

var (
	stageDirection = regexp.MustCompile(`\[[^\]]*\]|\((?i:laughs|laughing|chuckles|pause|pauses|sighs|music|applause|inaudible)[^)]*\)`)
	citationMark   = regexp.MustCompile(`\[\d+(?:\s*[,-]\s*\d+)*\]`)
	urlPattern     = regexp.MustCompile(`https?://\S+`)
	nonSpeech      = regexp.MustCompile("[*_#~`|<>{}^=\\\\]+")
)

// CleanText prepares one segment for a speech engine: label tokens the
// model repeated, citation marks, bracketed stage directions, URLs and
// markdown symbols are removed.
func CleanText(text string, labels ...string) string {
	text = strings.TrimSpace(text)
	for _, label := range labels {
		if label == "" {
			continue
		}
		prefix := label + ":"
		if len(text) >= len(prefix) && strings.EqualFold(text[:len(prefix)], prefix) {
			text = text[len(prefix):]
		}
	}
	text = citationMark.ReplaceAllString(text, "")
	text = stageDirection.ReplaceAllString(text, "")
	text = urlPattern.ReplaceAllString(text, "")
	text = nonSpeech.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "&", " and ")
	text = strings.Join(strings.Fields(text), " ")
	return strings.TrimSpace(punctSpace.Replace(text))
}

var punctSpace = strings.NewReplacer(" ,", ",", " .", ".", " ?", "?", " !", "!", " ;", ";", " :", ":")
