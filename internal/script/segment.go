package script

import (
	"bufio"
	"fmt"
	"strings"

	"research-podcaster/internal/models"
)

const maxLabelLen = 40

// SplitLine separates "Name: text" into its label and text. Markdown
// emphasis around the label is tolerated ("**Name:**", "*Name*:").
func SplitLine(line string) (label, text string, ok bool) {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "- ")
	i := strings.Index(line, ":")
	if i <= 0 {
		return "", "", false
	}
	label = strings.Trim(line[:i], "*_ \t")
	if label == "" || len(label) > maxLabelLen {
		return "", "", false
	}
	text = strings.TrimSpace(strings.TrimLeft(line[i+1:], "*_ \t"))
	return label, text, true
}

// Segment parses script text into segments in script order. Blank lines are
// skipped. Any other line must carry one of the two resolved labels, else
// the whole script is rejected with ErrParse.
func Segment(scriptText string, sel models.VoiceSelection, aliases map[string][]string) ([]models.Segment, error) {
	resolver, err := NewResolver(sel, aliases)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	var segments []models.Segment
	sc := bufio.NewScanner(strings.NewReader(scriptText))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		label, text, ok := SplitLine(line)
		if !ok {
			return nil, fmt.Errorf("%w: line %d has no speaker label: %q", ErrParse, lineNo, clip(line))
		}
		role, speaker, ok := resolver.Resolve(label)
		if !ok {
			return nil, fmt.Errorf("%w: line %d: unknown speaker %q", ErrParse, lineNo, label)
		}
		if text == "" {
			return nil, fmt.Errorf("%w: line %d: %q says nothing", ErrParse, lineNo, label)
		}
		segments = append(segments, models.Segment{
			Index:   len(segments),
			Role:    role,
			Speaker: speaker.Name,
			Text:    text,
			VoiceID: speaker.VoiceID,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: script has no dialogue", ErrParse)
	}
	return segments, nil
}

// Roles is the speaker sequence of segments.
func Roles(segments []models.Segment) []models.Role {
	roles := make([]models.Role, len(segments))
	for i, s := range segments {
		roles[i] = s.Role
	}
	return roles
}

func clip(s string) string {
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
