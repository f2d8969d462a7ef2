// Package script splits a two speaker dialogue into ordered segments and
// resolves each speaker label to the voice the caller picked.
package script

import (
	"errors"
	"fmt"
	"strings"

	"research-podcaster/internal/models"
)

// ErrParse marks a script that cannot be segmented without guessing.
var ErrParse = errors.New("script parse error")

type voice struct {
	role    models.Role
	speaker models.Speaker
}

// Resolver maps speaker labels to roles. It is built per call from the
// caller's selection; there is no built in name table.
type Resolver struct {
	labels map[string]voice
}

// NewResolver builds the label table for sel. A chosen name resolves
// together with its aliases, and with the canonical name it is itself an
// alias of. Names that would resolve to both roles are rejected.
func NewResolver(sel models.VoiceSelection, aliases map[string][]string) (*Resolver, error) {
	host, expert := normalizeLabel(sel.Host.Name), normalizeLabel(sel.Expert.Name)
	if host == "" || expert == "" {
		return nil, errors.New("both speakers need a name")
	}
	if sel.Host.VoiceID == "" || sel.Expert.VoiceID == "" {
		return nil, errors.New("both speakers need a voice")
	}
	if host == expert {
		return nil, fmt.Errorf("host and expert share the name %q", sel.Host.Name)
	}

	table := normalizeAliases(aliases)
	r := &Resolver{labels: make(map[string]voice)}
	for _, side := range []struct {
		name string
		v    voice
	}{
		{host, voice{role: models.RoleHost, speaker: sel.Host}},
		{expert, voice{role: models.RoleExpert, speaker: sel.Expert}},
	} {
		for _, label := range relatedNames(side.name, table) {
			if existing, ok := r.labels[label]; ok && existing.role != side.v.role {
				return nil, fmt.Errorf("label %q matches both speakers", label)
			}
			r.labels[label] = side.v
		}
	}
	return r, nil
}

// Resolve returns the role and speaker for a label as written in a script.
func (r *Resolver) Resolve(label string) (models.Role, models.Speaker, bool) {
	v, ok := r.labels[normalizeLabel(label)]
	return v.role, v.speaker, ok
}

func relatedNames(name string, table map[string][]string) []string {
	names := []string{name}
	names = append(names, table[name]...)
	for canonical, list := range table {
		for _, alias := range list {
			if alias == name {
				names = append(names, canonical)
				names = append(names, list...)
				break
			}
		}
	}
	return names
}

func normalizeAliases(aliases map[string][]string) map[string][]string {
	out := make(map[string][]string, len(aliases))
	for canonical, list := range aliases {
		key := normalizeLabel(canonical)
		for _, a := range list {
			if n := normalizeLabel(a); n != "" {
				out[key] = append(out[key], n)
			}
		}
	}
	return out
}

func normalizeLabel(s string) string {
	s = strings.Trim(strings.TrimSpace(s), "*_[]()\"'")
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
