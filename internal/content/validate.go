package content

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"research-podcaster/internal/content/llm"
	"research-podcaster/internal/models"
	"research-podcaster/internal/research"
	"research-podcaster/internal/script"
)

var (
	errMalformed = errors.New("malformed model output")
	errInvalid   = errors.New("model output failed validation")
)

type payload struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Script      string             `json:"script"`
	References  []payloadReference `json:"references"`
}

// payloadReference accepts {"index":1,"identifier":"..."}, a bare number or a
// bare identifier string. Models are not consistent about which they emit.
type payloadReference struct {
	Index      int    `json:"index"`
	Identifier string `json:"identifier"`
}

func (r *payloadReference) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '{':
		type plain payloadReference
		return json.Unmarshal(data, (*plain)(r))
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		trimmed := strings.Trim(strings.TrimSpace(s), "[]")
		if n, err := strconv.Atoi(trimmed); err == nil {
			r.Index = n
			return nil
		}
		r.Identifier = s
		return nil
	default:
		return json.Unmarshal(data, &r.Index)
	}
}

// parse decodes and validates raw model output against the research context.
// References are rebuilt from the matched sources so every citation in the
// result is traceable.
func parse(raw string, rc models.ResearchContext, resolver *script.Resolver) (*Content, error) {
	var p payload
	if err := llm.DecodeLLMJSON(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	p.Title = strings.TrimSpace(p.Title)
	p.Description = strings.TrimSpace(p.Description)
	p.Script = strings.TrimSpace(p.Script)
	switch {
	case p.Title == "":
		return nil, fmt.Errorf("%w: missing title", errInvalid)
	case p.Description == "":
		return nil, fmt.Errorf("%w: missing description", errInvalid)
	case p.Script == "":
		return nil, fmt.Errorf("%w: missing script", errInvalid)
	}
	if err := checkSpeakers(p.Script, resolver); err != nil {
		return nil, err
	}
	refs, err := traceReferences(p.References, rc)
	if err != nil {
		return nil, err
	}
	return &Content{Title: p.Title, Description: p.Description, Script: p.Script, References: refs}, nil
}

func checkSpeakers(text string, resolver *script.Resolver) error {
	seen := make(map[models.Role]bool, 2)
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		label, _, ok := script.SplitLine(sc.Text())
		if !ok {
			continue
		}
		if role, _, ok := resolver.Resolve(label); ok {
			seen[role] = true
		}
	}
	if !seen[models.RoleHost] || !seen[models.RoleExpert] {
		return fmt.Errorf("%w: script must contain lines for both speakers", errInvalid)
	}
	return nil
}

func traceReferences(cited []payloadReference, rc models.ResearchContext) ([]models.Reference, error) {
	if len(cited) == 0 {
		return nil, fmt.Errorf("%w: no references", errInvalid)
	}
	byKey := make(map[string]int, len(rc.Sources))
	for i, s := range rc.Sources {
		byKey[sourceKey(s.DOIOrURL)] = i
	}

	used := make(map[int]bool)
	var refs []models.Reference
	for _, c := range cited {
		idx := -1
		if strings.TrimSpace(c.Identifier) != "" {
			i, ok := byKey[sourceKey(c.Identifier)]
			if !ok {
				return nil, fmt.Errorf("%w: reference %q is not in the research context", errInvalid, c.Identifier)
			}
			idx = i
		} else if c.Index >= 1 && c.Index <= len(rc.Sources) {
			idx = c.Index - 1
		} else {
			return nil, fmt.Errorf("%w: reference index %d is out of range", errInvalid, c.Index)
		}
		if used[idx] {
			continue
		}
		used[idx] = true
		s := rc.Sources[idx]
		refs = append(refs, models.Reference{
			Index:      idx + 1,
			Title:      s.Title,
			Authors:    s.Authors,
			Identifier: s.DOIOrURL,
			Provider:   s.ProviderName,
		})
	}
	return refs, nil
}

func sourceKey(id string) string {
	if doi := research.NormalizeDOI(id); doi != "" {
		return "doi:" + doi
	}
	if arxiv := research.ArxivID(id); arxiv != "" {
		return "arxiv:" + arxiv
	}
	return "url:" + research.NormalizeURL(id)
}
