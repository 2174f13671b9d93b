package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ruteri/workstation-provisioning/interfaces"
)

// DefaultHostnameTemplate zero-pads the sequence to three digits.
const DefaultHostnameTemplate = "{seq:03d}-{user}"

// maxHostnameLength is the NetBIOS computer name limit.
const maxHostnameLength = 15

var hostnameRe = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?$`)

type segmentKind int

const (
	literalSegment segmentKind = iota
	seqSegment
	userSegment
)

type segment struct {
	kind    segmentKind
	literal string
	width   int
	zeroPad bool
}

// HostnameTemplate is a parsed hostname template. Supported fields are
// {seq}, {seq:d}, {seq:Nd}, {seq:0Nd} and {user}; "{{" and "}}" are literal
// braces.
type HostnameTemplate struct {
	raw      string
	segments []segment
}

// ParseHostnameTemplate parses raw, returning ErrInvalidTemplate on unknown
// fields or unbalanced braces.
func ParseHostnameTemplate(raw string) (*HostnameTemplate, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty template", interfaces.ErrInvalidTemplate)
	}

	t := &HostnameTemplate{raw: raw}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			t.segments = append(t.segments, segment{kind: literalSegment, literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch c {
		case '{':
			if i+1 < len(raw) && raw[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(raw[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w: unclosed field in %q", interfaces.ErrInvalidTemplate, raw)
			}
			seg, err := parseField(raw[i+1 : i+end])
			if err != nil {
				return nil, err
			}
			flush()
			t.segments = append(t.segments, seg)
			i += end
		case '}':
			if i+1 < len(raw) && raw[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, fmt.Errorf("%w: unmatched '}' in %q", interfaces.ErrInvalidTemplate, raw)
		default:
			lit.WriteByte(c)
		}
	}
	flush()

	hasSeq := false
	for _, s := range t.segments {
		if s.kind == seqSegment {
			hasSeq = true
		}
	}
	if !hasSeq {
		return nil, fmt.Errorf("%w: %q does not reference {seq}", interfaces.ErrInvalidTemplate, raw)
	}
	return t, nil
}

func parseField(field string) (segment, error) {
	name, spec, hasSpec := strings.Cut(field, ":")
	switch name {
	case "user":
		if hasSpec {
			return segment{}, fmt.Errorf("%w: {user} takes no format spec", interfaces.ErrInvalidTemplate)
		}
		return segment{kind: userSegment}, nil
	case "seq":
		seg := segment{kind: seqSegment}
		if !hasSpec {
			return seg, nil
		}
		if !strings.HasSuffix(spec, "d") {
			return segment{}, fmt.Errorf("%w: unsupported format spec %q", interfaces.ErrInvalidTemplate, spec)
		}
		spec = strings.TrimSuffix(spec, "d")
		if strings.HasPrefix(spec, "0") && len(spec) > 1 {
			seg.zeroPad = true
			spec = spec[1:]
		}
		if spec != "" {
			width, err := strconv.Atoi(spec)
			if err != nil || width < 0 || width > maxHostnameLength {
				return segment{}, fmt.Errorf("%w: bad width in {seq:%sd}", interfaces.ErrInvalidTemplate, spec)
			}
			seg.width = width
		}
		return seg, nil
	default:
		return segment{}, fmt.Errorf("%w: unknown field {%s}", interfaces.ErrInvalidTemplate, field)
	}
}

// Render produces the hostname for (seq, user). It does not validate the
// result; see ValidateHostname.
func (t *HostnameTemplate) Render(seq int, user string) string {
	var b strings.Builder
	for _, s := range t.segments {
		switch s.kind {
		case literalSegment:
			b.WriteString(s.literal)
		case userSegment:
			b.WriteString(user)
		case seqSegment:
			digits := strconv.Itoa(seq)
			if pad := s.width - len(digits); pad > 0 {
				fill := " "
				if s.zeroPad {
					fill = "0"
				}
				digits = strings.Repeat(fill, pad) + digits
			}
			b.WriteString(digits)
		}
	}
	return b.String()
}

// String returns the template source.
func (t *HostnameTemplate) String() string {
	return t.raw
}

// RenderHostname parses the domain's template and renders a validated
// hostname.
func RenderHostname(domain interfaces.DomainConfig, seq int, user string) (string, error) {
	tmpl, err := ParseHostnameTemplate(domain.HostnameTemplate)
	if err != nil {
		return "", err
	}
	hostname := tmpl.Render(seq, user)
	if err := ValidateHostname(hostname); err != nil {
		return "", err
	}
	return hostname, nil
}

// ValidateHostname enforces the NetBIOS computer name rules.
func ValidateHostname(hostname string) error {
	if len(hostname) == 0 || len(hostname) > maxHostnameLength {
		return fmt.Errorf("%w: %q must be 1-%d characters", interfaces.ErrInvalidHostname, hostname, maxHostnameLength)
	}
	if !hostnameRe.MatchString(hostname) {
		return fmt.Errorf("%w: %q may only contain letters, digits and inner hyphens", interfaces.ErrInvalidHostname, hostname)
	}
	return nil
}

var userSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

// SlugifyUser normalizes a user name for embedding in a hostname.
func SlugifyUser(value string) string {
	slug := userSlugRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(value)), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "user"
	}
	return slug
}
