// Package filter selects which community news posts the bot shows.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"community_bot/internal/model"
)

// Post is a news post to be matched against filters.
type Post struct {
	Title   string
	Summary string
}

type rule struct {
	scope model.FilterScope
	word  string
	re    *regexp.Regexp
}

func (r rule) matches(p Post) bool {
	text := textForScope(p, r.scope)
	if r.re != nil {
		return r.re.MatchString(text)
	}
	return strings.Contains(text, r.word)
}

// Set is a compiled list of filters.
// Include rules use OR logic (at least one must match).
// Exclude rules use AND logic (none must match).
type Set struct {
	includes []rule
	excludes []rule
}

// Compile validates filters and prepares them for matching. Words match
// case-insensitively; regular expressions are compiled with (?i).
func Compile(filters []model.Filter) (*Set, error) {
	s := &Set{}
	for i, f := range filters {
		switch f.Scope {
		case "", model.ScopeAll, model.ScopeTitle, model.ScopeContent:
		default:
			return nil, fmt.Errorf("filter %d: unknown scope %q", i+1, f.Scope)
		}
		if f.Value == "" {
			return nil, fmt.Errorf("filter %d: empty value", i+1)
		}

		r := rule{scope: f.Scope}
		switch f.Kind {
		case model.FilterInclude, model.FilterExclude:
			r.word = strings.ToLower(f.Value)
		case model.FilterIncludeRe, model.FilterExcludeRe:
			re, err := compileRegex(f.Value)
			if err != nil {
				return nil, fmt.Errorf("filter %d: %w", i+1, err)
			}
			r.re = re
		default:
			return nil, fmt.Errorf("filter %d: unknown kind %q", i+1, f.Kind)
		}

		if f.Kind == model.FilterInclude || f.Kind == model.FilterIncludeRe {
			s.includes = append(s.includes, r)
		} else {
			s.excludes = append(s.excludes, r)
		}
	}
	return s, nil
}

// Allows reports whether p passes the set. An empty set allows everything.
func (s *Set) Allows(p Post) bool {
	for _, r := range s.excludes {
		if r.matches(p) {
			return false
		}
	}
	if len(s.includes) == 0 {
		return true
	}
	for _, r := range s.includes {
		if r.matches(p) {
			return true
		}
	}
	return false
}

// Len returns the number of rules in the set.
func (s *Set) Len() int {
	return len(s.includes) + len(s.excludes)
}

func textForScope(p Post, scope model.FilterScope) string {
	switch scope {
	case model.ScopeTitle:
		return strings.ToLower(p.Title)
	case model.ScopeContent:
		return strings.ToLower(p.Summary)
	default:
		return strings.ToLower(p.Title + " " + p.Summary)
	}
}

func compileRegex(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return re, nil
}
