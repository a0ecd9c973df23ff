package approval

import (
	"fmt"

	"github.com/dlclark/regexp2"
)

// compiledCategory is a Category with its patterns compiled. regexp2 is
// used instead of the standard library so patterns can use negative
// lookbehind (e.g. excluding RFC1918 addresses reached from localhost).
type compiledCategory struct {
	Category
	matchers []*regexp2.Regexp
}

func compileCategory(cat Category) (compiledCategory, error) {
	cc := compiledCategory{Category: cat, matchers: make([]*regexp2.Regexp, 0, len(cat.Patterns))}
	for _, pat := range cat.Patterns {
		re, err := regexp2.Compile(pat, regexp2.None)
		if err != nil {
			return compiledCategory{}, fmt.Errorf("approval: category %q pattern %q: %w", cat.ID, pat, err)
		}
		cc.matchers = append(cc.matchers, re)
	}
	return cc, nil
}

// compileConfig compiles every category in cfg, returning the first
// compile error encountered so a malformed patterns.toml is rejected in
// its entirety rather than partially applied.
func compileConfig(cfg *Config) ([]compiledCategory, error) {
	compiled := make([]compiledCategory, 0, len(cfg.Categories))
	for _, cat := range cfg.Categories {
		cc, err := compileCategory(cat)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, cc)
	}
	return compiled, nil
}

// Match reports whether text matches any of the category's patterns.
func (cc compiledCategory) Match(text string) bool {
	for _, re := range cc.matchers {
		m, err := re.MatchString(text)
		if err != nil {
			continue
		}
		if m {
			return true
		}
	}
	return false
}
