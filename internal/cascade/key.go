package cascade

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"stylematch/internal/css"
)

// Environment evaluates the conditions of @media and @supports rules.
// css.Features implements it.
type Environment interface {
	MatchesMedia(list css.MediaQueryList) bool
	Supports(cond *css.SupportsCondition) bool
}

// Condition is one evaluated @media or @supports prelude.
type Condition struct {
	Media    *css.MediaQueryList
	Supports *css.SupportsCondition
	Result   bool
}

func (c Condition) evaluate(env Environment) bool {
	if c.Media != nil {
		return env.MatchesMedia(*c.Media)
	}
	return env.Supports(c.Supports)
}

func (c Condition) String() string {
	var b strings.Builder
	if c.Media != nil {
		b.WriteString("@media ")
		b.WriteString(c.Media.Text)
	} else {
		b.WriteString("@supports ")
		if c.Supports != nil {
			b.WriteString(c.Supports.Text)
		}
	}
	b.WriteString(" = ")
	b.WriteString(strconv.FormatBool(c.Result))
	return b.String()
}

// Key lists the conditions evaluated while building a cascade, in walk
// order. A cascade can be reused for any environment under which every
// condition evaluates the same.
type Key struct {
	Conditions []Condition
}

func (k *Key) record(c Condition) bool {
	k.Conditions = append(k.Conditions, c)
	return c.Result
}

// Matches reports whether env evaluates every recorded condition to the
// recorded result.
func (k Key) Matches(env Environment) bool {
	for _, c := range k.Conditions {
		if c.evaluate(env) != c.Result {
			return false
		}
	}
	return true
}

// Fingerprint hashes the recorded conditions and their results.
func (k Key) Fingerprint() uint64 {
	d := xxhash.New()
	for _, c := range k.Conditions {
		_, _ = d.WriteString(c.String())
		_, _ = d.WriteString("\n")
	}
	return d.Sum64()
}

func (k Key) String() string {
	parts := make([]string, 0, len(k.Conditions))
	for _, c := range k.Conditions {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, "; ")
}
