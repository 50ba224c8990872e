package orders

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// NumberGenerator issues order numbers of the form PREFIX + unix millis +
// three random digits. Banks echo the number back in transfer content.
type NumberGenerator struct {
	prefix string
	now    func() time.Time
	suffix func() int
}

func NewNumberGenerator(prefix string) *NumberGenerator {
	return &NumberGenerator{
		prefix: prefix,
		now:    time.Now,
		suffix: func() int { return rand.IntN(1000) },
	}
}

func (g *NumberGenerator) Next() string {
	return fmt.Sprintf("%s%d%03d", g.prefix, g.now().UnixMilli(), g.suffix())
}
