// Package personalid generates the ten character personal id of a person: the creation date
// as ddMMyy followed by two 2-digit groups whose parity encodes the gender (odd for male, even
// for female).
package personalid

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"gitlab.com/dirk.krummacker/person-service/internal/model"
)

// Length is the number of characters of every personal id.
const Length = 10

// dateLayout formats a date as two-digit day, month and year.
const dateLayout = "020106"

// Source draws random integers. Implementations must be safe for concurrent use.
type Source interface {
	// IntN returns a random integer in [0,n).
	IntN(n int) int
}

// lockedSource serializes access to a *rand.Rand, which is not safe for concurrent use.
type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (s *lockedSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}

// NewSource returns a concurrency-safe source. Equal seeds produce equal sequences.
func NewSource(seed1, seed2 uint64) Source {
	return &lockedSource{r: rand.New(rand.NewPCG(seed1, seed2))}
}

// Generator builds personal ids from a shared Source.
type Generator struct {
	src Source
}

// NewGenerator returns a generator drawing from src. A nil src selects a randomly seeded one.
func NewGenerator(src Source) *Generator {
	if src == nil {
		src = NewSource(rand.Uint64(), rand.Uint64())
	}
	return &Generator{src: src}
}

// Generate returns the personal id for a person of the given gender created on date. No
// uniqueness check is done here; collisions are rejected by the store.
func (g *Generator) Generate(gender model.Gender, date time.Time) string {
	return DatePart(date) + g.group(gender) + g.group(gender)
}

// group draws one 2-digit group: 01..99 odd for male, 00..98 even for female.
func (g *Generator) group(gender model.Gender) string {
	n := g.src.IntN(50) * 2
	if gender == model.GenderMale {
		n++
	}
	return fmt.Sprintf("%02d", n)
}

// DatePart returns the date prefix a personal id created on date starts with.
func DatePart(date time.Time) string {
	return date.Format(dateLayout)
}
