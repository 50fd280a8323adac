//go:build property

package watcher

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestDebouncerProperties checks that a burst always collapses into one
// batch holding each path exactly once.
func TestDebouncerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(9876)
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("burst collapses into one deduplicated batch", prop.ForAll(
		func(paths []int) bool {
			if len(paths) == 0 {
				return true
			}
			d := newDebouncer(30 * time.Millisecond)
			defer d.close()

			unique := make(map[string]bool)
			for _, p := range paths {
				name := fmt.Sprintf("post-%d.md", p)
				unique[name] = true
				d.add(ChangeEvent{Path: name, Type: EventTypeModified})
			}

			select {
			case batch := <-d.output:
				if len(batch) != len(unique) {
					return false
				}
				for i := 1; i < len(batch); i++ {
					if batch[i-1].Path >= batch[i].Path {
						return false
					}
				}
			case <-time.After(time.Second):
				return false
			}

			select {
			case <-d.output:
				return false
			case <-time.After(80 * time.Millisecond):
				return true
			}
		},
		gen.SliceOfN(30, gen.IntRange(0, 9)),
	))

	properties.Property("ignore patterns never keep a matching base name", prop.ForAll(
		func(dir, stem string) bool {
			filter := IgnorePatterns([]string{"*.swp", "*~"})
			return !filter(dir+"/"+stem+".swp") && !filter(dir+"/"+stem+"~") && filter(dir+"/"+stem+".md")
		},
		gen.RegexMatch(`^[a-z]{1,8}$`),
		gen.RegexMatch(`^[a-z]{1,8}$`),
	))

	properties.TestingRun(t)
}
