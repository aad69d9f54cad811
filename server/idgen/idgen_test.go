package idgen

import (
	"regexp"
	"sync"
	"testing"
)

var idPattern = regexp.MustCompile(`^[a-z2-7]{20}$`)

func TestNew(t *testing.T) {
	id := New()
	if !idPattern.MatchString(id) {
		t.Errorf("ID %q does not match %s", id, idPattern)
	}
}

func TestUniqueness(t *testing.T) {
	count := 10000
	ids := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		id := New()
		if _, exists := ids[id]; exists {
			t.Fatalf("Duplicate ID found: %s", id)
		}
		ids[id] = struct{}{}
	}
}

func TestConcurrentGeneration(t *testing.T) {
	count := 1000
	ids := make([]string, count)
	var wg sync.WaitGroup
	wg.Add(count)
	for i := 0; i < count; i++ {
		go func(index int) {
			defer wg.Done()
			ids[index] = New()
		}(i)
	}
	wg.Wait()

	seen := make(map[string]struct{}, count)
	for _, id := range ids {
		if _, exists := seen[id]; exists {
			t.Errorf("Duplicate ID found in concurrent generation: %s", id)
		}
		seen[id] = struct{}{}
	}
}
