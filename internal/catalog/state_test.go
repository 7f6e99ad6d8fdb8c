package catalog

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestStateStartsEmpty(t *testing.T) {
	t.Parallel()

	state := NewState()

	if names := state.PackageNames(); len(names) != 0 {
		t.Error("new state should have no packages, got", names)
	}
	if _, ok := state.Lookup("anything"); ok {
		t.Error("Lookup on empty state should miss")
	}
	if _, ok := state.Credential("anybody"); ok {
		t.Error("Credential on empty state should miss")
	}
	if state.Entitled("anybody", "anything") {
		t.Error("Entitled on empty state should be false")
	}
}

func TestStateReplaceSemantics(t *testing.T) {
	t.Parallel()

	state := NewState()

	state.ReplaceCatalog(Catalog{
		"alpha": {Source: SourceFolder},
		"beta":  {Source: SourceFolder},
	})
	state.ReplaceCatalog(Catalog{
		"gamma": {Source: SourceFolder},
	})

	// Wholesale replacement: nothing from the first pass survives.
	names := state.PackageNames()
	if len(names) != 1 || names[0] != "gamma" {
		t.Error("expected only gamma after replacement, got", names)
	}

	state.ReplaceEntitlements(map[string]map[string]struct{}{
		"acme": {"gamma": {}},
	})
	if !state.Entitled("acme", "gamma") {
		t.Error("acme should be entitled to gamma")
	}
	if state.Entitled("acme", "alpha") {
		t.Error("acme should not be entitled to alpha")
	}
	// Absent customer key means no visible packages, not an error.
	if state.Entitled("unknown", "gamma") {
		t.Error("unknown customer should see nothing")
	}

	state.ReplaceCredentials(map[string]string{"acme": "hunter2"})
	secret, ok := state.Credential("acme")
	if !ok || secret != "hunter2" {
		t.Error("credential lookup failed")
	}
}

// TestStateConcurrentReaders drives 100 readers while a writer swaps
// between two complete catalogs. Every read must observe one catalog
// in full, never a mixture or a partial map.
func TestStateConcurrentReaders(t *testing.T) {
	t.Parallel()

	oldCatalog := make(Catalog)
	newCatalog := make(Catalog)
	for i := 0; i < 10; i++ {
		oldCatalog[fmt.Sprintf("old-%d", i)] = &Package{Source: SourceFolder}
	}
	for i := 0; i < 20; i++ {
		newCatalog[fmt.Sprintf("new-%d", i)] = &Package{Source: SourceFolder}
	}

	state := NewState()
	state.ReplaceCatalog(oldCatalog)

	stop := make(chan struct{})
	var writers sync.WaitGroup
	writers.Add(1)
	go func() {
		defer writers.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				state.ReplaceCatalog(newCatalog)
			} else {
				state.ReplaceCatalog(oldCatalog)
			}
		}
	}()

	var readers sync.WaitGroup
	errs := make(chan string, 100)
	for r := 0; r < 100; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for i := 0; i < 100; i++ {
				names := state.PackageNames()
				switch {
				case len(names) == 10:
					for _, name := range names {
						if !strings.HasPrefix(name, "old-") {
							errs <- "mixed catalog observed: " + name
							return
						}
					}
				case len(names) == 20:
					for _, name := range names {
						if !strings.HasPrefix(name, "new-") {
							errs <- "mixed catalog observed: " + name
							return
						}
					}
				default:
					errs <- fmt.Sprintf("partial catalog observed: %d entries", len(names))
					return
				}
			}
		}()
	}

	readers.Wait()
	close(stop)
	writers.Wait()

	select {
	case msg := <-errs:
		t.Fatal(msg)
	default:
	}
}
