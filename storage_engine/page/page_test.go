package page

import "testing"

func TestTryLatch(t *testing.T) {
	p := &Page{Data: make([]byte, PageSize)}

	if !p.TryLatch() {
		t.Fatalf("expected free latch to be granted")
	}
	if p.TryLatch() {
		t.Fatalf("expected second TryLatch to fail while latched")
	}
	if !p.IsLatched() {
		t.Errorf("expected page to report latched")
	}
	p.Unlatch()
	if p.IsLatched() {
		t.Errorf("expected page to report unlatched")
	}

	done := make(chan struct{})
	p.Latch()
	go func() {
		p.Latch()
		p.Unlatch()
		close(done)
	}()
	p.Unlatch()
	<-done
}

func TestRepositionNeeded(t *testing.T) {
	p := &Page{Data: make([]byte, PageSize)}

	p.BumpVersion()
	saved := p.Version()
	p.BumpVersion() // ordinary change, rows stay put
	if p.IsRepositionNeeded(saved) {
		t.Errorf("plain change must not force reposition")
	}

	p.SetRepositionNeeded()
	if !p.IsRepositionNeeded(saved) {
		t.Errorf("expected reposition after rows moved")
	}
	if p.IsRepositionNeeded(p.Version()) {
		t.Errorf("a position saved after the move is still valid")
	}
}
