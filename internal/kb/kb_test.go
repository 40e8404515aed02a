package kb

import "testing"

func TestSearchMatchesKeyword(t *testing.T) {
	s := New()
	res, ok := s.Search("Can I get a REFUND for this?")
	if !ok {
		t.Fatalf("expected a scripted match")
	}
	if res.Meta["topic"] != "refund_policy" {
		t.Fatalf("topic = %q, want refund_policy", res.Meta["topic"])
	}
	if res.Text == "" {
		t.Fatalf("empty response text")
	}
}

func TestSearchNoMatch(t *testing.T) {
	s := New()
	if _, ok := s.Search("what is the weather on mars"); ok {
		t.Fatalf("expected no match")
	}
}

func TestAddCustomEntry(t *testing.T) {
	s := New()
	s.Add("shipping", "Shipping takes three to five days.", "shipping", "delivery")
	res, ok := s.Search("how long is delivery?")
	if !ok || res.Meta["topic"] != "shipping" {
		t.Fatalf("custom entry not matched: %v %v", res, ok)
	}
}
