package seededrand

import (
	"reflect"
	"testing"
)

func TestHashSeed(t *testing.T) {
	tests := []struct {
		seed string
		want uint32
	}{
		{"", 1},
		{"a", 97},
		{"ab", 97*31 + 98},
		{"ba", 98*31 + 97},
	}
	for _, tc := range tests {
		if got := HashSeed(tc.seed); got != tc.want {
			t.Errorf("HashSeed(%q) = %d, want %d", tc.seed, got, tc.want)
		}
	}
}

func TestHashSeedIsOrderSensitive(t *testing.T) {
	if HashSeed("draft_round_1") == HashSeed("draft_round_2") {
		t.Fatal("different seeds should hash differently")
	}
	if HashSeed("ab") == HashSeed("ba") {
		t.Fatal("hash should depend on character order")
	}
}

func TestNextFollowsRecurrence(t *testing.T) {
	s := New("")
	got := s.Next()
	want := float64(1015568748) / 4294967296
	if got != want {
		t.Fatalf("first draw from state 1 = %v, want %v", got, want)
	}
	if s.state != 1015568748 {
		t.Fatalf("state = %d, want 1015568748", s.state)
	}
}

func TestNextRange(t *testing.T) {
	s := New("range")
	for i := 0; i < 10000; i++ {
		v := s.Next()
		if v < 0 || v >= 1 {
			t.Fatalf("draw %d out of range: %v", i, v)
		}
	}
}

func TestNextIntRange(t *testing.T) {
	s := New("ints")
	seen := map[int]bool{}
	for i := 0; i < 1000; i++ {
		v := s.NextInt(3, 5)
		if v < 3 || v >= 5 {
			t.Fatalf("NextInt(3,5) = %d", v)
		}
		seen[v] = true
	}
	if !seen[3] || !seen[4] {
		t.Errorf("expected both 3 and 4 over 1000 draws, saw %v", seen)
	}
}

func TestNextIntReversedBoundsRoundDown(t *testing.T) {
	s := New("reversed")
	seen := map[int]bool{}
	for i := 0; i < 1000; i++ {
		v := s.NextInt(5, 3)
		if v < 3 || v > 5 {
			t.Fatalf("NextInt(5,3) = %d", v)
		}
		seen[v] = true
	}
	// truncation toward zero could never produce 3
	if !seen[3] {
		t.Errorf("NextInt(5,3) never rounded down to 3: %v", seen)
	}
}

func TestSameSeedSameSequence(t *testing.T) {
	a, b := New("s1"), New("s1")
	for i := 0; i < 100; i++ {
		if a.Next() != b.Next() {
			t.Fatalf("sequences diverged at draw %d", i)
		}
	}
}

func TestResetMatchesFreshSource(t *testing.T) {
	reused := New("first")
	reused.Next()
	reused.Next()
	reused.Reset("second")

	fresh := New("second")
	for i := 0; i < 20; i++ {
		if reused.Next() != fresh.Next() {
			t.Fatalf("reset source diverged from fresh source at draw %d", i)
		}
	}
}

func TestShuffleLeavesInputUntouched(t *testing.T) {
	in := []int{1, 2, 3, 4, 5, 6, 7, 8}
	orig := append([]int(nil), in...)

	out := Shuffle(New("shuffle"), in)
	if !reflect.DeepEqual(in, orig) {
		t.Fatalf("input mutated: %v", in)
	}
	if len(out) != len(in) {
		t.Fatalf("shuffled length = %d, want %d", len(out), len(in))
	}
	counts := map[int]int{}
	for _, v := range out {
		counts[v]++
	}
	for _, v := range in {
		if counts[v] != 1 {
			t.Fatalf("element %d appears %d times in %v", v, counts[v], out)
		}
	}
	if !reflect.DeepEqual(out, Shuffle(New("shuffle"), in)) {
		t.Fatal("shuffle is not reproducible")
	}
}

func TestChoice(t *testing.T) {
	items := []string{"a", "b", "c"}
	s := New("choice")
	for i := 0; i < 50; i++ {
		got := Choice(s, items)
		if got != "a" && got != "b" && got != "c" {
			t.Fatalf("Choice returned %q", got)
		}
	}
	if got := Choice(s, []string{}); got != "" {
		t.Fatalf("Choice on empty = %q", got)
	}
}

func TestSample(t *testing.T) {
	items := []int{10, 20, 30, 40, 50}

	s := New("sample")
	before := s.state
	all := Sample(s, items, 7)
	if !reflect.DeepEqual(all, items) {
		t.Fatalf("oversized sample = %v, want original order", all)
	}
	if s.state != before {
		t.Fatal("oversized sample should not consume draws")
	}

	some := Sample(s, items, 3)
	if len(some) != 3 {
		t.Fatalf("sample length = %d, want 3", len(some))
	}
	seen := map[int]bool{}
	for _, v := range some {
		if seen[v] {
			t.Fatalf("duplicate %d in sample %v", v, some)
		}
		seen[v] = true
	}

	if got := Sample(s, items, 0); len(got) != 0 {
		t.Fatalf("zero sample = %v", got)
	}
}
