package recordstream

import (
	"reflect"
	"testing"
)

func collect(t *testing.T, chunks []string) []string {
	t.Helper()
	var f Framer
	var got []string
	for _, c := range chunks {
		f.Feed([]byte(c), func(record []byte) {
			got = append(got, string(record))
		})
	}
	return got
}

func TestFramer_ChunkBoundaryInvariant(t *testing.T) {
	whole := "AAA\nBBB\nCCC\n"
	want := []string{"AAA", "BBB", "CCC"}

	splits := [][]string{
		{whole},
		{"AAA\n", "BBB\n", "CCC\n"},
		{"AAA\nBB", "B\nCCC\n"},
		{"A", "A", "A", "\n", "B", "B", "B", "\n", "C", "C", "C", "\n"},
		{"AAA\r\nBBB\r\nCCC\r\n"},
		{"AAA", "\n", "BBB", "\n", "CCC", "\n"},
	}

	for i, chunks := range splits {
		got := collect(t, chunks)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("split %d %v: got %v, want %v", i, chunks, got, want)
		}
	}
}

func TestFramer_TrailingPartialRecordIsCarried(t *testing.T) {
	var f Framer
	var got []string
	f.Feed([]byte("AAA\nBB"), func(r []byte) { got = append(got, string(r)) })
	if !reflect.DeepEqual(got, []string{"AAA"}) {
		t.Fatalf("got %v", got)
	}
	f.Feed([]byte("B\n"), func(r []byte) { got = append(got, string(r)) })
	if !reflect.DeepEqual(got, []string{"AAA", "BBB"}) {
		t.Fatalf("got %v", got)
	}
}

func TestFramer_ResetDropsCarry(t *testing.T) {
	var f Framer
	f.Feed([]byte("partial"), func([]byte) {
		t.Fatal("must not emit yet")
	})
	f.Reset()
	var got []string
	f.Feed([]byte("AAA\n"), func(r []byte) { got = append(got, string(r)) })
	if !reflect.DeepEqual(got, []string{"AAA"}) {
		t.Fatalf("got %v, want partial to have been discarded", got)
	}
}

func TestFramer_EmptyChunk(t *testing.T) {
	var f Framer
	var got []string
	f.Feed(nil, func(r []byte) { got = append(got, string(r)) })
	if len(got) != 0 {
		t.Fatalf("got %v", got)
	}
}
