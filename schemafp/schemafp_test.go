package schemafp

import "testing"

type entryV1 struct {
	Text string
	When int64
}

type entryV1Reordered struct {
	When int64
	Text string
}

type entryV2 struct {
	Text  string
	When  int64
	Extra bool
}

func TestReflect_SameShapeSameFingerprint(t *testing.T) {
	a := Reflect[entryV1]("Entry", "Stream")
	b := Reflect[entryV1]("Entry", "Stream")
	if !a.Equal(b) {
		t.Fatalf("expected equal descriptors, got %v != %v", a, b)
	}
}

func TestReflect_DifferentNamesDiffer(t *testing.T) {
	a := Reflect[entryV1]("Entry", "Stream")
	b := Reflect[entryV1]("OtherEntry", "Stream")
	if a.Equal(b) {
		t.Fatalf("expected different entry names to produce different descriptors")
	}
}

func TestReflect_FieldOrderMatters(t *testing.T) {
	a := Reflect[entryV1]("Entry", "Stream")
	b := Reflect[entryV1Reordered]("Entry", "Stream")
	if a.Equal(b) {
		t.Fatalf("expected reordered fields to change the fingerprint")
	}
}

func TestReflect_ExtraFieldDiffers(t *testing.T) {
	a := Reflect[entryV1]("Entry", "Stream")
	b := Reflect[entryV2]("Entry", "Stream")
	if a.Equal(b) {
		t.Fatalf("expected extra field to change the fingerprint")
	}
}
