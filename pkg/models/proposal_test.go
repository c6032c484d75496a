package models

import "testing"

func TestBucketForConfidence(t *testing.T) {
	tests := []struct {
		confidence float64
		want       ConfidenceBucket
	}{
		{0.99, BucketHigh},
		{0.8, BucketHigh},
		{0.79, BucketMedium},
		{0.6, BucketMedium},
		{0.59, BucketLow},
		{0.1, BucketLow},
	}

	for _, tt := range tests {
		if got := BucketForConfidence(tt.confidence); got != tt.want {
			t.Errorf("BucketForConfidence(%f) = %s, want %s", tt.confidence, got, tt.want)
		}
	}
}

func TestIsValidRelationshipType(t *testing.T) {
	for _, v := range ValidRelationshipTypes {
		if !IsValidRelationshipType(v) {
			t.Errorf("expected %s to be valid", v)
		}
	}
	if IsValidRelationshipType("one-to-few") {
		t.Error("expected one-to-few to be invalid")
	}
}

func TestCandidateKey(t *testing.T) {
	a := &CandidateRelationship{SourceTable: "orders", SourceColumn: "customer_ref", TargetTable: "customers"}
	b := &CandidateRelationship{SourceTable: "orders", SourceColumn: "customer_ref", TargetTable: "customers"}
	c := &CandidateRelationship{SourceTable: "orders", SourceColumn: "customer_ref", TargetTable: "suppliers"}

	if a.Key() != b.Key() {
		t.Error("identical triples must share a key")
	}
	if a.Key() == c.Key() {
		t.Error("different targets must not share a key")
	}
}
