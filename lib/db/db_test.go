package db

import "testing"

func TestFeatureString(t *testing.T) {
	tests := map[Feature]string{
		FeatureSet:    "Set",
		FeatureExpire: "Expire",
		FeatureRange:  "Range",
		Feature(0):    "Unknown",
	}
	for f, want := range tests {
		if got := f.String(); got != want {
			t.Errorf("Feature(%d).String() = %q, want %q", uint64(f), got, want)
		}
	}
}

func TestFeatureSplit(t *testing.T) {
	features := (FeatureGet | FeatureHas | FeatureRange).Features()
	if len(features) != 3 {
		t.Fatalf("Expected 3 features, got %d", len(features))
	}
	if features[0] != FeatureGet || features[1] != FeatureHas || features[2] != FeatureRange {
		t.Errorf("Unexpected feature order: %v", features)
	}
	if len(Feature(0).Features()) != 0 {
		t.Error("Empty feature set should split into nothing")
	}
}
