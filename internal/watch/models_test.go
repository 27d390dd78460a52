package watch

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestConditionMetTruncatesAtThresholdScale(t *testing.T) {
	cases := []struct {
		name      string
		condition Condition
		price     string
		threshold string
		want      bool
	}{
		{"above within same cent is not above", ConditionAbove, "100.009", "100.00", false},
		{"above once past the cent", ConditionAbove, "100.01", "100.00", true},
		{"above with integer threshold", ConditionAbove, "100.9", "100", false},
		{"below within same cent is not below", ConditionBelow, "99.991", "100.00", false},
		{"below once under the cent", ConditionBelow, "99.99", "100.00", true},
		{"equals at truncated price", ConditionEquals, "100.009", "100.00", true},
		{"equals misses at next cent", ConditionEquals, "100.01", "100.00", false},
		{"equals exact", ConditionEquals, "100.00", "100.00", true},
		{"above exact threshold is not above", ConditionAbove, "100.00", "100.00", false},
		{"high precision threshold", ConditionAbove, "0.000123459", "0.00012345", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.condition.Met(dec(tc.price), dec(tc.threshold))
			if got != tc.want {
				t.Fatalf("%s.Met(%s, %s) = %v, want %v", tc.condition, tc.price, tc.threshold, got, tc.want)
			}
		})
	}
}

func TestConditionValid(t *testing.T) {
	for _, c := range []Condition{ConditionAbove, ConditionBelow, ConditionEquals} {
		if !c.Valid() {
			t.Fatalf("%s should be valid", c)
		}
	}
	if Condition("SIDEWAYS").Valid() {
		t.Fatal("unknown condition should be invalid")
	}
}

func TestWatchedAlertValidate(t *testing.T) {
	valid := WatchedAlert{AlertID: 1, UserID: 2, AssetID: "bitcoin", Condition: ConditionAbove, Threshold: dec("100")}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid entry rejected: %v", err)
	}

	invalid := []WatchedAlert{
		{AlertID: 0, AssetID: "bitcoin", Condition: ConditionAbove},
		{AlertID: 1, AssetID: "", Condition: ConditionAbove},
		{AlertID: 1, AssetID: "bitcoin", Condition: "WRONG"},
	}
	for i, entry := range invalid {
		if err := entry.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
