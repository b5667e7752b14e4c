package firsttrack

import (
	"strings"
	"testing"

	"smartsolution/internal/judge/model"
)

func fixedBonus(v float64) func() float64 {
	return func() float64 { return v }
}

func TestCompareSquaredRows(t *testing.T) {
	t.Parallel()
	c := NewComparator(ComparatorConfig{Bonus: fixedBonus(0.25)})
	reference := "id,num\n1,3\n2,4\n3,5\n"
	produced := "num,id\n9,1\n16,2\n24,3\n"

	res := c.Compare(strings.NewReader(produced), strings.NewReader(reference))
	if !res.Succeeded() {
		t.Fatalf("expected success, got %+v", res)
	}
	if *res.Value != 2.25 {
		t.Fatalf("value = %v, want 2.25", *res.Value)
	}
	if res.Message != "Correct: 2/3, bonus=0.250" {
		t.Fatalf("message = %q", res.Message)
	}
}

func TestCompareSingleRowScenario(t *testing.T) {
	t.Parallel()
	c := NewComparator(ComparatorConfig{})
	for i := 0; i < 50; i++ {
		res := c.Compare(strings.NewReader("id,num\n1,9\n"), strings.NewReader("id,num\n1,3\n"))
		if !res.Succeeded() {
			t.Fatalf("expected success, got %+v", res)
		}
		if *res.Value < 1 || *res.Value >= 2 {
			t.Fatalf("value %v outside [1, 2)", *res.Value)
		}
	}
}

func TestCompareIncorrectValues(t *testing.T) {
	t.Parallel()
	c := NewComparator(ComparatorConfig{Bonus: fixedBonus(0)})
	reference := "id,num\n1,2\n2,3\n3,4\n4,5\n"
	// Row 2 is unparsable, row 3 is absent, row 4 is wrong, extra row 9 is ignored.
	produced := "id,num\n1,4\n2,nine\n4,26\n9,81\n"

	res := c.Compare(strings.NewReader(produced), strings.NewReader(reference))
	if !res.Succeeded() || *res.Value != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Message != "Correct: 1/4, bonus=0.000" {
		t.Fatalf("message = %q", res.Message)
	}
}

func TestCompareTolerance(t *testing.T) {
	t.Parallel()
	reference := "id,num\n1,0.1\n"
	produced := "id,num\n1,0.010000001\n"

	exact := NewComparator(ComparatorConfig{Bonus: fixedBonus(0)})
	if res := exact.Compare(strings.NewReader(produced), strings.NewReader(reference)); *res.Value != 0 {
		t.Fatalf("exact comparison should reject, got %v", *res.Value)
	}
	loose := NewComparator(ComparatorConfig{Bonus: fixedBonus(0), Tolerance: 1e-6})
	if res := loose.Compare(strings.NewReader(produced), strings.NewReader(reference)); *res.Value != 1 {
		t.Fatalf("tolerant comparison should accept, got %v", *res.Value)
	}
}

func TestCompareMalformedOutput(t *testing.T) {
	t.Parallel()
	c := NewComparator(ComparatorConfig{Bonus: fixedBonus(0.5)})
	reference := "id,num\n1,3\n"
	tests := []struct {
		name     string
		produced string
		detail   string
	}{
		{"empty", "", "missing header row"},
		{"missing value column", "id,value\n1,9\n", `header must contain "id" and "num" columns`},
		{"missing key column", "key,num\n1,9\n", `header must contain "id" and "num" columns`},
		{"duplicate key", "id,num\n1,9\n1,9\n", `duplicate id "1"`},
		{"bad quoting", "id,num\n\"1,9\n", ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := c.Compare(strings.NewReader(tt.produced), strings.NewReader(reference))
			if res.Status != model.ResultError || res.Value != nil {
				t.Fatalf("expected error result, got %+v", res)
			}
			if res.Kind != "OutputMalformed" || !strings.HasPrefix(res.Message, "OutputMalformed: ") {
				t.Fatalf("unexpected kind/message %q %q", res.Kind, res.Message)
			}
			if tt.detail != "" && res.Message != "OutputMalformed: "+tt.detail {
				t.Fatalf("message = %q", res.Message)
			}
		})
	}
}

func TestCompareReferenceQuirks(t *testing.T) {
	t.Parallel()
	c := NewComparator(ComparatorConfig{Bonus: fixedBonus(0)})
	// BOM header, blank key, unparsable and duplicate reference rows are skipped.
	reference := "\ufeffid, num\n1,2\n,7\n2,x\n1,100\n3,3\n"
	produced := "id,num\n1,4\n3,9\n"

	res := c.Compare(strings.NewReader(produced), strings.NewReader(reference))
	if !res.Succeeded() || *res.Value != 2 || res.Message != "Correct: 2/2, bonus=0.000" {
		t.Fatalf("unexpected result %+v", res)
	}

	res = c.Compare(strings.NewReader(produced), strings.NewReader("a,b\n"))
	if res.Status != model.ResultError || res.Kind != "InternalError" {
		t.Fatalf("broken reference should be an internal error, got %+v", res)
	}
}

func TestCompareClampsBonus(t *testing.T) {
	t.Parallel()
	c := NewComparator(ComparatorConfig{Bonus: fixedBonus(1.5)})
	res := c.Compare(strings.NewReader("id,num\n1,9\n"), strings.NewReader("id,num\n1,3\n"))
	if *res.Value != 1 {
		t.Fatalf("out-of-range bonus should be dropped, got %v", *res.Value)
	}
}

func TestCompareCustomColumnsAndTransform(t *testing.T) {
	t.Parallel()
	c := NewComparator(ComparatorConfig{
		KeyColumn:   "row",
		ValueColumn: "answer",
		Transform:   func(v float64) float64 { return v + 1 },
		Bonus:       fixedBonus(0),
	})
	res := c.Compare(strings.NewReader("row,answer\na,2\nb,3\n"), strings.NewReader("row,answer\na,1\nb,1\n"))
	if *res.Value != 1 {
		t.Fatalf("value = %v", *res.Value)
	}
}
