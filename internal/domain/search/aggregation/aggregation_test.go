package aggregation

import (
	"encoding/json"
	"testing"
)

func TestBuild(t *testing.T) {
	req := Build([]Field{
		{Name: "city", Sub: []Field{{Name: "category"}}},
		{Name: "brand"},
	})

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"brand_aggs":{"terms":{"field":"brand.raw","size":100}},` +
		`"city_aggs":{"aggs":{"category_aggs":{"terms":{"field":"category.raw","size":100}}},` +
		`"terms":{"field":"city.raw","size":100}}}`
	if string(data) != want {
		t.Errorf("Build() =\n%s\nwant\n%s", data, want)
	}
}

func TestBuild_Empty(t *testing.T) {
	if Build(nil) != nil {
		t.Error("expected nil request for no fields")
	}
}

const twoLevel = `{
	"city_aggs": {
		"doc_count_error_upper_bound": 0,
		"sum_other_doc_count": 0,
		"buckets": [
			{
				"key": "Paris",
				"doc_count": 7,
				"category_aggs": {
					"buckets": [
						{"key": "cafe", "doc_count": 4},
						{"key": "bar", "doc_count": 3}
					]
				}
			},
			{
				"key": "Lyon",
				"doc_count": 2,
				"category_aggs": {
					"buckets": [
						{"key": "museum", "doc_count": 2}
					]
				}
			}
		]
	}
}`

func decodeAggs(t *testing.T, s string) map[string]json.RawMessage {
	t.Helper()
	var aggs map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &aggs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return aggs
}

func TestRead_TwoLevels(t *testing.T) {
	fields := []Field{{Name: "city", Sub: []Field{{Name: "category"}}}}

	got, err := Read(decodeAggs(t, twoLevel), fields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 top-level results, got %d", len(got))
	}

	paris := got[0]
	if paris.Key != "Paris" || paris.DocCount != 7 || paris.Field != "city" {
		t.Errorf("unexpected top bucket: %+v", paris)
	}
	if len(paris.Sub) != 2 {
		t.Fatalf("expected 2 sub results, got %d", len(paris.Sub))
	}
	if paris.Sub[0].Key != "cafe" || paris.Sub[0].DocCount != 4 || paris.Sub[0].Field != "category" {
		t.Errorf("unexpected sub bucket: %+v", paris.Sub[0])
	}
	if paris.Sub[1].DocCount != 3 {
		t.Errorf("sub bucket must carry its own doc_count, got %d", paris.Sub[1].DocCount)
	}

	lyon := got[1]
	if lyon.Key != "Lyon" || len(lyon.Sub) != 1 || lyon.Sub[0].Key != "museum" {
		t.Errorf("unexpected second bucket: %+v", lyon)
	}
}

func TestRead_ThreeLevelsUseOwnFields(t *testing.T) {
	body := `{
		"a_aggs": {"buckets": [{
			"key": "a1", "doc_count": 10,
			"b_aggs": {"buckets": [{
				"key": "b1", "doc_count": 6,
				"c_aggs": {"buckets": [{"key": "c1", "doc_count": 1}]}
			}]}
		}]}
	}`
	fields := []Field{{Name: "a", Sub: []Field{{Name: "b", Sub: []Field{{Name: "c"}}}}}}

	got, err := Read(decodeAggs(t, body), fields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := got[0].Sub[0].Sub
	if len(c) != 1 || c[0].Key != "c1" || c[0].DocCount != 1 || c[0].Field != "c" {
		t.Errorf("unexpected third level: %+v", c)
	}
	if got[0].Sub[0].DocCount != 6 {
		t.Errorf("second level doc_count = %d, want 6", got[0].Sub[0].DocCount)
	}
}

func TestRead_MissingKeysSkipped(t *testing.T) {
	fields := []Field{{Name: "brand"}, {Name: "city"}}
	got, err := Read(decodeAggs(t, twoLevel), fields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Field != "city" {
		t.Errorf("expected only city buckets, got %+v", got)
	}
	if got[0].Sub != nil {
		t.Error("no sub fields requested, expected nil Sub")
	}
}

func TestRead_KeyAsStringAndNumericKeys(t *testing.T) {
	body := `{
		"year_aggs": {"buckets": [
			{"key": 1577836800000, "key_as_string": "2020-01-01", "doc_count": 3},
			{"key": 42, "doc_count": 1}
		]}
	}`
	got, err := Read(decodeAggs(t, body), []Field{{Name: "year"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].Key != "2020-01-01" {
		t.Errorf("expected key_as_string, got %q", got[0].Key)
	}
	if got[1].Key != "42" {
		t.Errorf("expected numeric key as text, got %q", got[1].Key)
	}
}

func TestRead_Malformed(t *testing.T) {
	tests := []struct {
		name string
		aggs map[string]json.RawMessage
	}{
		{"no buckets", map[string]json.RawMessage{"city_aggs": json.RawMessage(`{"value": 1}`)}},
		{"bucket not object", map[string]json.RawMessage{"city_aggs": json.RawMessage(`{"buckets": [1]}`)}},
		{"bucket without key", map[string]json.RawMessage{"city_aggs": json.RawMessage(`{"buckets": [{"doc_count": 1}]}`)}},
		{"invalid json", map[string]json.RawMessage{"city_aggs": json.RawMessage(`{"buckets": [`)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Read(tc.aggs, []Field{{Name: "city"}}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRead_Empty(t *testing.T) {
	got, err := Read(nil, []Field{{Name: "city"}})
	if err != nil || got != nil {
		t.Errorf("Read(nil) = %v, %v", got, err)
	}
}

func TestBuildRead_RoundTrip(t *testing.T) {
	fields := []Field{{Name: "city", Sub: []Field{{Name: "category"}}}}
	req := Build(fields)
	for name := range req {
		if _, ok := decodeAggs(t, twoLevel)[name]; !ok {
			t.Errorf("response lacks requested aggregation %q", name)
		}
	}
	got, err := Read(decodeAggs(t, twoLevel), fields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || len(got[0].Sub) != 2 {
		t.Errorf("unexpected round trip: %+v", got)
	}
}
