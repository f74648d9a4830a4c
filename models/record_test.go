package models

import (
	"reflect"
	"testing"
)

func TestRecordSetKeepsFirstPosition(t *testing.T) {
	r := NewRecord()
	r.Set("id", "1")
	r.Set("price", "100")
	r.Set("id", "2")

	if !reflect.DeepEqual(r.Fields, []string{"id", "price"}) {
		t.Fatalf("Fields = %v, want [id price]", r.Fields)
	}
	if v, ok := r.Get("id"); !ok || v != "2" {
		t.Errorf("Get(id) = %q, %v; want \"2\", true", v, ok)
	}
	if _, ok := r.Get("surface"); ok {
		t.Error("Get(surface) reported a missing field as present")
	}
}

func TestRecordRow(t *testing.T) {
	var r Record
	r.Set("area", "42")
	r.Set("price", "")

	got := r.Row([]string{"price", "area"})
	if !reflect.DeepEqual(got, []string{"", "42"}) {
		t.Errorf("Row = %v, want [ 42]", got)
	}
}
