package catalog

import (
	"testing"
)

func TestBuiltinDescriptorsLookup(t *testing.T) {
	descriptors := BuiltinDescriptors()
	if descriptors.Len() == 0 {
		t.Fatal("no builtin descriptors")
	}
	item, ok := descriptors.Lookup("philips bv300 plus.PNG")
	if !ok {
		t.Fatal("Philips BV300 Plus not found")
	}
	if item.Name != "Philips BV300 Plus" {
		t.Fatalf("name = %q", item.Name)
	}
	if item.Specifications.Depth() < 3 {
		t.Fatalf("specifications depth = %d", item.Specifications.Depth())
	}
	if _, ok := descriptors.Lookup("unknown.png"); ok {
		t.Fatal("unexpected match")
	}
}

func TestAutofill(t *testing.T) {
	descriptors := BuiltinDescriptors()

	known := descriptors.Autofill("GE Vivid E9.jpg", Fields{Name: "ignored"})
	if known.Name != "GE Vivid E9" || known.Category != DefaultCategory || known.Description == "" {
		t.Fatalf("known = %+v", known)
	}

	unknown := descriptors.Autofill("mystery_device.png", Fields{Category: "Imaging"})
	if unknown.Name != "mystery_device" || unknown.Category != "Imaging" || unknown.Description != DefaultDescription {
		t.Fatalf("unknown = %+v", unknown)
	}
}

func TestDescriptorFields(t *testing.T) {
	item, ok := BuiltinDescriptors().Lookup("Mechanical Scale")
	if !ok {
		t.Fatal("Mechanical Scale not found")
	}
	fields := item.Fields()
	if _, err := fields.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if v, _ := fields.Features.Get("0"); v != "Spring-based and lever mechanisms" {
		t.Fatalf("feature 0 = %q", v)
	}
}

func TestParseDescriptorsRejectsGarbage(t *testing.T) {
	if _, err := ParseDescriptors([]byte("name: [unterminated")); err == nil {
		t.Fatal("expected parse error")
	}
}
