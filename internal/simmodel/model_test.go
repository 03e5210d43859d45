package simmodel

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewDocument_MarshalsEmptyLists(t *testing.T) {
	raw, err := NewDocument().Canonical()
	if err != nil {
		t.Fatal(err)
	}
	out := string(raw)
	for _, want := range []string{
		`"entityRelationships":[]`,
		`"resources":[]`,
		`"activities":[]`,
		`"connections":[]`,
		`"scenario":""`,
		`"description":""`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output, got %s", want, out)
		}
	}
	if strings.Contains(out, "null") {
		t.Errorf("empty document must not marshal null: %s", out)
	}
}

func TestActivity_MarshalShape(t *testing.T) {
	a := Activity{
		ID:          "Service",
		HandlerType: "Arrivals",
		Attributes:  Attributes{Initial: true},
		Conditions: []Condition{
			{Attribute: "isVIP", Value: true},
			{Attribute: "priority", Value: "high"},
		},
		Requirements: []Requirement{{ResourceGroups: []string{"Clerk"}, Quantity: 1}},
		Duration:     Duration{},
	}

	raw, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	out := string(raw)
	for _, want := range []string{
		`"id":"Service"`,
		`"handlerType":"Arrivals"`,
		`"attributes":{"initial":true}`,
		`{"attribute":"isVIP","value":true}`,
		`{"attribute":"priority","value":"high"}`,
		`{"resourceGroups":["Clerk"],"quantity":1}`,
		`"duration":{}`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
}

func TestActivity_InitialOmittedWhenFalse(t *testing.T) {
	raw, err := json.Marshal(Activity{ID: "Serve", HandlerType: UnknownHandler})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "initial") {
		t.Errorf("initial must be omitted when false: %s", raw)
	}
	if !strings.Contains(string(raw), `"attributes":{}`) {
		t.Errorf("attributes must still be present: %s", raw)
	}
}

func TestModel_ActivityByID(t *testing.T) {
	m := Model{Activities: []Activity{
		{ID: "Load", HandlerType: "Trucks"},
		{ID: "Haul", HandlerType: UnknownHandler},
	}}

	a, ok := m.ActivityByID("Haul")
	if !ok || a.HandlerType != UnknownHandler {
		t.Errorf("expected Haul found with Unknown handler, got %v %v", a, ok)
	}
	if _, ok := m.ActivityByID("missing"); ok {
		t.Error("expected missing activity not found")
	}
}

func TestModel_UnknownHandlerCount(t *testing.T) {
	m := Model{Activities: []Activity{
		{ID: "Load", HandlerType: "Trucks"},
		{ID: "Haul", HandlerType: UnknownHandler},
		{ID: "Dump", HandlerType: UnknownHandler},
	}}
	if n := m.UnknownHandlerCount(); n != 2 {
		t.Errorf("expected 2 unknown handlers, got %d", n)
	}
}

func TestModel_ConnectionCounts(t *testing.T) {
	m := Model{Connections: []Connection{
		{Type: ConnFlow, From: "A", To: "B"},
		{Type: ConnFlow, From: "B", To: "C"},
		{Type: ConnStartToStart, From: "A", To: "C"},
	}}
	counts := m.ConnectionCounts()
	if counts[ConnFlow] != 2 {
		t.Errorf("expected 2 flow connections, got %d", counts[ConnFlow])
	}
	if counts[ConnStartToStart] != 1 {
		t.Errorf("expected 1 start-to-start, got %d", counts[ConnStartToStart])
	}
}

func TestDocument_PrettyEndsWithNewline(t *testing.T) {
	doc := NewDocument()
	raw, err := doc.Pretty()
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) == 0 || raw[len(raw)-1] != '\n' {
		t.Error("pretty output should end with newline")
	}
	var round Document
	if err := json.Unmarshal(raw, &round); err != nil {
		t.Fatalf("pretty output not valid json: %v", err)
	}
}
