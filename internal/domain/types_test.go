package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestElementRecordJSONShape(t *testing.T) {
	txt := "Hello"
	recs := []ElementRecord{
		{ID: 1, Text: &txt, Position: Position{X: 0.25, Y: 0.5}, Size: 24, TextStyle: &TextStyle{Bold: true, Color: "#FF0000"}},
		{ID: 2, URI: strPtr("content://img/1"), Position: Position{X: 1.2, Y: -0.1}, Size: 100},
	}
	b, err := json.Marshal(recs)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"text":"Hello"`, `"textStyle":{"bold":true`, `"color":"#FF0000"`, `"uri":"content://img/1"`} {
		if !strings.Contains(s, want) {
			t.Fatalf("missing %s in %s", want, s)
		}
	}
	if strings.Count(s, "textStyle") != 1 {
		t.Fatalf("image record must not carry textStyle: %s", s)
	}
}

func TestFaceStorageKey(t *testing.T) {
	if got := FaceFront.StorageKey(); got != "front design state" {
		t.Fatalf("front key = %q", got)
	}
	if got := FaceBack.StorageKey(); got != "back design state" {
		t.Fatalf("back key = %q", got)
	}
	if _, err := ParseFace("Inside"); err == nil {
		t.Fatalf("expected error for unknown face")
	}
	if f, err := ParseFace(" BACK "); err != nil || f != FaceBack {
		t.Fatalf("ParseFace back: %v %v", f, err)
	}
}

func TestPaletteAndHexColor(t *testing.T) {
	if !InPalette("#ff0000") {
		t.Fatalf("red should be in palette regardless of case")
	}
	if InPalette("#123456") {
		t.Fatalf("unexpected palette color")
	}
	c, err := ParseHexColor("#0057FF")
	if err != nil || c.R != 0 || c.G != 0x57 || c.B != 0xFF || c.A != 255 {
		t.Fatalf("ParseHexColor: %+v %v", c, err)
	}
	for _, bad := range []string{"", "0057FF", "#0057F", "#GGGGGG"} {
		if _, err := ParseHexColor(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestCloneDoesNotShareStyle(t *testing.T) {
	e := Element{ID: 1, Kind: KindText, Style: &TextStyle{Color: "#000000"}}
	c := e.Clone()
	c.Style.Bold = true
	if e.Style.Bold {
		t.Fatalf("clone shares style pointer")
	}
}

func strPtr(s string) *string { return &s }
