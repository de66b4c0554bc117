package delivery

import (
	"reflect"
	"strings"
	"testing"
)

func TestSplit_PlainNewlines(t *testing.T) {
	units := Split("hey!\nhow was the workout?\n\nready for more?")
	want := []string{"hey!", "how was the workout?", "ready for more?"}
	if !reflect.DeepEqual(units, want) {
		t.Errorf("expected %v, got %v", want, units)
	}
}

func TestSplit_MultilineBlockIsOneUnit(t *testing.T) {
	text := "here's your plan\n<multiline>1. squats x10\n2. pushups x15\n3. plank 30s</multiline>\nlet me know when you're done"
	units := Split(text)
	if len(units) != 3 {
		t.Fatalf("expected 3 units, got %d: %v", len(units), units)
	}
	if units[0] != "here's your plan" {
		t.Errorf("expected intro unit, got %q", units[0])
	}
	if !strings.Contains(units[1], "1. squats x10") || !strings.Contains(units[1], "3. plank 30s") {
		t.Errorf("expected block kept intact, got %q", units[1])
	}
	if strings.Contains(units[1], "<multiline>") || strings.Contains(units[1], "</multiline>") {
		t.Errorf("expected markers stripped, got %q", units[1])
	}
	if units[2] != "let me know when you're done" {
		t.Errorf("expected trailing unit, got %q", units[2])
	}
}

func TestSplit_MultipleBlocks(t *testing.T) {
	text := "<multiline>a\nb</multiline>\nmiddle\n<multiline>c\nd</multiline>"
	units := Split(text)
	want := []string{"a\nb", "middle", "c\nd"}
	if !reflect.DeepEqual(units, want) {
		t.Errorf("expected %v, got %v", want, units)
	}
}

func TestSplit_UnmatchedMarkerDegradesToLines(t *testing.T) {
	text := "first\n<multiline>second\nthird"
	units := Split(text)
	if len(units) != 3 {
		t.Fatalf("expected 3 units, got %d: %v", len(units), units)
	}
	if units[1] != "<multiline>second" {
		t.Errorf("expected raw marker line preserved, got %q", units[1])
	}
	if units[2] != "third" {
		t.Errorf("expected plain line split after marker, got %q", units[2])
	}
}

func TestSplit_EmptyAndWhitespace(t *testing.T) {
	if units := Split(""); len(units) != 0 {
		t.Errorf("expected no units for empty text, got %v", units)
	}
	if units := Split("  \n\t\n  "); len(units) != 0 {
		t.Errorf("expected no units for whitespace text, got %v", units)
	}
	if units := Split("<multiline>   </multiline>"); len(units) != 0 {
		t.Errorf("expected empty block dropped, got %v", units)
	}
}

func TestSplit_TrimsUnits(t *testing.T) {
	units := Split("  hello  \n  <multiline>  a\nb  </multiline>  ")
	want := []string{"hello", "a\nb"}
	if !reflect.DeepEqual(units, want) {
		t.Errorf("expected %v, got %v", want, units)
	}
}
