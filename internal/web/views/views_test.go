package views

import (
	"bytes"
	"strings"
	"testing"
)

type count struct {
	Name  string
	Count int
}

type page struct {
	Status        any
	User          string
	Error         string
	Email         string
	Counts        []count
	Environments  []any
	Organizations []any
	Operations    []string
}

func TestRenderLogin(t *testing.T) {
	e, err := New()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	var buf bytes.Buffer
	if err := e.Render(&buf, "login", page{Error: "Invalid email or password. Please try again.", Email: "a@b.c"}); err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "<!DOCTYPE html>") {
		t.Error("login page must use the layout")
	}
	if !strings.Contains(out, "Invalid email or password. Please try again.") {
		t.Error("error message not rendered")
	}
	if !strings.Contains(out, `value="a@b.c"`) {
		t.Error("email not kept in form")
	}
}

func TestRenderDashboard(t *testing.T) {
	e, err := New()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	var buf bytes.Buffer
	if err := e.Render(&buf, "dashboard", page{User: "admin@techsupport.dev", Operations: []string{"find"}}); err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "<!DOCTYPE html>") {
		t.Error("dashboard must use the layout")
	}
	if !strings.Contains(out, "FIND: POST /api/reports/find/preview") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestRenderUnknown(t *testing.T) {
	e, err := New()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := e.Render(&bytes.Buffer{}, "missing", nil); err == nil {
		t.Error("expected error for unknown template")
	}
}
