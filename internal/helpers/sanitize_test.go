package helpers

import "testing"

func TestPlainTextRemovesTagsAndScripts(t *testing.T) {
	input := `<p>Hello <strong>world</strong><script>alert('x')</script></p>`
	if got := PlainText(input); got != "Hello world" {
		t.Fatalf("expected %q, got %q", "Hello world", got)
	}
}

func TestPlainTextKeepsPunctuation(t *testing.T) {
	input := `Paris & "Lyon" aren't   the same`
	want := `Paris & "Lyon" aren't the same`
	if got := PlainText(input); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestPreviewTruncates(t *testing.T) {
	if got := Preview("<b>The capital</b> of France is Paris", 11); got != "The capital..." {
		t.Fatalf("unexpected preview %q", got)
	}
	if got := Preview("short", 11); got != "short" {
		t.Fatalf("unexpected preview %q", got)
	}
}
