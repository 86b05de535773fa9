package interaction

import (
	"errors"
	"os"
	"testing"

	"github.com/charmbracelet/huh"
)

func TestIsTerminalNilAndPipe(t *testing.T) {
	if IsTerminal(nil) {
		t.Fatal("IsTerminal(nil) must be false")
	}
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("create pipe: %v", err)
	}
	defer func() {
		_ = r.Close()
		_ = w.Close()
	}()
	if IsTerminal(r) {
		t.Fatal("IsTerminal(pipe) must be false")
	}
}

func TestDefaultWithoutPromptIsNonInteractive(t *testing.T) {
	if _, ok := Default(false).(NonInteractive); !ok {
		t.Fatal("Default(false) must be NonInteractive")
	}
}

func TestNonInteractiveNamesValue(t *testing.T) {
	_, err := NonInteractive{}.Input("Tenant ID", nil)
	if !errors.Is(err, ErrNonInteractive) {
		t.Fatalf("Input() error = %v, want ErrNonInteractive", err)
	}
	if err.Error() != "input required but prompting is disabled: Tenant ID" {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, err := (NonInteractive{}).Confirm("Delete?"); ok || !errors.Is(err, ErrNonInteractive) {
		t.Fatalf("Confirm() = %v, %v", ok, err)
	}
}

func TestHuhPrompterInputUsesRunner(t *testing.T) {
	orig := runInputPrompt
	t.Cleanup(func() { runInputPrompt = orig })

	var gotTitle string
	runInputPrompt = func(title string, suggestions []string, input *string) error {
		gotTitle = title
		*input = "tenant-1"
		return nil
	}

	got, err := (HuhPrompter{}).Input("Tenant ID", nil)
	if err != nil {
		t.Fatalf("Input() error = %v", err)
	}
	if got != "tenant-1" || gotTitle != "Tenant ID" {
		t.Fatalf("Input() = %q (title %q)", got, gotTitle)
	}
}

func TestHuhPrompterSecretWrapsError(t *testing.T) {
	orig := runSecretPrompt
	t.Cleanup(func() { runSecretPrompt = orig })
	runSecretPrompt = func(string, *string) error {
		return errors.New("tty unavailable")
	}

	_, err := (HuhPrompter{}).Secret("Private key")
	if err == nil || err.Error() != "prompt secret: tty unavailable" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHuhPrompterSelectValue(t *testing.T) {
	orig := runSelectPrompt
	t.Cleanup(func() { runSelectPrompt = orig })

	var gotOptions int
	runSelectPrompt = func(title string, options []huh.Option[string], selected *string) error {
		gotOptions = len(options)
		*selected = options[1].Value
		return nil
	}

	got, err := (HuhPrompter{}).SelectValue("Sign in with", []SelectOption{
		{Label: "API key", Value: "api-key"},
		{Label: "Private key", Value: "private-key"},
	})
	if err != nil {
		t.Fatalf("SelectValue() error = %v", err)
	}
	if got != "private-key" || gotOptions != 2 {
		t.Fatalf("SelectValue() = %q with %d options", got, gotOptions)
	}
}

func TestHuhPrompterSelectEmptyOptionsSkipsRunner(t *testing.T) {
	orig := runSelectPrompt
	t.Cleanup(func() { runSelectPrompt = orig })
	called := false
	runSelectPrompt = func(string, []huh.Option[string], *string) error {
		called = true
		return nil
	}

	if got, err := (HuhPrompter{}).Select("Bucket", nil); err != nil || got != "" {
		t.Fatalf("Select() = %q, %v", got, err)
	}
	if called {
		t.Fatal("runner must not be called for empty options")
	}
}

func TestHuhPrompterConfirm(t *testing.T) {
	orig := runConfirmPrompt
	t.Cleanup(func() { runConfirmPrompt = orig })
	runConfirmPrompt = func(title string, confirmed *bool) error {
		*confirmed = true
		return nil
	}

	ok, err := (HuhPrompter{}).Confirm("Delete tenant t1?")
	if err != nil || !ok {
		t.Fatalf("Confirm() = %v, %v", ok, err)
	}
}

func TestScriptedAnswersInOrder(t *testing.T) {
	s := NewScripted("first", "y")
	if got, _ := s.Input("A", nil); got != "first" {
		t.Fatalf("Input() = %q", got)
	}
	if ok, _ := s.Confirm("B"); !ok {
		t.Fatal("Confirm() = false")
	}
	if _, err := s.Secret("C"); !errors.Is(err, ErrNonInteractive) {
		t.Fatalf("exhausted script error = %v", err)
	}
	if len(s.Asked) != 3 {
		t.Fatalf("Asked = %v", s.Asked)
	}
}
