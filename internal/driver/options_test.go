package driver

import "testing"

func TestParseArgsDefaults(t *testing.T) {
	opt, err := ParseArgs(nil)
	if err != nil {
		t.Fatalf("ParseArgs(nil): %v", err)
	}
	if opt.Target != TargetLLVM || opt.Src != "" || opt.Out != "" || opt.Verbose {
		t.Fatalf("opt = %+v, want zero-value defaults with TargetLLVM", opt)
	}
}

func TestParseArgsSourceOutputTarget(t *testing.T) {
	opt, err := ParseArgs([]string{"-t", "riscv64", "-o", "out.s", "prog.ml"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if opt.Target != TargetRISCV64 {
		t.Errorf("Target = %v, want TargetRISCV64", opt.Target)
	}
	if opt.Out != "out.s" {
		t.Errorf("Out = %q, want out.s", opt.Out)
	}
	if opt.Src != "prog.ml" {
		t.Errorf("Src = %q, want prog.ml", opt.Src)
	}
}

func TestParseArgsVerboseFlag(t *testing.T) {
	opt, err := ParseArgs([]string{"-vb", "prog.ml"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if !opt.Verbose {
		t.Error("Verbose = false, want true")
	}
}

func TestParseArgsUnknownFlagIsError(t *testing.T) {
	if _, err := ParseArgs([]string{"-bogus"}); err == nil {
		t.Fatal("expected error for unknown flag, got nil")
	}
}

func TestParseArgsUnknownTargetIsError(t *testing.T) {
	if _, err := ParseArgs([]string{"-t", "arm64"}); err == nil {
		t.Fatal("expected error for unknown target, got nil")
	}
}

func TestParseArgsMissingFlagArgumentIsError(t *testing.T) {
	if _, err := ParseArgs([]string{"-o"}); err == nil {
		t.Fatal("expected error for -o with no argument, got nil")
	}
}
