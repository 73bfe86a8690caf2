package sigma

import (
	"strings"
	"testing"
)

func TestCompileFieldUnknownModifier(t *testing.T) {
	_, err := CompileField("CommandLine|bogus", []string{"x"})
	if err == nil {
		t.Fatal("expected error for unknown modifier")
	}
	if !strings.Contains(err.Error(), "unknown modifier") {
		t.Fatalf("errMsg = %q, want substring \"unknown modifier\"", err.Error())
	}
}

func TestFieldMatcherContains(t *testing.T) {
	fm, err := CompileField("CommandLine|contains", []string{"whoami", "net user"})
	if err != nil {
		t.Fatalf("CompileField() error = %v", err)
	}
	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"hits first pattern case-insensitively", "C:\\tools\\WHOAMI.exe", true},
		{"hits second pattern", "net user administrator /add", true},
		{"misses both", "ipconfig /all", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fm.Match(tt.value, true); got != tt.want {
				t.Fatalf("Match(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestFieldMatcherAllModifier(t *testing.T) {
	fm, err := CompileField("CommandLine|contains|all", []string{"net", "user"})
	if err != nil {
		t.Fatalf("CompileField() error = %v", err)
	}
	if !fm.Match("net user administrator", true) {
		t.Fatal("expected match when both patterns present")
	}
	if fm.Match("net group", true) {
		t.Fatal("expected no match when only one pattern present under \"all\"")
	}
}

func TestFieldMatcherMissingFieldNeverSatisfied(t *testing.T) {
	fm, err := CompileField("CommandLine|contains", []string{"whoami"})
	if err != nil {
		t.Fatalf("CompileField() error = %v", err)
	}
	if fm.Match(nil, false) {
		t.Fatal("missing field must never satisfy a matcher")
	}
}

func TestFieldMatcherCasedModifier(t *testing.T) {
	fm, err := CompileField("Channel|cased", []string{"System"})
	if err != nil {
		t.Fatalf("CompileField() error = %v", err)
	}
	if !fm.Match("System", true) {
		t.Fatal("exact case should match under cased")
	}
	if fm.Match("system", true) {
		t.Fatal("differing case should not match under cased")
	}
}

func TestFieldMatcherEqualityDefaultCaseInsensitive(t *testing.T) {
	fm, err := CompileField("Channel", []string{"System"})
	if err != nil {
		t.Fatalf("CompileField() error = %v", err)
	}
	if !fm.Match("system", true) {
		t.Fatal("bare equality should be case-insensitive by default")
	}
}

func TestFieldMatcherGlob(t *testing.T) {
	fm, err := CompileField("Image", []string{"*\\powershell.exe"})
	if err != nil {
		t.Fatalf("CompileField() error = %v", err)
	}
	if !fm.Match(`C:\Windows\System32\powershell.exe`, true) {
		t.Fatal("expected glob match")
	}
	if fm.Match(`C:\Windows\System32\cmd.exe`, true) {
		t.Fatal("expected no glob match")
	}
}

func TestFieldMatcherNumericComparators(t *testing.T) {
	fm, err := CompileField("EventID|gt", []string{"4624"})
	if err != nil {
		t.Fatalf("CompileField() error = %v", err)
	}
	if !fm.Match(float64(4625), true) {
		t.Fatal("expected 4625 > 4624")
	}
	if fm.Match(float64(4624), true) {
		t.Fatal("expected 4624 not > 4624")
	}
}

func TestFieldMatcherCIDR(t *testing.T) {
	fm, err := CompileField("DestinationIp|cidr", []string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("CompileField() error = %v", err)
	}
	if !fm.Match("10.1.2.3", true) {
		t.Fatal("expected 10.1.2.3 in 10.0.0.0/8")
	}
	if fm.Match("192.168.1.1", true) {
		t.Fatal("expected 192.168.1.1 outside 10.0.0.0/8")
	}
}

func TestFieldMatcherInvalidCIDR(t *testing.T) {
	_, err := CompileField("DestinationIp|cidr", []string{"not-a-cidr"})
	if err == nil {
		t.Fatal("expected error for invalid cidr pattern")
	}
}

func TestFieldMatcherBase64Offset(t *testing.T) {
	fm, err := CompileField("CommandLine|base64offset|contains", []string{"secret"})
	if err != nil {
		t.Fatalf("CompileField() error = %v", err)
	}
	hit := false
	for _, variant := range base64OffsetVariants("secret") {
		if fm.Match(variant, true) {
			hit = true
			break
		}
	}
	if !hit {
		t.Fatal("expected at least one base64 offset variant to match")
	}
}

func TestFieldMatcherRegex(t *testing.T) {
	fm, err := CompileField("Image|re", []string{`.*\\temp\\[a-z0-9]{8}\.exe`})
	if err != nil {
		t.Fatalf("CompileField() error = %v", err)
	}
	if !fm.Match(`C:\temp\ab12cd34.exe`, true) {
		t.Fatal("expected regex match")
	}
}

func TestFieldMatcherInvalidRegex(t *testing.T) {
	_, err := CompileField("Image|re", []string{"("})
	if err == nil {
		t.Fatal("expected error for invalid regex")
	}
}
