package validator

import (
	"strings"
	"testing"
)

func FuzzScan(f *testing.F) {
	f.Add("Get-Process", "Name", "nginx")
	f.Add("rm -rf /", "Path", "../../../etc/passwd")
	f.Add(":(){ :|:& };:", "", "")
	f.Add("echo %72%6d", "p", "\x00")
	f.Add(strings.Repeat("(", 100), "q", "~/x")

	v := New(DefaultLimits())
	f.Fuzz(func(t *testing.T, command, name, value string) {
		var params map[string]string
		if name != "" {
			params = map[string]string{name: value}
		}

		out := v.Scan(command, params)

		// Malicious input is data, never a panic, and the aggregate
		// invariants hold for every input.
		max := SeverityNone
		for _, fd := range out.Findings {
			if fd.Severity > max {
				max = fd.Severity
			}
		}
		if out.Severity != max {
			t.Fatalf("severity %v != max finding severity %v", out.Severity, max)
		}
		if out.Valid != (out.Severity < SeverityHigh) {
			t.Fatalf("valid %v inconsistent with severity %v", out.Valid, out.Severity)
		}
		if strings.ContainsRune(command, 0) && out.Valid {
			t.Fatal("NUL byte survived validation")
		}
	})
}

func FuzzSanitize(f *testing.F) {
	f.Add("p", "it's; a \"test\" $(id)")
	f.Add("q", `\'already\'`)
	f.Add("r", "plain")

	v := New(DefaultLimits())
	f.Fuzz(func(t *testing.T, name, value string) {
		once := v.Sanitize(map[string]string{name: value})
		twice := v.Sanitize(once)

		for k, sv := range once {
			if strings.ContainsAny(sv, dangerousValueChars) {
				t.Fatalf("dangerous character survived in %q", sv)
			}
			if twice[k] != sv {
				t.Fatalf("not a fixed point: %q -> %q", sv, twice[k])
			}
		}
	})
}
