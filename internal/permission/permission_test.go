package permission

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Permission
		wantErr bool
	}{
		{"jobs:read", Permission{"jobs", "read"}, false},
		{"jobs:*", Permission{"jobs", "*"}, false},
		{"*:*", Permission{"*", "*"}, false},
		{"email_campaigns:manage", Permission{"email_campaigns", "manage"}, false},
		{"Jobs:READ", Permission{"jobs", "read"}, false}, // normalized to lowercase
		{" jobs : read ", Permission{"jobs", "read"}, false},
		{"jobs", Permission{}, true},
		{"jobs:read:extra", Permission{}, true},
		{"jobs:approve", Permission{}, true}, // not a catalog action
		{"jobs-2:read", Permission{}, true},  // digits/hyphens not allowed
		{":read", Permission{}, true},
		{"jobs:", Permission{}, true},
		{"", Permission{}, true},
	}

	for _, tt := range tests {
		got, err := Parse(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): expected error, got %v", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetAllows_ResourceWildcard(t *testing.T) {
	set, err := NewSet([]string{"jobs:*"})
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}

	for _, action := range []string{"read", "write", "create", "update", "delete", "manage"} {
		if !set.Allows("jobs", action) {
			t.Errorf("jobs:* should allow jobs:%s", action)
		}
	}
	if set.Allows("users", "read") {
		t.Error("jobs:* must not allow users:read")
	}
}

func TestSetAllows_GlobalWildcard(t *testing.T) {
	set, err := NewSet([]string{"*:*"})
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	if !set.Allows("applications", "delete") {
		t.Error("*:* should allow everything")
	}
}

func TestSetAllows_ExactOnly(t *testing.T) {
	set, err := NewSet([]string{"applications:read", "jobs:write"})
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}

	if !set.Allows("applications", "read") {
		t.Error("expected applications:read allowed")
	}
	if set.Allows("applications", "write") {
		t.Error("applications:write must be denied")
	}
	if set.Allows("candidates", "read") {
		t.Error("candidates:read must be denied")
	}
}

func TestSetAllows_Empty(t *testing.T) {
	var set Set
	if set.Allows("jobs", "read") {
		t.Error("empty set must deny everything")
	}
}

func TestNewSet_Invalid(t *testing.T) {
	if _, err := NewSet([]string{"jobs:read", "bogus"}); err == nil {
		t.Error("expected error for malformed entry")
	}
}

func TestValidateAll(t *testing.T) {
	if err := ValidateAll([]string{"jobs:read", "applications:*"}); err != nil {
		t.Errorf("ValidateAll: %v", err)
	}
	if err := ValidateAll([]string{"jobs:launch"}); err == nil {
		t.Error("expected error for unknown action")
	}
}

func TestSetStrings_Sorted(t *testing.T) {
	set, err := NewSet([]string{"users:read", "applications:read", "jobs:*"})
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	got := set.Strings()
	want := []string{"applications:read", "jobs:*", "users:read"}
	if len(got) != len(want) {
		t.Fatalf("Strings() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Strings()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
