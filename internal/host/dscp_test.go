// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package host

import "testing"

func TestParseDSCP_KnownNames(t *testing.T) {
	cases := map[string]int{
		"":     0,
		"ef":   46,
		"EF":   46,
		"AF41": 34,
		"CS7":  56,
	}
	for name, want := range cases {
		got, err := ParseDSCP(name)
		if err != nil {
			t.Fatalf("ParseDSCP(%q): %v", name, err)
		}
		if got != want {
			t.Errorf("ParseDSCP(%q) = %d, want %d", name, got, want)
		}
	}
}

func TestParseDSCP_UnknownName(t *testing.T) {
	if _, err := ParseDSCP("NOT-A-DSCP"); err == nil {
		t.Fatal("expected error for unknown DSCP name")
	}
}

func TestApplyDSCP_NoopWhenZero(t *testing.T) {
	if err := ApplyDSCP(nil, 0); err != nil {
		t.Fatalf("expected ApplyDSCP to no-op for dscp=0, got %v", err)
	}
}
