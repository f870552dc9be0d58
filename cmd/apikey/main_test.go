package main

import "testing"

func TestResolve(t *testing.T) {
	env := map[string]string{"GEMINI_API_KEY": " g-env ", "REPLICATE_API_TOKEN": ""}
	getenv := func(k string) string { return env[k] }

	tests := []struct {
		name         string
		provider     string
		key          string
		wantProvider string
		wantKey      string
		wantErr      bool
	}{
		{name: "flag wins", provider: "Replicate", key: "r8_flag", wantProvider: "replicate", wantKey: "r8_flag"},
		{name: "env fallback", provider: "gemini", wantProvider: "gemini", wantKey: "g-env"},
		{name: "default provider needs key", provider: "", wantErr: true},
		{name: "unknown provider", provider: "openai", key: "x", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, k, err := resolve(tc.provider, tc.key, getenv)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q %q", p, k)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if p != tc.wantProvider || k != tc.wantKey {
				t.Fatalf("resolve = %q %q, want %q %q", p, k, tc.wantProvider, tc.wantKey)
			}
		})
	}
}
