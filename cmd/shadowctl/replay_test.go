package main

import (
	"context"
	"testing"
)

const useAfterFree = `name: use after free
mem_size: 4096
max_stack_size: 64
steps:
  - {op: malloc, addr: 0x100, len: 32, expect: ok}
  - {op: write, addr: 0x100, len: 4, expect: ok}
  - {op: free, addr: 0x100, expect: ok}
  - {op: read, addr: 0x100, len: 4, expect: invalid-read}
  - {op: free, addr: 0x100, expect: invalid-free}
`

const wrongExpectation = `mem_size: 4096
max_stack_size: 64
steps:
  - {op: malloc, addr: 0x100, len: 16}
  - {op: read, addr: 0x100, len: 4, expect: ok}
  - {op: free, addr: 0x100}
`

func TestReplayCommand(t *testing.T) {
	tests := []struct {
		name           string
		doc            string
		json           bool
		wantErr        bool
		wantContain    []string
		wantNotContain []string
	}{
		{
			name: "use after free",
			doc:  useAfterFree,
			wantContain: []string{
				"malloc 0x100 32",
				"invalid-read at 0x100 (4 bytes)",
				"invalid-free at 0x100",
				"Result: ✓ 5 steps as expected",
			},
			wantNotContain: []string{"FAILED"},
		},
		{
			name:        "use after free as JSON",
			doc:         useAfterFree,
			json:        true,
			wantContain: []string{`"ok": true`, `"result": "invalid-free at 0x100"`, `"expect": "invalid-read"`},
		},
		{
			name:           "wrong expectation",
			doc:            wrongExpectation,
			wantErr:        true,
			wantContain:    []string{"Result: ✗ FAILED", "expected ok, got invalid-read"},
			wantNotContain: []string{"free 0x100"},
		},
		{
			name:        "wrong expectation as JSON",
			doc:         wrongExpectation,
			json:        true,
			wantErr:     true,
			wantContain: []string{`"ok": false`, `"error": "step 2: read 0x100 4: expected ok`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags()
			jsonOut = tt.json
			path := writeScenario(t, tt.doc)

			output, err := captureOutput(t, func() error {
				return runReplay(context.Background(), []string{path})
			})

			if (err != nil) != tt.wantErr {
				t.Fatalf("runReplay() error = %v, wantErr %v\nOutput: %s", err, tt.wantErr, output)
			}
			if tt.json {
				assertJSON(t, output)
			}
			assertContains(t, output, tt.wantContain)
			assertNotContains(t, output, tt.wantNotContain)
		})
	}
}

func TestReplayCommand_InvalidScenario(t *testing.T) {
	resetFlags()
	path := writeScenario(t, "mem_size: 4096\nmax_stack_size: 64\nsteps: [{op: calloc}]\n")

	output, err := captureOutput(t, func() error {
		return runReplay(context.Background(), []string{path})
	})
	if err == nil {
		t.Fatalf("expected error for unknown op\nOutput: %s", output)
	}
	if output != "" {
		t.Errorf("expected no output, got %q", output)
	}
}

func TestReplayCommand_MissingFile(t *testing.T) {
	resetFlags()
	if _, err := captureOutput(t, func() error {
		return runReplay(context.Background(), []string{"does-not-exist.yaml"})
	}); err == nil {
		t.Fatal("expected error for missing file")
	}
}
