package main

import "testing"

func TestResolveThreshold(t *testing.T) {
	tests := []struct {
		name       string
		set        bool
		flag       float64
		configured float64
		want       float64
		wantErr    bool
	}{
		{name: "config when unset", configured: 0.75, want: 0.75},
		{name: "flag wins", set: true, flag: 0.9, configured: 0.75, want: 0.9},
		{name: "explicit zero", set: true, flag: 0, configured: 0.75, want: 0},
		{name: "flag above one", set: true, flag: 1.5, configured: 0.75, wantErr: true},
		{name: "negative flag", set: true, flag: -0.1, configured: 0.75, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveThreshold(tt.set, tt.flag, tt.configured)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("threshold = %v, want %v", got, tt.want)
			}
		})
	}
}
