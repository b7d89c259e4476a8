package efi

import "testing"

func TestNewTxIDFormat(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewTxID()
		if len(id) < txidMinLen || len(id) > txidMaxLen {
			t.Fatalf("txid %q has length %d, want %d..%d", id, len(id), txidMinLen, txidMaxLen)
		}
		if !txidRe.MatchString(id) {
			t.Fatalf("txid %q contains non-alphanumeric characters", id)
		}
		for _, c := range id {
			if c >= 'a' && c <= 'z' {
				t.Fatalf("txid %q contains lowercase characters", id)
			}
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate txid %q", id)
		}
		seen[id] = struct{}{}
	}
}
