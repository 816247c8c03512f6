package policy

import "testing"

func TestEmptyAllowlistAllowsEverything(t *testing.T) {
	if err := CheckToolAllowed(nil, "swap_tokens"); err != nil {
		t.Fatalf("unexpected block: %v", err)
	}
}

func TestAllowlistBlocksUnlisted(t *testing.T) {
	allow := []string{"get_token_info", "get_swap_quote"}
	if err := CheckToolAllowed(allow, "get_token_info"); err != nil {
		t.Fatalf("listed tool blocked: %v", err)
	}
	if err := CheckToolAllowed(allow, "swap_tokens"); err == nil {
		t.Fatal("unlisted tool should be blocked")
	}
}

func TestAllowlistNormalizesCaseAndSpace(t *testing.T) {
	allow := []string{"  Get_Token_Info  "}
	if err := CheckToolAllowed(allow, "get_token_info"); err != nil {
		t.Fatalf("normalization failed: %v", err)
	}
}
