package chain

import "testing"

func TestParse(t *testing.T) {
	cases := map[string]Chain{
		"mainnet":  Mainnet,
		"holesky":  Holesky,
		"helder":   Helder,
		"kurtosis": Kurtosis,
	}
	for name, want := range cases {
		got, err := Parse(name)
		if err != nil {
			t.Fatalf("Parse(%q): %v", name, err)
		}
		if got != want {
			t.Fatalf("Parse(%q) = %v, want %v", name, got, want)
		}
	}

	if _, err := Parse("sepolia"); err == nil {
		t.Fatal("expected error for unsupported chain")
	}
}

func TestChainID(t *testing.T) {
	cases := map[Chain]uint64{
		Mainnet:  1,
		Holesky:  17000,
		Helder:   7014190335,
		Kurtosis: 3151908,
	}
	for c, want := range cases {
		if got := c.ChainID(); got != want {
			t.Fatalf("%v.ChainID() = %d, want %d", c, got, want)
		}
	}
}

func TestCommitBoostDomainStable(t *testing.T) {
	d1 := Holesky.CommitBoostDomain()
	d2 := Holesky.CommitBoostDomain()
	if d1 != d2 {
		t.Fatal("CommitBoostDomain is not deterministic")
	}
	if d1[0] != 0x6D || d1[1] != 0x6D || d1[2] != 0x6F || d1[3] != 0x43 {
		t.Fatalf("domain mask prefix mismatch: %x", d1[:4])
	}

	// Different chains must produce different domains (different fork version).
	if Holesky.CommitBoostDomain() == Mainnet.CommitBoostDomain() {
		t.Fatal("expected distinct domains for distinct fork versions")
	}
}
